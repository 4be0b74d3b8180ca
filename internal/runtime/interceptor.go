package runtime

import (
	"fmt"

	"github.com/danmuck/clusternode/internal/observability"
	"github.com/rs/zerolog/log"
)

// DeadLetter is a message that reached a unit after it stopped.
type DeadLetter struct {
	Target   Ref
	Envelope Envelope
}

// Interceptor observes cross-cutting runtime events of a System.
type Interceptor interface {
	DeadLetter(sys *System, dl DeadLetter)
}

type InterceptorFunc func(sys *System, dl DeadLetter)

func (f InterceptorFunc) DeadLetter(sys *System, dl DeadLetter) {
	f(sys, dl)
}

// DeadLetterReply is implemented by request messages whose sender expects an answer.
// The dead-letter replier answers them on behalf of the stopped target.
type DeadLetterReply interface {
	DeadLetterReply(target Ref) any
}

// DeadLetterLogger logs and counts every dead letter.
func DeadLetterLogger() Interceptor {
	return InterceptorFunc(func(sys *System, dl DeadLetter) {
		observability.RecordDeadLetter(sys.Name())
		sender := ""
		if dl.Envelope.Sender != nil {
			sender = dl.Envelope.Sender.Path()
		}
		log.Debug().
			Str("system", sys.Name()).
			Str("target", dl.Target.Path()).
			Str("sender", sender).
			Str("message", fmt.Sprintf("%T", dl.Envelope.Message)).
			Msg("runtime dead letter")
	})
}

// DeadRequestReplier answers requests that can never be handled so their
// senders do not wait forever.
func DeadRequestReplier() Interceptor {
	return InterceptorFunc(func(sys *System, dl DeadLetter) {
		req, ok := dl.Envelope.Message.(DeadLetterReply)
		if !ok || dl.Envelope.Sender == nil {
			return
		}
		dl.Envelope.Sender.Tell(req.DeadLetterReply(dl.Target), dl.Target)
	})
}
