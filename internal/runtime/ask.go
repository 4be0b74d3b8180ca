package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
)

// DefaultAskTimeout bounds an Ask whose context carries no deadline.
const DefaultAskTimeout = 30 * time.Second

// Ask tells msg to target with a future as sender and returns the first reply.
// Requests implementing DeadLetterReply still get an answer when the target has
// stopped and DeadRequestReplier is installed.
func Ask(ctx context.Context, target Ref, msg any) (any, error) {
	u, ok := target.(*unit)
	if !ok {
		return nil, ErrForeignRef
	}
	timeout := DefaultAskTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	future := actor.NewFuture(u.sys.actors, timeout)
	u.Tell(msg, futureRef{sys: u.sys, pid: future.PID()})

	type result struct {
		reply any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := future.Result()
		done <- result{reply: reply, err: err}
	}()
	select {
	case r := <-done:
		if errors.Is(r.err, actor.ErrTimeout) {
			return nil, fmt.Errorf("ask %s: %w", u.path, context.DeadlineExceeded)
		}
		return r.reply, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
