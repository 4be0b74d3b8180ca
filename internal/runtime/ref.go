package runtime

// Ref addresses one unit hosted by a System.
type Ref interface {
	Path() string
	Tell(msg any, sender Ref)
	Done() <-chan struct{}
}

// Envelope is one queued message and the unit that sent it, if any.
type Envelope struct {
	Message any
	Sender  Ref
}

// Handler receives the messages of one unit.
type Handler interface {
	Receive(self Ref, env Envelope)
}

type HandlerFunc func(self Ref, env Envelope)

func (f HandlerFunc) Receive(self Ref, env Envelope) {
	f(self, env)
}

// Starter is implemented by handlers that need to act before their first message.
type Starter interface {
	PreStart(self Ref)
}

// Stopper is implemented by handlers that release resources when their unit stops.
type Stopper interface {
	PostStop(self Ref)
}
