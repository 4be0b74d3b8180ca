package runtime

// RequestTarget is where a typed reference delivers its messages.
type RequestTarget interface {
	Ref() Ref
}

// ReceiverTarget delivers straight to a raw unit reference.
type ReceiverTarget struct {
	Receiver Ref
}

func (t ReceiverTarget) Ref() Ref {
	return t.Receiver
}

// InterfacedRef is the base of typed reference wrappers. Typed wrappers embed it
// and add request helpers for the protocol of the unit behind it.
type InterfacedRef struct {
	Target RequestTarget
}

// Interfaced wraps a raw reference into an InterfacedRef.
func Interfaced(ref Ref) InterfacedRef {
	return InterfacedRef{Target: ReceiverTarget{Receiver: ref}}
}

// Ref unwraps the raw reference, or nil.
func (r InterfacedRef) Ref() Ref {
	if r.Target == nil {
		return nil
	}
	return r.Target.Ref()
}

func (r InterfacedRef) Tell(msg any, sender Ref) {
	if ref := r.Ref(); ref != nil {
		ref.Tell(msg, sender)
	}
}
