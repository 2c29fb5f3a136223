package headless

// Event is a native event raised on a headless node.
type Event struct {
	Name   string
	Data   []byte
	Target *Node

	defaultPrevented bool
	stopped          bool
}

// Type implements reconcile.NativeEvent.
func (e *Event) Type() string { return e.Name }

// Payload implements reconcile.NativeEvent.
func (e *Event) Payload() []byte { return e.Data }

// PreventDefault implements reconcile.NativeEvent.
func (e *Event) PreventDefault() { e.defaultPrevented = true }

// StopPropagation implements reconcile.NativeEvent.
func (e *Event) StopPropagation() { e.stopped = true }

// DefaultPrevented reports whether a listener called PreventDefault.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// PropagationStopped reports whether a listener called StopPropagation.
func (e *Event) PropagationStopped() bool { return e.stopped }

// Dispatch raises an event on target and bubbles it to the root until a
// listener stops propagation. A nil payload is sent as "{}".
func Dispatch(target *Node, name string, payload []byte) *Event {
	if payload == nil {
		payload = []byte("{}")
	}
	ev := &Event{Name: name, Data: payload, Target: target}
	for n := target; n != nil && !ev.stopped; n = n.Parent {
		if l, ok := n.listeners[name]; ok {
			l(ev)
		}
	}
	return ev
}
