package vdom

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Handler is the decoded result of a native event.
type Handler struct {
	Message         any
	PreventDefault  bool
	StopPropagation bool
}

// Event registry errors. Both are non-fatal: an event that cannot be
// decoded is an expected race against a re-render that changed or removed
// its handler.
var (
	ErrUnhandled = errors.New("vdom: event unhandled")
	ErrNoHandler = fmt.Errorf("%w: no handler registered", ErrUnhandled)
)

// UnhandledError reports a payload that did not fit the registered decoder.
type UnhandledError struct {
	Path  string
	Event string
	Err   error
}

func (e *UnhandledError) Error() string {
	return fmt.Sprintf("vdom: event %q at %q unhandled: %v", e.Event, e.Path, e.Err)
}

// Unwrap returns the decoder error.
func (e *UnhandledError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnhandled) true for decode mismatches.
func (e *UnhandledError) Is(target error) bool { return target == ErrUnhandled }

type registration struct {
	decoder         Decoder
	mapper          Mapper
	preventDefault  bool
	stopPropagation bool
}

// Events maps (path, event name) to decoders and remembers which paths have
// produced events.
//
// The dispatched set is double-buffered: paths recorded by Handle land in
// the next buffer and only become visible to HasDispatchedEvents after the
// following Tick. A form element is therefore only treated as controlled
// once an event from it has actually been observed.
//
// Events values are persistent. Diff and Handle return a new value and leave
// the receiver untouched, so one value can be inspected while the next cycle
// is built.
type Events struct {
	handlers   map[string]registration
	dispatched []string
	next       []string
}

// NewEvents returns an empty registry.
func NewEvents() *Events {
	return &Events{handlers: make(map[string]registration)}
}

// EventsFrom returns a registry holding every handler of a freshly mounted
// tree.
func EventsFrom(root *Node) *Events {
	e := NewEvents()
	e.addChild(nil, Root, 0, root)
	return e
}

// Tick starts a new diff cycle: the paths dispatched since the previous tick
// become the dispatched set. The returned registry owns a private copy of
// the handler table.
func (e *Events) Tick() *Events {
	if e == nil {
		return NewEvents()
	}
	return &Events{
		handlers:   maps.Clone(e.handlers),
		dispatched: e.next,
	}
}

// Len returns the number of registered handlers.
func (e *Events) Len() int {
	if e == nil {
		return 0
	}
	return len(e.handlers)
}

// Has reports whether a handler is registered for the event at path.
func (e *Events) Has(path, name string) bool {
	if e == nil {
		return false
	}
	_, ok := e.handlers[EventKey(path, name)]
	return ok
}

// Handle decodes a native event payload. The path is recorded as
// dispatched whatever the outcome. A missing handler yields ErrNoHandler and
// a payload the decoder rejects yields an *UnhandledError; neither is fatal.
func (e *Events) Handle(path, name string, payload []byte) (*Events, Handler, error) {
	if e == nil {
		e = NewEvents()
	}
	// The handler table is shared: it is never written outside a diff.
	out := &Events{
		handlers:   e.handlers,
		dispatched: e.dispatched,
		next:       append(slices.Clip(e.next), path),
	}

	reg, ok := out.handlers[EventKey(path, name)]
	if !ok || reg.decoder == nil {
		return out, Handler{}, ErrNoHandler
	}

	msg, err := safeDecode(reg.decoder, payload)
	if err != nil {
		return out, Handler{}, &UnhandledError{Path: path, Event: name, Err: err}
	}
	return out, Handler{
		Message:         reg.mapper.Apply(msg),
		PreventDefault:  reg.preventDefault,
		StopPropagation: reg.stopPropagation,
	}, nil
}

func safeDecode(d Decoder, payload []byte) (msg any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return d.Decode(payload)
}

// HasDispatchedEvents reports whether, in the previous completed cycle, an
// event was observed at path or below it.
func (e *Events) HasDispatchedEvents(path Path) bool {
	if e == nil || len(e.dispatched) == 0 {
		return false
	}
	p := path.String()
	for _, d := range e.dispatched {
		if IsPathPrefix(p, d) {
			return true
		}
	}
	return false
}

// The mutators below are only used on a registry owned by the running diff
// (a fresh Tick or EventsFrom) and modify it in place.

func (e *Events) addEvent(mapper Mapper, path Path, a Attr) {
	e.handlers[path.EventKey(a.Name)] = registration{
		decoder:         a.Decoder,
		mapper:          mapper,
		preventDefault:  a.PreventDefault,
		stopPropagation: a.StopPropagation,
	}
}

func (e *Events) removeEvent(path Path, name string) {
	delete(e.handlers, path.EventKey(name))
}

func (e *Events) addAttributes(mapper Mapper, path Path, attrs []Attr) {
	for _, a := range attrs {
		if a.Kind == AttrEvent {
			e.addEvent(mapper, path, a)
		}
	}
}

func (e *Events) removeAttributes(path Path, attrs []Attr) {
	for _, a := range attrs {
		if a.Kind == AttrEvent {
			e.removeEvent(path, a.Name)
		}
	}
}

func (e *Events) addChild(mapper Mapper, parent Path, index int, child *Node) {
	if child == nil || child.Kind == KindText {
		return
	}
	path := parent.Add(index, child.Key)
	composed := Compose(mapper, child.Mapper)
	switch child.Kind {
	case KindElement:
		e.addAttributes(composed, path, child.Attrs)
		e.addChildren(composed, path, 0, child.Children)
	case KindFragment:
		e.addChildren(composed, path, 0, child.Children)
	case KindRawHTML:
		e.addAttributes(composed, path, child.Attrs)
	}
}

func (e *Events) addChildren(mapper Mapper, parent Path, first int, children []*Node) {
	for i, c := range children {
		e.addChild(mapper, parent, first+i, c)
	}
}

func (e *Events) removeChild(parent Path, index int, child *Node) {
	if child == nil || child.Kind == KindText {
		return
	}
	path := parent.Add(index, child.Key)
	switch child.Kind {
	case KindElement:
		e.removeAttributes(path, child.Attrs)
		for i, c := range child.Children {
			e.removeChild(path, i, c)
		}
	case KindFragment:
		for i, c := range child.Children {
			e.removeChild(path, i, c)
		}
	case KindRawHTML:
		e.removeAttributes(path, child.Attrs)
	}
}
