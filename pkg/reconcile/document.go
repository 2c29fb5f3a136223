package reconcile

// Handle is an opaque reference to a node of a live tree. Documents decide
// what a handle is; the reconciler only passes handles back to the Document
// that created them.
type Handle any

// NativeEvent is an event raised by a live tree.
type NativeEvent interface {
	Type() string
	// Payload is the JSON form of the event handed to decoders.
	Payload() []byte
	PreventDefault()
	StopPropagation()
}

// Listener receives native events for one (node, event name) pair.
type Listener func(NativeEvent)

// Document is the mutable tree the reconciler drives. A browser DOM, an
// in-memory tree and a remote tree are all valid implementations.
type Document interface {
	CreateElement(namespace, tag string) Handle
	CreateText(content string) Handle
	// CreateFragmentAnchor returns an empty placeholder marking the end of
	// a fragment's children.
	CreateFragmentAnchor() Handle

	// InsertBefore inserts child into parent before ref, or at the end when
	// ref is nil. A child that is already attached is moved.
	InsertBefore(parent, child, ref Handle)
	RemoveChild(parent, child Handle)

	GetAttribute(node Handle, name string) (string, bool)
	SetAttribute(node Handle, name, value string)
	RemoveAttribute(node Handle, name string)
	// SetProperty assigns a property on the live node. A nil value deletes
	// it.
	SetProperty(node Handle, name string, value any)

	// AddListener installs the listener for name, replacing any previous
	// one.
	AddListener(node Handle, name string, l Listener)
	RemoveListener(node Handle, name string)

	SetInnerHTML(node Handle, html string)
	SetText(node Handle, content string)
}
