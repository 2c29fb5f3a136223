package reconcile

import (
	"time"

	"github.com/vango-dev/vtree/pkg/vdom"
)

// Meta is the reconciler's record of one live node. The metadata tree
// mirrors the virtual tree one to one: a fragment is a single Meta whose
// children are spliced into the enclosing element, followed by an anchor.
type Meta struct {
	kind     vdom.Kind
	key      string
	parent   *Meta
	children []*Meta

	// Element, Text, RawHTML: the live node. Fragment: its end anchor.
	// Container: the mount point.
	handle Handle

	listeners  map[string]vdom.Attr
	debouncers map[string]*debouncer
	throttles  map[string]time.Time

	detached bool
}

type debouncer struct {
	timer Timer
}

// Kind returns the node kind.
func (m *Meta) Kind() vdom.Kind { return m.kind }

// Key returns the node key.
func (m *Meta) Key() string { return m.key }

// Handle returns the live node, or the end anchor of a fragment.
func (m *Meta) Handle() Handle { return m.handle }

// Children returns the child records. The slice must not be modified.
func (m *Meta) Children() []*Meta { return m.children }

// Detached reports whether the node was removed from the live tree.
func (m *Meta) Detached() bool { return m.detached }

// Path returns the structural address of the node, matching the one the
// diff registered its handlers under.
func (m *Meta) Path() vdom.Path {
	var chain []*Meta
	for n := m; n.parent != nil; n = n.parent {
		chain = append(chain, n)
	}
	path := vdom.Root
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		path = path.Add(n.parent.indexOf(n), n.key)
	}
	return path
}

func (m *Meta) indexOf(child *Meta) int {
	for i, c := range m.children {
		if c == child {
			return i
		}
	}
	return -1
}

// flatten returns the live nodes the record occupies among its DOM
// siblings, in order.
func (m *Meta) flatten(out []Handle) []Handle {
	if m.kind != vdom.KindFragment {
		return append(out, m.handle)
	}
	for _, c := range m.children {
		out = c.flatten(out)
	}
	return append(out, m.handle)
}

// first returns the first live node the record occupies.
func (m *Meta) first() Handle {
	if m.kind == vdom.KindFragment && len(m.children) > 0 {
		return m.children[0].first()
	}
	return m.handle
}

// domParent returns the live node the record's own nodes are children of.
func (m *Meta) domParent() Handle {
	n := m
	for n.kind == vdom.KindFragment && n.parent != nil {
		n = n.parent
	}
	return n.handle
}

// refAt returns the live node a record inserted at index must precede, or
// nil to append.
func (m *Meta) refAt(index int) Handle {
	if index < len(m.children) {
		return m.children[index].first()
	}
	if m.kind == vdom.KindFragment {
		return m.handle
	}
	return nil
}

// pendingTimers counts armed debounce timers at and below m.
func (m *Meta) pendingTimers() int {
	n := len(m.debouncers)
	for _, c := range m.children {
		n += c.pendingTimers()
	}
	return n
}
