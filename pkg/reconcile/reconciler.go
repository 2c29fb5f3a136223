// Package reconcile applies patches produced by vdom.Diff to a live tree.
//
// A Reconciler owns the live nodes of one mounted root and a metadata tree
// mirroring them. Push applies a patch level by level: the changes of a
// level in order, then its trailing removals, then its child patches
// against the resulting children. Native events raised by the live tree are
// mapped back to a vdom.Path and handed to the Dispatcher, after the
// throttle or debounce configured on the listener.
//
// A Reconciler serialises Mount, Unmount, Push, native events and debounce
// callbacks with its own lock, so a debounce timer firing on its own
// goroutine never races the owner. The Dispatcher is called without the
// lock held; with the default post function a debounced event reaches it
// on the timer's goroutine. Use WithPost to run those callbacks on the
// owning goroutine instead.
package reconcile

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/vango-dev/vtree/pkg/metrics"
	"github.com/vango-dev/vtree/pkg/vdom"
)

// Dispatcher receives events that survived throttling and debouncing.
type Dispatcher func(path, name string, payload []byte)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock sets the clock used for throttling and debouncing.
func WithClock(c Clock) Option {
	return func(r *Reconciler) {
		r.clock = c
	}
}

// WithPost sets the function debounce callbacks are run through. The
// default runs them on the timer's goroutine, under the reconciler's lock.
func WithPost(post func(func())) Option {
	return func(r *Reconciler) {
		r.post = post
	}
}

// WithDebug makes Push panic on patches that do not fit the live tree and
// Mount panic on malformed trees.
func WithDebug(debug bool) Option {
	return func(r *Reconciler) {
		r.debug = debug
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// WithMetrics records patch and timer metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// Reconciler applies patches to one mounted root.
type Reconciler struct {
	doc       Document
	container Handle
	dispatch  Dispatcher

	clock   Clock
	post    func(func())
	debug   bool
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex // guards root, diverged and the Meta tree
	root     *Meta
	diverged bool
}

// New returns a reconciler rendering into container.
func New(doc Document, container Handle, dispatch Dispatcher, opts ...Option) *Reconciler {
	r := &Reconciler{
		doc:       doc,
		container: container,
		dispatch:  dispatch,
		clock:     SystemClock(),
		post:      func(f func()) { f() },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mount discards any previous tree and builds node into the container.
func (r *Reconciler) Mount(node *vdom.Node) {
	if r.debug {
		if err := vdom.Validate(node); err != nil {
			panic(err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unmount()
	r.root = &Meta{kind: vdom.KindElement, handle: r.container}
	r.diverged = false
	if node != nil {
		r.insert(r.root, 0, []*vdom.Node{node}, nil)
	}
}

// Unmount removes the mounted tree and cancels all pending timers.
func (r *Reconciler) Unmount() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unmount()
}

func (r *Reconciler) unmount() {
	if r.root == nil {
		return
	}
	for len(r.root.children) > 0 {
		r.remove(r.root, len(r.root.children)-1)
	}
	r.root = nil
}

// Root returns the container record, or nil before Mount.
func (r *Reconciler) Root() *Meta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.root
}

// Diverged reports whether a patch failed to apply since the last Mount.
func (r *Reconciler) Diverged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.diverged
}

// PendingTimers returns the number of armed debounce timers.
func (r *Reconciler) PendingTimers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.root == nil {
		return 0
	}
	return r.root.pendingTimers()
}

// Push applies a patch produced by diffing the mounted tree.
//
// A patch that addresses a node missing from the live tree panics in debug
// mode. Otherwise Push stops at the offending change, returns an
// *UnknownPathError and refuses every later patch with ErrDiverged until
// the next Mount: the live tree is then in an unknown state and patching it
// further would only compound the damage.
func (r *Reconciler) Push(patch *vdom.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.root == nil:
		return ErrNotMounted
	case r.diverged:
		return ErrDiverged
	case patch.IsEmpty():
		return nil
	}

	if err := r.apply(r.root, patch, []int{patch.Index}); err != nil {
		if r.debug {
			panic(err)
		}
		r.diverged = true
		r.metrics.Diverged()
		r.logger.Error("patch does not fit live tree", "error", err)
		return err
	}
	r.metrics.PatchApplied()
	return nil
}

func (r *Reconciler) apply(m *Meta, p *vdom.Patch, path []int) error {
	for _, c := range p.Changes {
		if err := r.applyChange(m, c); err != nil {
			err.Path = path
			return err
		}
	}

	if p.Removed > len(m.children) {
		return &UnknownPathError{Path: path, Op: vdom.OpRemove, Index: len(m.children) - p.Removed, Reason: "trailing removal past first child"}
	}
	for i := 0; i < p.Removed; i++ {
		r.remove(m, len(m.children)-1)
	}

	for _, child := range p.Children {
		childPath := append(slices.Clip(path), child.Index)
		if child.Index < 0 || child.Index >= len(m.children) {
			return &UnknownPathError{Path: childPath, Index: child.Index, Reason: "no such child"}
		}
		if err := r.apply(m.children[child.Index], child, childPath); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) applyChange(m *Meta, c vdom.Change) *UnknownPathError {
	fail := func(index int, reason string) *UnknownPathError {
		return &UnknownPathError{Op: c.Op, Index: index, Reason: reason}
	}

	switch c.Op {
	case vdom.OpInsert:
		if c.Before < 0 || c.Before > len(m.children) || !hasChildren(m) {
			return fail(c.Before, "insert position out of range")
		}
		r.insert(m, c.Before, c.Children, m.refAt(c.Before))

	case vdom.OpMove:
		if c.Before < 0 || c.Before >= len(m.children) {
			return fail(c.Before, "move position out of range")
		}
		from := -1
		for i := c.Before; i < len(m.children); i++ {
			if m.children[i].key == c.Key {
				from = i
				break
			}
		}
		if from < 0 {
			return fail(c.Before, "no child keyed "+c.Key+" at or after position")
		}
		r.move(m, from, c.Before)

	case vdom.OpRemove:
		if c.Index < 0 || c.Index >= len(m.children) {
			return fail(c.Index, "remove position out of range")
		}
		r.remove(m, c.Index)

	case vdom.OpReplace:
		if c.Index < 0 || c.Index >= len(m.children) {
			return fail(c.Index, "replace position out of range")
		}
		r.replace(m, c.Index, c.With)

	case vdom.OpUpdate:
		if (m.kind != vdom.KindElement && m.kind != vdom.KindRawHTML) || m.parent == nil {
			return fail(0, "update on "+m.kind.String())
		}
		r.update(m, c.Added, c.Removed)

	case vdom.OpReplaceText:
		if m.kind != vdom.KindText {
			return fail(0, "text replaced on "+m.kind.String())
		}
		r.doc.SetText(m.handle, c.Content)

	case vdom.OpReplaceInnerHTML:
		if m.kind != vdom.KindRawHTML {
			return fail(0, "inner HTML replaced on "+m.kind.String())
		}
		r.doc.SetInnerHTML(m.handle, c.Content)

	default:
		return fail(0, "unknown op")
	}
	return nil
}

func hasChildren(m *Meta) bool {
	return m.kind == vdom.KindElement || m.kind == vdom.KindFragment
}

// insert materialises nodes and splices them into m at index, before ref.
func (r *Reconciler) insert(m *Meta, index int, nodes []*vdom.Node, ref Handle) {
	parent := m.domParent()
	created := make([]*Meta, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		c := r.build(n, m)
		for _, h := range c.flatten(nil) {
			r.doc.InsertBefore(parent, h, ref)
		}
		created = append(created, c)
	}
	m.children = slices.Insert(m.children, index, created...)
}

func (r *Reconciler) move(m *Meta, from, to int) {
	if from == to {
		return
	}
	c := m.children[from]
	parent := m.domParent()
	ref := m.children[to].first()
	for _, h := range c.flatten(nil) {
		r.doc.InsertBefore(parent, h, ref)
	}
	m.children = slices.Delete(m.children, from, from+1)
	m.children = slices.Insert(m.children, to, c)
}

func (r *Reconciler) remove(m *Meta, index int) {
	c := m.children[index]
	parent := m.domParent()
	for _, h := range c.flatten(nil) {
		r.doc.RemoveChild(parent, h)
	}
	m.children = slices.Delete(m.children, index, index+1)
	r.destroy(c)
}

func (r *Reconciler) replace(m *Meta, index int, with *vdom.Node) {
	old := m.children[index]
	parent := m.domParent()
	c := r.build(with, m)
	ref := old.first()
	for _, h := range c.flatten(nil) {
		r.doc.InsertBefore(parent, h, ref)
	}
	for _, h := range old.flatten(nil) {
		r.doc.RemoveChild(parent, h)
	}
	m.children[index] = c
	r.destroy(old)
}

// build creates the live nodes and records for n below parent. The nodes
// of n's own children are attached; n's nodes are left to the caller.
func (r *Reconciler) build(n *vdom.Node, parent *Meta) *Meta {
	m := &Meta{kind: n.Kind, key: n.Key, parent: parent}
	switch n.Kind {
	case vdom.KindElement:
		m.handle = r.doc.CreateElement(n.Namespace, n.Tag)
		r.update(m, n.Attrs, nil)
		for _, child := range n.Children {
			c := r.build(child, m)
			for _, h := range c.flatten(nil) {
				r.doc.InsertBefore(m.handle, h, nil)
			}
			m.children = append(m.children, c)
		}
	case vdom.KindText:
		m.handle = r.doc.CreateText(n.Content)
	case vdom.KindRawHTML:
		m.handle = r.doc.CreateElement(n.Namespace, n.Tag)
		r.update(m, n.Attrs, nil)
		r.doc.SetInnerHTML(m.handle, n.HTML)
	case vdom.KindFragment:
		m.handle = r.doc.CreateFragmentAnchor()
		for _, child := range n.Children {
			m.children = append(m.children, r.build(child, m))
		}
	}
	return m
}

// destroy marks a removed subtree detached and cancels its timers.
func (r *Reconciler) destroy(m *Meta) {
	m.detached = true
	for name, d := range m.debouncers {
		if d.timer.Stop() {
			r.metrics.Timer(metrics.TimerCanceled)
		}
		delete(m.debouncers, name)
	}
	for _, c := range m.children {
		r.destroy(c)
	}
}
