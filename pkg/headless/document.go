// Package headless is an in-memory mutable tree implementing
// reconcile.Document. It backs tests and the thin client, and serialises to
// HTML.
package headless

import (
	"fmt"
	"slices"

	"github.com/vango-dev/vtree/pkg/reconcile"
)

// NodeType discriminates headless nodes.
type NodeType uint8

const (
	ElementNode NodeType = iota
	TextNode
	AnchorNode
)

// Node is a live headless node. Nodes are identified by pointer; ID is a
// creation serial kept for readable test output.
type Node struct {
	ID        int
	Type      NodeType
	Namespace string
	Tag       string
	Text      string
	InnerHTML string
	Attrs     map[string]string
	Props     map[string]any
	Parent    *Node
	Children  []*Node

	listeners map[string]reconcile.Listener
}

// Attr returns the attribute value.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// Listening reports whether a listener is installed for name.
func (n *Node) Listening(name string) bool {
	_, ok := n.listeners[name]
	return ok
}

func (n *Node) String() string {
	switch n.Type {
	case TextNode:
		return fmt.Sprintf("#%d text %q", n.ID, n.Text)
	case AnchorNode:
		return fmt.Sprintf("#%d anchor", n.ID)
	default:
		return fmt.Sprintf("#%d <%s>", n.ID, n.Tag)
	}
}

// Stats counts the mutations a Document performed.
type Stats struct {
	Created  int
	Inserted int
	Removed  int
}

// Document is an in-memory reconcile.Document.
type Document struct {
	nextID int
	stats  Stats
}

var _ reconcile.Document = (*Document)(nil)

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{}
}

// Stats returns the mutation counters.
func (d *Document) Stats() Stats { return d.stats }

// ResetStats zeroes the mutation counters.
func (d *Document) ResetStats() { d.stats = Stats{} }

// NewContainer returns a detached element to mount trees into.
func (d *Document) NewContainer() *Node {
	return d.newNode(ElementNode, func(n *Node) { n.Tag = "div" })
}

func (d *Document) newNode(t NodeType, init func(*Node)) *Node {
	d.nextID++
	d.stats.Created++
	n := &Node{ID: d.nextID, Type: t}
	if init != nil {
		init(n)
	}
	return n
}

func node(h reconcile.Handle) *Node {
	n, ok := h.(*Node)
	if !ok || n == nil {
		panic(fmt.Sprintf("headless: foreign handle %T", h))
	}
	return n
}

func (d *Document) CreateElement(namespace, tag string) reconcile.Handle {
	return d.newNode(ElementNode, func(n *Node) {
		n.Namespace = namespace
		n.Tag = tag
	})
}

func (d *Document) CreateText(content string) reconcile.Handle {
	return d.newNode(TextNode, func(n *Node) { n.Text = content })
}

func (d *Document) CreateFragmentAnchor() reconcile.Handle {
	return d.newNode(AnchorNode, nil)
}

func (d *Document) InsertBefore(parent, child, ref reconcile.Handle) {
	p, c := node(parent), node(child)
	if c.Parent != nil {
		c.Parent.detach(c)
	}
	at := len(p.Children)
	if ref != nil {
		r := node(ref)
		at = slices.Index(p.Children, r)
		if at < 0 {
			panic(fmt.Sprintf("headless: %s is not a child of %s", r, p))
		}
	}
	p.Children = slices.Insert(p.Children, at, c)
	c.Parent = p
	d.stats.Inserted++
}

func (d *Document) RemoveChild(parent, child reconcile.Handle) {
	p, c := node(parent), node(child)
	if c.Parent != p {
		panic(fmt.Sprintf("headless: %s is not a child of %s", c, p))
	}
	p.detach(c)
	d.stats.Removed++
}

func (n *Node) detach(c *Node) {
	if i := slices.Index(n.Children, c); i >= 0 {
		n.Children = slices.Delete(n.Children, i, i+1)
	}
	c.Parent = nil
}

func (d *Document) GetAttribute(h reconcile.Handle, name string) (string, bool) {
	return node(h).Attr(name)
}

func (d *Document) SetAttribute(h reconcile.Handle, name, value string) {
	n := node(h)
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	n.Attrs[name] = value
}

func (d *Document) RemoveAttribute(h reconcile.Handle, name string) {
	delete(node(h).Attrs, name)
}

func (d *Document) SetProperty(h reconcile.Handle, name string, value any) {
	n := node(h)
	if value == nil {
		delete(n.Props, name)
		return
	}
	if n.Props == nil {
		n.Props = make(map[string]any)
	}
	n.Props[name] = value
}

func (d *Document) AddListener(h reconcile.Handle, name string, l reconcile.Listener) {
	n := node(h)
	if n.listeners == nil {
		n.listeners = make(map[string]reconcile.Listener)
	}
	n.listeners[name] = l
}

func (d *Document) RemoveListener(h reconcile.Handle, name string) {
	delete(node(h).listeners, name)
}

func (d *Document) SetInnerHTML(h reconcile.Handle, html string) {
	node(h).InnerHTML = html
}

func (d *Document) SetText(h reconcile.Handle, content string) {
	node(h).Text = content
}
