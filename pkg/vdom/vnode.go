package vdom

import "fmt"

// Kind is the node type discriminator.
type Kind uint8

const (
	KindFragment Kind = iota // Grouping without wrapper
	KindElement              // <div>, <button>, etc.
	KindText                 // Plain text node
	KindRawHTML              // Element whose content is an unescaped HTML string
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindFragment:
		return "Fragment"
	case KindElement:
		return "Element"
	case KindText:
		return "Text"
	case KindRawHTML:
		return "RawHTML"
	default:
		return "Unknown"
	}
}

// HTMLNamespace is the namespace used for plain HTML elements. An empty
// namespace is treated the same way.
const HTMLNamespace = "http://www.w3.org/1999/xhtml"

// Node is a virtual tree node. Nodes are immutable once built: view code
// produces a fresh tree per render and the diff only ever reads it.
type Node struct {
	Kind      Kind
	Key       string  // Reconciliation key; "" means positional identity
	Mapper    Mapper  // Message transforms applied to events below this node
	Namespace string  // Element and RawHTML
	Tag       string  // Element and RawHTML
	Attrs     []Attr  // Element and RawHTML, normalised by Prepare
	Children  []*Node // Element and Fragment
	Content   string  // Text
	HTML      string  // RawHTML
	Void      bool    // Element cannot have children

	keyed map[string]*Node

	// Cheap construction-time checks reported by Validate.
	duplicateKey string
	mixedKeys    bool
}

// KeyedChild returns the child with the given key, if any.
func (n *Node) KeyedChild(key string) (*Node, bool) {
	if n == nil || key == "" {
		return nil, false
	}
	c, ok := n.keyed[key]
	return c, ok
}

// String returns a short description of the node for logs and test output.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	key := ""
	if n.Key != "" {
		key = fmt.Sprintf(" key=%q", n.Key)
	}
	switch n.Kind {
	case KindElement:
		return fmt.Sprintf("<%s%s> (%d children)", n.Tag, key, len(n.Children))
	case KindText:
		return fmt.Sprintf("Text(%q)%s", n.Content, key)
	case KindFragment:
		return fmt.Sprintf("Fragment%s (%d children)", key, len(n.Children))
	case KindRawHTML:
		return fmt.Sprintf("<%s%s> raw %d bytes", n.Tag, key, len(n.HTML))
	default:
		return "Unknown"
	}
}

// NewElement builds an element node from already collected parts.
func NewElement(key, namespace, tag string, attrs []Attr, children []*Node) *Node {
	n := &Node{
		Kind:      KindElement,
		Key:       key,
		Namespace: namespace,
		Tag:       tag,
		Attrs:     Prepare(attrs),
		Void:      isHTML(namespace) && IsVoidElement(tag),
	}
	n.setChildren(children)
	return n
}

// NewFragment builds a fragment node from already collected children.
func NewFragment(key string, children []*Node) *Node {
	n := &Node{Kind: KindFragment, Key: key}
	n.setChildren(children)
	return n
}

// NewText builds a text node.
func NewText(key, content string) *Node {
	return &Node{Kind: KindText, Key: key, Content: content}
}

// NewRawHTML builds an element whose content is the given unescaped HTML.
func NewRawHTML(key, namespace, tag string, attrs []Attr, html string) *Node {
	return &Node{
		Kind:      KindRawHTML,
		Key:       key,
		Namespace: namespace,
		Tag:       tag,
		Attrs:     Prepare(attrs),
		HTML:      html,
	}
}

// setChildren drops nil children and indexes the keyed ones.
func (n *Node) setChildren(children []*Node) {
	kept := make([]*Node, 0, len(children))
	keyedCount := 0
	for _, c := range children {
		if c == nil {
			continue
		}
		kept = append(kept, c)
		if c.Key == "" {
			continue
		}
		keyedCount++
		if n.keyed == nil {
			n.keyed = make(map[string]*Node)
		}
		if _, dup := n.keyed[c.Key]; dup {
			if n.duplicateKey == "" {
				n.duplicateKey = c.Key
			}
			continue
		}
		n.keyed[c.Key] = c
	}
	n.Children = kept
	n.mixedKeys = keyedCount > 0 && keyedCount < len(kept)
}

// Keyed returns a copy of node carrying the given key. Keys must be set
// before the node is handed to its parent's constructor.
func Keyed(key string, node *Node) *Node {
	if node == nil {
		return nil
	}
	c := *node
	c.Key = key
	return &c
}

// Map returns a copy of node whose events are passed through step before
// they reach the caller. Steps added by outer Map calls run last.
func Map(node *Node, step MapStep) *Node {
	if node == nil || step == nil {
		return node
	}
	c := *node
	c.Mapper = Compose(Mapper{step}, node.Mapper)
	return &c
}

func isHTML(namespace string) bool {
	return namespace == "" || namespace == HTMLNamespace
}
