package headless

import (
	"slices"
	"strings"

	"github.com/vango-dev/vtree/pkg/vdom"
)

// Render serialises n and its descendants as HTML. Attributes are written
// in name order; fragment anchors produce no output.
func Render(n *Node) string {
	var b strings.Builder
	render(&b, n)
	return b.String()
}

// RenderChildren serialises the children of n, typically a container.
func RenderChildren(n *Node) string {
	var b strings.Builder
	for _, c := range n.Children {
		render(&b, c)
	}
	return b.String()
}

func render(b *strings.Builder, n *Node) {
	switch n.Type {
	case TextNode:
		b.WriteString(escapeHTML(n.Text))
		return
	case AnchorNode:
		return
	}

	b.WriteByte('<')
	b.WriteString(n.Tag)
	names := make([]string, 0, len(n.Attrs))
	for name := range n.Attrs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		b.WriteByte(' ')
		b.WriteString(name)
		if v := n.Attrs[name]; v != "" {
			b.WriteString(`="`)
			b.WriteString(escapeAttr(v))
			b.WriteByte('"')
		}
	}
	b.WriteByte('>')

	if (n.Namespace == "" || n.Namespace == vdom.HTMLNamespace) && vdom.IsVoidElement(n.Tag) {
		return
	}
	if n.InnerHTML != "" {
		b.WriteString(n.InnerHTML)
	}
	for _, c := range n.Children {
		render(b, c)
	}
	b.WriteString("</")
	b.WriteString(n.Tag)
	b.WriteByte('>')
}

// escapeHTML escapes text for safe inclusion in HTML content.
func escapeHTML(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))

	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		default:
			buf.WriteRune(r)
		}
	}

	return buf.String()
}

// escapeAttr escapes text for safe inclusion in double-quoted attribute
// values.
func escapeAttr(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))

	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '"':
			buf.WriteString("&quot;")
		case '<':
			buf.WriteString("&lt;")
		case '\n':
			buf.WriteString("&#10;")
		default:
			buf.WriteRune(r)
		}
	}

	return buf.String()
}

// Find returns the first node at or below n, in document order, for which
// match returns true.
func Find(n *Node, match func(*Node) bool) *Node {
	if match(n) {
		return n
	}
	for _, c := range n.Children {
		if f := Find(c, match); f != nil {
			return f
		}
	}
	return nil
}

// ByID matches elements by id attribute.
func ByID(id string) func(*Node) bool {
	return func(n *Node) bool {
		return n.Type == ElementNode && n.Attrs["id"] == id
	}
}

// ByTag matches elements by tag name.
func ByTag(tag string) func(*Node) bool {
	return func(n *Node) bool {
		return n.Type == ElementNode && n.Tag == tag
	}
}
