package vdom

import "fmt"

// voidElements are elements that cannot have children.
var voidElements = map[string]bool{
	"area":   true,
	"base":   true,
	"br":     true,
	"col":    true,
	"embed":  true,
	"hr":     true,
	"img":    true,
	"input":  true,
	"link":   true,
	"meta":   true,
	"param":  true,
	"source": true,
	"track":  true,
	"wbr":    true,
}

// IsVoidElement returns true if the tag is a void element.
func IsVoidElement(tag string) bool {
	return voidElements[tag]
}

// KeyArg sets the reconciliation key of the node being built.
type KeyArg string

// Key returns a builder argument that keys the node being built.
func Key(key string) KeyArg { return KeyArg(key) }

// collect sorts variadic builder arguments into key, attributes and
// children. Arguments can be: nil, KeyArg, Attr, []Attr, *Node, []*Node,
// string (shorthand for a text node).
func collect(args []any) (key string, attrs []Attr, children []*Node) {
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
			// Ignore nil (allows conditional arguments)
		case KeyArg:
			key = string(v)
		case Attr:
			attrs = append(attrs, v)
		case []Attr:
			attrs = append(attrs, v...)
		case *Node:
			children = append(children, v)
		case []*Node:
			children = append(children, v...)
		case string:
			children = append(children, NewText("", v))
		default:
			panic(fmt.Sprintf("vdom: unsupported builder argument %T", arg))
		}
	}
	return key, attrs, children
}

// Element builds an HTML element.
func Element(tag string, args ...any) *Node {
	key, attrs, children := collect(args)
	return NewElement(key, "", tag, attrs, children)
}

// ElementNS builds an element in the given namespace.
func ElementNS(namespace, tag string, args ...any) *Node {
	key, attrs, children := collect(args)
	return NewElement(key, namespace, tag, attrs, children)
}

// Fragment groups children without a wrapping element.
func Fragment(args ...any) *Node {
	key, attrs, children := collect(args)
	if len(attrs) > 0 {
		panic("vdom: fragments take no attributes")
	}
	return NewFragment(key, children)
}

// Text builds an unkeyed text node.
func Text(content string) *Node { return NewText("", content) }

// Textf builds a formatted text node.
func Textf(format string, args ...any) *Node { return NewText("", fmt.Sprintf(format, args...)) }

// RawHTML builds an element whose content is html, inserted unescaped.
func RawHTML(tag, html string, args ...any) *Node {
	key, attrs, children := collect(args)
	if len(children) > 0 {
		panic("vdom: raw HTML elements take no children")
	}
	return NewRawHTML(key, "", tag, attrs, html)
}

// Document structure
func Head(args ...any) *Node  { return Element("head", args...) }
func Body(args ...any) *Node  { return Element("body", args...) }
func Title(args ...any) *Node { return Element("title", args...) }

// Sectioning
func Header(args ...any) *Node  { return Element("header", args...) }
func Footer(args ...any) *Node  { return Element("footer", args...) }
func Main(args ...any) *Node    { return Element("main", args...) }
func Nav(args ...any) *Node     { return Element("nav", args...) }
func Section(args ...any) *Node { return Element("section", args...) }
func H1(args ...any) *Node      { return Element("h1", args...) }
func H2(args ...any) *Node      { return Element("h2", args...) }

// Grouping
func Div(args ...any) *Node  { return Element("div", args...) }
func P(args ...any) *Node    { return Element("p", args...) }
func Span(args ...any) *Node { return Element("span", args...) }
func Pre(args ...any) *Node  { return Element("pre", args...) }
func Ul(args ...any) *Node   { return Element("ul", args...) }
func Ol(args ...any) *Node   { return Element("ol", args...) }
func Li(args ...any) *Node   { return Element("li", args...) }
func Hr(args ...any) *Node   { return Element("hr", args...) }
func Br(args ...any) *Node   { return Element("br", args...) }
func A(args ...any) *Node    { return Element("a", args...) }
func Code(args ...any) *Node { return Element("code", args...) }
func Img(args ...any) *Node  { return Element("img", args...) }

// Forms
func Form(args ...any) *Node     { return Element("form", args...) }
func Input(args ...any) *Node    { return Element("input", args...) }
func Textarea(args ...any) *Node { return Element("textarea", args...) }
func Select(args ...any) *Node   { return Element("select", args...) }
func Option(args ...any) *Node   { return Element("option", args...) }
func Button(args ...any) *Node   { return Element("button", args...) }
func Label(args ...any) *Node    { return Element("label", args...) }

// Tables
func Table(args ...any) *Node { return Element("table", args...) }
func Tbody(args ...any) *Node { return Element("tbody", args...) }
func Tr(args ...any) *Node    { return Element("tr", args...) }
func Td(args ...any) *Node    { return Element("td", args...) }
func Th(args ...any) *Node    { return Element("th", args...) }
