package treedoc

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"

	"github.com/vango-dev/vtree/internal/errors"
	"github.com/vango-dev/vtree/pkg/vdom"
)

const (
	propPrefix  = "prop:"
	eventPrefix = "on:"
)

// ParseFile reads the tree document at path.
func ParseFile(path string) (*vdom.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E141").
			WithDetail(err.Error()).
			WithSuggestion("Check the path of the tree document")
	}
	return Parse(path, data)
}

// Parse reads a tree document. name locates errors; when it names a
// readable file the error also carries the surrounding lines.
func Parse(name string, data []byte) (*vdom.Node, error) {
	file, err := parser.ParseBytes(data, 0)
	if err != nil {
		return nil, errors.New("E001").
			WithDetail(yaml.FormatError(err, false, false))
	}
	if len(file.Docs) == 0 || file.Docs[0].Body == nil {
		return nil, errors.New("E001").
			WithDetail(name + " holds no tree")
	}
	if len(file.Docs) > 1 {
		r := &reader{name: name}
		return nil, r.fail("E001", file.Docs[1].Body, "a tree document holds exactly one tree")
	}

	r := &reader{name: name}
	body := file.Docs[0].Body
	root, err := r.node(body)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, r.fail("E003", body, "the root node is null")
	}
	if err := vdom.Validate(root); err != nil {
		return nil, r.fail("E002", body, "%v", err).Wrap(err)
	}
	return root, nil
}

// MustParse is Parse for trees embedded in code and tests.
func MustParse(src string) *vdom.Node {
	n, err := Parse("<inline>", []byte(src))
	if err != nil {
		panic(err)
	}
	return n
}

type reader struct {
	name string
}

func (r *reader) fail(code string, n ast.Node, format string, args ...any) *errors.CodedError {
	line, col := position(n)
	return errors.New(code).
		WithDetail(fmt.Sprintf(format, args...)).
		WithLocation(r.name, line, col)
}

func position(n ast.Node) (line, col int) {
	if n == nil {
		return 0, 0
	}
	tok := n.GetToken()
	if tok == nil || tok.Position == nil {
		return 0, 0
	}
	return tok.Position.Line, tok.Position.Column
}

// unwrap strips anchors and tags.
func unwrap(n ast.Node) ast.Node {
	for {
		switch v := n.(type) {
		case *ast.AnchorNode:
			n = v.Value
		case *ast.TagNode:
			n = v.Value
		default:
			return n
		}
	}
}

// scalar returns the text of a scalar node.
func scalar(n ast.Node) (string, bool) {
	switch v := unwrap(n).(type) {
	case *ast.StringNode:
		return v.Value, true
	case *ast.LiteralNode:
		return v.Value.Value, true
	case *ast.IntegerNode, *ast.FloatNode, *ast.BoolNode, *ast.InfinityNode, *ast.NanNode:
		return v.GetToken().Value, true
	case *ast.NullNode:
		return "", true
	}
	return "", false
}

// pairs returns the entries of a mapping node.
func pairs(n ast.Node) ([]*ast.MappingValueNode, bool) {
	switch v := unwrap(n).(type) {
	case *ast.MappingNode:
		return v.Values, true
	case *ast.MappingValueNode:
		return []*ast.MappingValueNode{v}, true
	}
	return nil, false
}

func isNull(n ast.Node) bool {
	if n == nil {
		return true
	}
	_, ok := unwrap(n).(*ast.NullNode)
	return ok
}

// node converts one node. A null node yields nil, which builders drop.
func (r *reader) node(n ast.Node) (*vdom.Node, error) {
	if isNull(n) {
		return nil, nil
	}
	if s, ok := scalar(n); ok {
		return vdom.Text(s), nil
	}
	if seq, ok := unwrap(n).(*ast.SequenceNode); ok {
		children, err := r.children(seq)
		if err != nil {
			return nil, err
		}
		return vdom.NewFragment("", children), nil
	}

	entries, ok := pairs(n)
	if !ok {
		return nil, r.fail("E003", n, "unsupported YAML node %s", unwrap(n).Type())
	}
	if len(entries) != 1 {
		return nil, r.fail("E003", n, "a node mapping has exactly one entry, got %d", len(entries))
	}
	entry := entries[0]
	name, ok := scalar(entry.Key)
	if !ok || name == "" {
		return nil, r.fail("E003", entry.Key, "node names are plain strings")
	}

	switch name {
	case "text":
		return r.text(entry.Value)
	case "fragment":
		return r.fragment(entry.Value)
	case "raw":
		return r.raw(entry.Value)
	}
	return r.element(name, entry.Value)
}

func (r *reader) children(n ast.Node) ([]*vdom.Node, error) {
	if isNull(n) {
		return nil, nil
	}
	seq, ok := unwrap(n).(*ast.SequenceNode)
	if !ok {
		return nil, r.fail("E003", n, "children must be a sequence")
	}
	out := make([]*vdom.Node, 0, len(seq.Values))
	for _, c := range seq.Values {
		child, err := r.node(c)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

// fields is the body of an element, text, fragment or raw node.
type fields struct {
	key      string
	ns       string
	tag      string
	content  string
	html     string
	attrs    []vdom.Attr
	children []*vdom.Node
}

// readFields decodes a field mapping, accepting only the named fields.
func (r *reader) readFields(n ast.Node, allowed ...string) (*fields, error) {
	entries, ok := pairs(n)
	if !ok {
		return nil, r.fail("E003", n, "expected a mapping of %s", strings.Join(allowed, ", "))
	}
	f := &fields{}
	for _, e := range entries {
		name, _ := scalar(e.Key)
		if !contains(allowed, name) {
			return nil, r.fail("E003", e.Key, "unknown field %q, expected one of %s", name, strings.Join(allowed, ", "))
		}
		var err error
		switch name {
		case "attrs":
			f.attrs, err = r.attrs(e.Value)
		case "children":
			f.children, err = r.children(e.Value)
		default:
			s, ok := scalar(e.Value)
			if !ok {
				return nil, r.fail("E003", e.Value, "field %q must be a scalar", name)
			}
			switch name {
			case "key":
				f.key = s
			case "ns":
				f.ns = s
			case "tag":
				f.tag = s
			case "content":
				f.content = s
			case "html":
				f.html = s
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *reader) element(tag string, body ast.Node) (*vdom.Node, error) {
	if isNull(body) {
		return vdom.NewElement("", "", tag, nil, nil), nil
	}
	if s, ok := scalar(body); ok {
		return vdom.NewElement("", "", tag, nil, []*vdom.Node{vdom.Text(s)}), nil
	}
	if _, ok := unwrap(body).(*ast.SequenceNode); ok {
		children, err := r.children(body)
		if err != nil {
			return nil, err
		}
		return vdom.NewElement("", "", tag, nil, children), nil
	}
	f, err := r.readFields(body, "key", "ns", "attrs", "children")
	if err != nil {
		return nil, err
	}
	return vdom.NewElement(f.key, f.ns, tag, f.attrs, f.children), nil
}

func (r *reader) text(body ast.Node) (*vdom.Node, error) {
	if s, ok := scalar(body); ok {
		return vdom.Text(s), nil
	}
	f, err := r.readFields(body, "key", "content")
	if err != nil {
		return nil, err
	}
	return vdom.NewText(f.key, f.content), nil
}

func (r *reader) fragment(body ast.Node) (*vdom.Node, error) {
	if isNull(body) {
		return vdom.NewFragment("", nil), nil
	}
	if _, ok := unwrap(body).(*ast.SequenceNode); ok {
		children, err := r.children(body)
		if err != nil {
			return nil, err
		}
		return vdom.NewFragment("", children), nil
	}
	f, err := r.readFields(body, "key", "children")
	if err != nil {
		return nil, err
	}
	return vdom.NewFragment(f.key, f.children), nil
}

func (r *reader) raw(body ast.Node) (*vdom.Node, error) {
	f, err := r.readFields(body, "key", "ns", "tag", "attrs", "html")
	if err != nil {
		return nil, err
	}
	if f.tag == "" {
		return nil, r.fail("E003", body, "raw nodes need a tag")
	}
	return vdom.NewRawHTML(f.key, f.ns, f.tag, f.attrs, f.html), nil
}

func (r *reader) attrs(n ast.Node) ([]vdom.Attr, error) {
	if isNull(n) {
		return nil, nil
	}
	entries, ok := pairs(n)
	if !ok {
		return nil, r.fail("E004", n, "attrs must be a mapping")
	}
	out := make([]vdom.Attr, 0, len(entries))
	for _, e := range entries {
		name, _ := scalar(e.Key)
		switch {
		case strings.HasPrefix(name, eventPrefix):
			a, err := r.event(strings.TrimPrefix(name, eventPrefix), e.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, a)

		case strings.HasPrefix(name, propPrefix):
			var v any
			if err := yaml.NodeToValue(e.Value, &v); err != nil {
				return nil, r.fail("E004", e.Value, "property %s: %v", name, err)
			}
			out = append(out, vdom.Property(strings.TrimPrefix(name, propPrefix), normalize(v)))

		default:
			s, ok := scalar(e.Value)
			if !ok {
				return nil, r.fail("E004", e.Value, "attribute %q must be a scalar; use %s%s for structured values", name, propPrefix, name)
			}
			out = append(out, vdom.Attribute(name, s))
		}
	}
	return out, nil
}

// eventOptions is the long form of an on: entry.
type eventOptions struct {
	Message         any    `yaml:"message"`
	Throttle        string `yaml:"throttle"`
	Debounce        string `yaml:"debounce"`
	PreventDefault  bool   `yaml:"preventDefault"`
	StopPropagation bool   `yaml:"stopPropagation"`
}

func (r *reader) event(name string, n ast.Node) (vdom.Attr, error) {
	if name == "" {
		return vdom.Attr{}, r.fail("E004", n, "event name is empty")
	}
	if s, ok := scalar(n); ok {
		return vdom.On(name, vdom.Message(s)), nil
	}

	var opts eventOptions
	if err := yaml.NodeToValue(n, &opts, yaml.Strict()); err != nil {
		return vdom.Attr{}, r.fail("E004", n, "on:%s: %v", name, err)
	}
	a := vdom.On(name, vdom.Message(normalize(opts.Message)))
	if opts.Throttle != "" {
		d, err := time.ParseDuration(opts.Throttle)
		if err != nil {
			return vdom.Attr{}, r.fail("E004", n, "on:%s: throttle %q is not a duration", name, opts.Throttle)
		}
		a = a.WithThrottle(d)
	}
	if opts.Debounce != "" {
		d, err := time.ParseDuration(opts.Debounce)
		if err != nil {
			return vdom.Attr{}, r.fail("E004", n, "on:%s: debounce %q is not a duration", name, opts.Debounce)
		}
		a = a.WithDebounce(d)
	}
	if opts.PreventDefault {
		a = a.WithPreventDefault()
	}
	if opts.StopPropagation {
		a = a.WithStopPropagation()
	}
	return a, nil
}

// normalize maps YAML integers to int so properties compare like the ones
// built in Go.
func normalize(v any) any {
	switch n := v.(type) {
	case uint64:
		return int(n)
	case int64:
		return int(n)
	case []any:
		for i := range n {
			n[i] = normalize(n[i])
		}
	case map[string]any:
		for k := range n {
			n[k] = normalize(n[k])
		}
	}
	return v
}
