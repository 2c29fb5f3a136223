package treedoc

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vango-dev/vtree/internal/errors"
	"github.com/vango-dev/vtree/pkg/headless"
	"github.com/vango-dev/vtree/pkg/reconcile"
	"github.com/vango-dev/vtree/pkg/vdom"
)

func render(t *testing.T, n *vdom.Node) string {
	t.Helper()
	doc := headless.NewDocument()
	container := doc.NewContainer()
	reconcile.New(doc, container, nil).Mount(n)
	return headless.RenderChildren(container)
}

func TestParseShapes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"text", "hello", "hello"},
		{"element with text", "p: hi", "<p>hi</p>"},
		{"empty element", "div:", "<div></div>"},
		{
			"children",
			"ul:\n  - li: a\n  - li: b\n",
			"<ul><li>a</li><li>b</li></ul>",
		},
		{
			"fields",
			"div:\n  attrs:\n    class: box\n    id: main\n  children:\n    - span: x\n",
			`<div class="box" id="main"><span>x</span></div>`,
		},
		{
			"fragment",
			"div:\n  - fragment:\n      - b: 1\n      - i: 2\n",
			"<div><b>1</b><i>2</i></div>",
		},
		{
			"raw",
			"raw:\n  tag: div\n  html: \"<b>x</b>\"\n",
			"<div><b>x</b></div>",
		},
		{
			"text field form",
			"p:\n  - text:\n      content: long form\n",
			"<p>long form</p>",
		},
		{
			"null children are dropped",
			"div:\n  - a: x\n  - null\n",
			"<div><a>x</a></div>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Parse("test.yaml", []byte(tt.src))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := render(t, n); got != tt.want {
				t.Errorf("render = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseKeysAndNamespaces(t *testing.T) {
	n := MustParse(`
ul:
  - li:
      key: a
      children: [A]
  - li:
      key: b
      children: [B]
`)
	if len(n.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(n.Children))
	}
	for i, want := range []string{"a", "b"} {
		if got := n.Children[i].Key; got != want {
			t.Errorf("child %d key = %q, want %q", i, got, want)
		}
	}
	if _, ok := n.KeyedChild("b"); !ok {
		t.Error("KeyedChild(b) missing")
	}

	svg := MustParse("svg:\n  ns: http://www.w3.org/2000/svg\n")
	if svg.Namespace != "http://www.w3.org/2000/svg" || svg.Tag != "svg" {
		t.Errorf("svg = %s ns %q", svg, svg.Namespace)
	}
}

func TestParseAttributes(t *testing.T) {
	n := MustParse(`
input:
  attrs:
    type: text
    "prop:value": 42
    "on:click": inc
    "on:input":
      message: typed
      throttle: 100ms
      preventDefault: true
`)
	byName := map[string]vdom.Attr{}
	for _, a := range n.Attrs {
		byName[a.Kind.String()+":"+a.Name] = a
	}

	if a, ok := byName[vdom.AttrAttribute.String()+":type"]; !ok || a.Value != "text" {
		t.Errorf("type attribute = %+v", a)
	}
	if a, ok := byName[vdom.AttrProperty.String()+":value"]; !ok || a.Prop != 42 {
		t.Errorf("value property = %+v, want 42", a.Prop)
	}
	click, ok := byName[vdom.AttrEvent.String()+":click"]
	if !ok {
		t.Fatal("click event missing")
	}
	if msg, err := click.Decoder.Decode(nil); err != nil || msg != "inc" {
		t.Errorf("click message = %v, %v, want inc", msg, err)
	}
	input := byName[vdom.AttrEvent.String()+":input"]
	if input.Throttle != 100*time.Millisecond || !input.PreventDefault || input.StopPropagation {
		t.Errorf("input event = %+v", input)
	}
}

func TestParseDiffs(t *testing.T) {
	old := MustParse("ul:\n  - li: {key: \"1\", children: [one]}\n  - li: {key: \"2\", children: [two]}\n")
	next := MustParse("ul:\n  - li: {key: \"2\", children: [two]}\n  - li: {key: \"1\", children: [one]}\n")

	patch, _ := vdom.Diff(vdom.NewEvents(), old, next)
	ops := patch.Ops()
	if ops[vdom.OpMove] != 1 || len(ops) != 1 {
		t.Errorf("Ops() = %v, want a single Move", ops)
	}
}

func code(err error) string {
	var ce *errors.CodedError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		line int
	}{
		{"syntax", "div: [unclosed\n", "E001", 0},
		{"empty", "", "E001", 0},
		{"two documents", "p: a\n---\np: b\n", "E001", 3},
		{"two tags", "div: a\nspan: b\n", "E003", 1},
		{"unknown field", "div:\n  colour: red\n", "E003", 2},
		{"children not a list", "div:\n  children: x\n", "E003", 2},
		{"raw without tag", "raw:\n  html: x\n", "E003", 2},
		{"null root", "null\n", "E003", 1},
		{"structured attribute", "div:\n  attrs:\n    class: [a, b]\n", "E004", 3},
		{"bad throttle", "div:\n  attrs:\n    \"on:click\":\n      throttle: soon\n", "E004", 4},
		{"unknown event option", "div:\n  attrs:\n    \"on:click\":\n      mesage: x\n", "E004", 4},
		{"duplicate keys", "ul:\n  - li: {key: a}\n  - li: {key: a}\n", "E002", 1},
		{"mixed keys", "ul:\n  - li: {key: a}\n  - li: b\n", "E002", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.yaml", []byte(tt.src))
			if err == nil {
				t.Fatal("Parse() succeeded")
			}
			if got := code(err); got != tt.code {
				t.Errorf("code = %q, want %q (%v)", got, tt.code, err)
			}
			var ce *errors.CodedError
			stderrors.As(err, &ce)
			if tt.line > 0 && (ce.Location == nil || ce.Location.Line != tt.line) {
				t.Errorf("Location = %v, want line %d", ce.Location, tt.line)
			}
		})
	}
}

func TestMalformedWrapsVdomError(t *testing.T) {
	_, err := Parse("test.yaml", []byte("ul:\n  - li: {key: a}\n  - li: {key: a}\n"))
	if !stderrors.Is(err, vdom.ErrMalformedTree) {
		t.Errorf("err = %v, want it to match vdom.ErrMalformedTree", err)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.yaml")
	if err := os.WriteFile(path, []byte("div:\n  attrs:\n    class: [x]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := ParseFile(path)
	var ce *errors.CodedError
	if !stderrors.As(err, &ce) || ce.Code != "E004" {
		t.Fatalf("ParseFile() = %v, want E004", err)
	}
	if ce.Location == nil || ce.Location.File != path || len(ce.Context) == 0 {
		t.Errorf("Location = %v, Context = %v", ce.Location, ce.Context)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.yaml")); code(err) != "E141" {
		t.Errorf("ParseFile(missing) = %v, want E141", err)
	}
}
