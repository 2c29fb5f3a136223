package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/vango-dev/vtree/pkg/vdom"
)

// wireEqual ignores what never crosses the wire.
var wireEqual = cmp.Options{
	cmpopts.IgnoreUnexported(vdom.Node{}),
	cmpopts.IgnoreFields(vdom.Node{}, "Mapper"),
	cmpopts.IgnoreFields(vdom.Attr{}, "Decoder"),
	cmpopts.EquateEmpty(),
}

func sampleTree() *vdom.Node {
	return vdom.Div(vdom.ID("app"), vdom.Class("root", "dark"),
		vdom.H1(vdom.Text("Todos")),
		vdom.Ul(
			vdom.Li(vdom.Key("a"), vdom.Text("first")),
			vdom.Li(vdom.Key("b"), vdom.Text("second"), vdom.OnClick("toggle-b")),
		),
		vdom.Input(vdom.Type("text"), vdom.Value("draft"),
			vdom.OnInput(func(v string) any { return v }).WithDebounce(250*time.Millisecond),
		),
		vdom.Form(vdom.OnSubmit("save")),
		vdom.Fragment(vdom.Text("x"), vdom.Span(vdom.Text("y"))),
		vdom.RawHTML("article", "<b>bold</b>", vdom.Class("md")),
		vdom.ElementNS("http://www.w3.org/2000/svg", "svg", vdom.Attribute("viewBox", "0 0 1 1")),
		vdom.Div(
			vdom.Property("scrollTop", 10),
			vdom.Property("ratio", 0.5),
			vdom.Property("open", true),
			vdom.Property("label", "l"),
			vdom.Property("cleared", nil),
		),
	)
}

func TestNodeRoundTrip(t *testing.T) {
	want := sampleTree()
	got, err := DecodeNode(EncodeNode(want))
	if err != nil {
		t.Fatalf("DecodeNode() error = %v", err)
	}
	if diff := cmp.Diff(want, got, wireEqual); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	list := got.Children[1]
	if b, ok := list.KeyedChild("b"); !ok || b.Children[0].Content != "second" {
		t.Error("decoded node lost its keyed child index")
	}
	if !got.Children[2].Void {
		t.Error("decoded input is not void")
	}
}

func TestEventOptionsRoundTrip(t *testing.T) {
	n := vdom.Button(vdom.On("click", vdom.Message(1)).
		WithThrottle(time.Second).WithPreventDefault().WithStopPropagation())
	got, err := DecodeNode(EncodeNode(n))
	if err != nil {
		t.Fatal(err)
	}
	a := got.Attrs[0]
	if a.Kind != vdom.AttrEvent || a.Name != "click" {
		t.Fatalf("attr = %s, want on:click", a)
	}
	if !a.PreventDefault || !a.StopPropagation || a.Throttle != time.Second || a.Debounce != 0 {
		t.Errorf("options = %+v", a)
	}
	if a.Decoder != nil {
		t.Error("decoder crossed the wire")
	}
}

func TestPropertyFallsBackToJSON(t *testing.T) {
	n := vdom.Div(vdom.Property("items", []string{"a", "b"}))
	got, err := DecodeNode(EncodeNode(n))
	if err != nil {
		t.Fatal(err)
	}
	raw, ok := got.Attrs[0].Prop.(json.RawMessage)
	if !ok || string(raw) != `["a","b"]` {
		t.Errorf("Prop = %#v, want raw JSON", got.Attrs[0].Prop)
	}
}

func TestPatchRoundTrip(t *testing.T) {
	old := sampleTree()
	next := vdom.Div(vdom.ID("app"), vdom.Class("root"),
		vdom.H1(vdom.Text("Done")),
		vdom.Ul(
			vdom.Li(vdom.Key("c"), vdom.Text("third")),
			vdom.Li(vdom.Key("b"), vdom.Text("second")),
			vdom.Li(vdom.Key("a"), vdom.Text("first!")),
		),
		vdom.Textarea(),
		vdom.RawHTML("article", "<i>it</i>", vdom.Class("md")),
	)

	want, _ := vdom.Diff(nil, old, next)
	if want.IsEmpty() {
		t.Fatal("Diff() produced an empty patch")
	}
	got, err := DecodePatch(EncodePatch(want))
	if err != nil {
		t.Fatalf("DecodePatch() error = %v", err)
	}
	if diff := cmp.Diff(want, got, wireEqual); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Ops(), got.Ops()); diff != "" {
		t.Errorf("Ops() mismatch (-want +got):\n%s", diff)
	}
}

func TestNilPatchEncodesEmpty(t *testing.T) {
	got, err := DecodePatch(EncodePatch(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsEmpty() {
		t.Errorf("DecodePatch(EncodePatch(nil)) = %v, want empty", got)
	}
}

func TestTruncatedInputNeverPanics(t *testing.T) {
	p, _ := vdom.Diff(nil, vdom.Div(), sampleTree())
	data := EncodePatch(p)
	for i := 0; i < len(data); i++ {
		if _, err := DecodePatch(data[:i]); err == nil {
			t.Fatalf("DecodePatch(data[:%d]) succeeded on truncated input", i)
		}
	}
	if _, err := DecodePatch(append(data, 0)); !errors.Is(err, ErrTrailingBytes) {
		t.Errorf("trailing byte: err = %v, want ErrTrailingBytes", err)
	}
}

func TestNodeDepthLimit(t *testing.T) {
	deep := vdom.Text("leaf")
	for i := 0; i < MaxNodeDepth; i++ {
		deep = vdom.Div(deep)
	}
	if _, err := DecodeNode(EncodeNode(deep)); !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("err = %v, want ErrMaxDepthExceeded", err)
	}

	shallow := vdom.Text("leaf")
	for i := 0; i < MaxNodeDepth-1; i++ {
		shallow = vdom.Div(shallow)
	}
	if _, err := DecodeNode(EncodeNode(shallow)); err != nil {
		t.Errorf("tree at the limit rejected: %v", err)
	}
}

func TestPatchDepthLimit(t *testing.T) {
	p := &vdom.Patch{}
	for i := 0; i < MaxPatchDepth; i++ {
		p = &vdom.Patch{Children: []*vdom.Patch{p}}
	}
	if _, err := DecodePatch(EncodePatch(p)); !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("err = %v, want ErrMaxDepthExceeded", err)
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"unknown node kind", []byte{0x09, 0x00}, ErrInvalidNode},
		{"huge child count", []byte{byte(vdom.KindFragment), 0x00, 0xff, 0xff, 0xff, 0x7f}, ErrCollectionTooLarge},
		{"huge string", []byte{byte(vdom.KindText), 0x00, 0xff, 0xff, 0xff, 0x7f}, ErrAllocationTooLarge},
		{"varint overflow", []byte{byte(vdom.KindText), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, ErrVarintOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeNode(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	bad := []byte{0x00, 0x00, 0x01, 0x7e, 0x00}
	if _, err := DecodePatch(bad); !errors.Is(err, ErrInvalidChange) {
		t.Errorf("unknown op: err = %v, want ErrInvalidChange", err)
	}
}
