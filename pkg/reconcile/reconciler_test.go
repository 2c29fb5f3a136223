package reconcile_test

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/vango-dev/vtree/pkg/headless"
	"github.com/vango-dev/vtree/pkg/reconcile"
	"github.com/vango-dev/vtree/pkg/vdom"
	"github.com/vango-dev/vtree/pkg/vtest"
)

func item(k string) *vdom.Node {
	return vdom.Li(vdom.Key(k), vdom.ID(k), vdom.OnClick(k), vdom.Text(k))
}

func list(keys ...string) *vdom.Node {
	items := make([]*vdom.Node, len(keys))
	for i, k := range keys {
		items[i] = item(k)
	}
	return vdom.Div(vdom.Ul(items))
}

func TestPushMatchesFreshMount(t *testing.T) {
	tests := []struct {
		name      string
		old, next *vdom.Node
	}{
		{"swap", list("1", "2"), list("2", "1")},
		{"rotate", list("a", "b", "c"), list("c", "a", "b")},
		{"reverse", list("a", "b", "c", "d"), list("d", "c", "b", "a")},
		{"insert and remove", list("a", "b", "c"), list("x", "b", "y")},
		{"empty to full", list(), list("a", "b")},
		{"full to empty", list("a", "b"), list()},
		{"text", vdom.Div(vdom.P("old"), "tail"), vdom.Div(vdom.P("new"), "tail")},
		{"attributes", vdom.Div(vdom.ID("a"), vdom.Class("x"), vdom.Style("color", "red")), vdom.Div(vdom.ID("a"), vdom.Attribute("title", "t"))},
		{"tag change", vdom.Div(vdom.Span("x"), vdom.P("y")), vdom.Div(vdom.P("x"), vdom.P("y"))},
		{"kind change", vdom.Div(vdom.Text("x")), vdom.Div(vdom.Span("x"))},
		{"raw html", vdom.Div(vdom.RawHTML("section", "<b>a</b>")), vdom.Div(vdom.RawHTML("section", "<i>b</i>", vdom.Class("c")))},
		{
			"fragment grows",
			vdom.Div(vdom.Fragment(vdom.Span("a")), vdom.P("end")),
			vdom.Div(vdom.Fragment(vdom.Span("a"), vdom.Span("b"), vdom.Fragment(vdom.Span("c"))), vdom.P("end")),
		},
		{
			"fragment shrinks to nothing",
			vdom.Div(vdom.Span("start"), vdom.Fragment(vdom.Span("a"), vdom.Span("b")), vdom.P("end")),
			vdom.Div(vdom.Span("start"), vdom.Fragment(), vdom.P("end")),
		},
		{
			"keyed fragments reorder",
			vdom.Ul(vdom.Keyed("a", vdom.Fragment(vdom.Li("a1"), vdom.Li("a2"))), vdom.Keyed("b", vdom.Fragment(vdom.Li("b1"))), vdom.Li(vdom.Key("c"), "c")),
			vdom.Ul(vdom.Li(vdom.Key("c"), "c"), vdom.Keyed("b", vdom.Fragment(vdom.Li("b1"))), vdom.Keyed("a", vdom.Fragment(vdom.Li("a1"), vdom.Li("a2")))),
		},
		{"root replaced", vdom.Div("a"), vdom.Section("b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := vtest.Mount(t, tt.old, reconcile.WithDebug(true))
			h.Render(tt.next)
			vtest.ExpectHTML(t, h, vtest.RenderToString(tt.next))
		})
	}
}

// randomTree builds a list from a random subset of keys in random order,
// mixing element and fragment items so the same key can change kind.
func randomTree(r *rand.Rand) *vdom.Node {
	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	r.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	keys = keys[:r.IntN(len(keys)+1)]

	items := make([]*vdom.Node, len(keys))
	for i, k := range keys {
		label := fmt.Sprintf("%s%d", k, r.IntN(3))
		if r.IntN(4) == 0 {
			items[i] = vdom.Keyed(k, vdom.Fragment(vdom.Span(vdom.ID(k), vdom.OnClick(k), label), vdom.Text("|")))
		} else {
			items[i] = vdom.Li(vdom.Key(k), vdom.ID(k), vdom.OnClick(k), label)
		}
	}
	return vdom.Div(vdom.Ul(items), vdom.P("footer"))
}

func TestPushRandomTrees(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 300; i++ {
		old, next := randomTree(r), randomTree(r)
		h := vtest.Mount(t, old, reconcile.WithDebug(true))
		patch := h.Render(next)

		if got, want := h.HTML(), vtest.RenderToString(next); got != want {
			t.Fatalf("iteration %d: HTML mismatch\n got: %s\nwant: %s\npatch:\n%s", i, got, want, patch)
		}

		// Every handler must still be reachable through its live node.
		for _, li := range next.Children[0].Children {
			k := li.Key
			h.Messages = nil
			h.Fire(headless.ByID(k), "click", nil)
			if len(h.Messages) != 1 || h.Messages[0] != k {
				t.Fatalf("iteration %d: click on %s gave %v (errors %v)", i, k, h.Messages, h.Errors)
			}
		}
	}
}

func TestMovesPreserveIdentity(t *testing.T) {
	h := vtest.Mount(t, list("a", "b", "c"))
	before := map[string]*headless.Node{}
	for _, k := range []string{"a", "b", "c"} {
		before[k] = h.Find(headless.ByID(k))
	}
	h.Doc.ResetStats()

	patch := h.Render(list("c", "a", "b"))
	for op := range patch.Ops() {
		if op != vdom.OpMove {
			t.Errorf("unexpected %s in\n%s", op, patch)
		}
	}
	for k, n := range before {
		if got := h.Find(headless.ByID(k)); got != n {
			t.Errorf("node %s recreated", k)
		}
	}
	if s := h.Doc.Stats(); s.Created != 0 || s.Removed != 0 {
		t.Errorf("Stats = %+v, want no creations or removals", s)
	}
	vtest.ExpectHTML(t, h, `<div><ul><li id="c">c</li><li id="a">a</li><li id="b">b</li></ul></div>`)
}

func TestPushUnknownPath(t *testing.T) {
	bad := &vdom.Patch{Children: []*vdom.Patch{{Index: 0, Changes: []vdom.Change{vdom.NewRemove(5)}}}}

	t.Run("release", func(t *testing.T) {
		h := vtest.Mount(t, list("a"))
		err := h.Rec.Push(bad)
		var upe *reconcile.UnknownPathError
		if !errors.As(err, &upe) || upe.Op != vdom.OpRemove || upe.Index != 5 {
			t.Fatalf("Push() error = %v, want UnknownPathError for Remove", err)
		}
		if !h.Rec.Diverged() {
			t.Error("Diverged() = false")
		}
		ok := &vdom.Patch{}
		ok.Children = []*vdom.Patch{{Index: 0, Changes: []vdom.Change{vdom.NewUpdate([]vdom.Attr{vdom.ID("x")}, nil)}}}
		if err := h.Rec.Push(ok); !errors.Is(err, reconcile.ErrDiverged) {
			t.Errorf("Push() after divergence = %v, want ErrDiverged", err)
		}

		h.Rec.Mount(list("b"))
		if h.Rec.Diverged() {
			t.Error("Mount did not clear divergence")
		}
		if err := h.Rec.Push(ok); err != nil {
			t.Errorf("Push() after remount = %v", err)
		}
	})

	t.Run("debug", func(t *testing.T) {
		h := vtest.Mount(t, list("a"), reconcile.WithDebug(true))
		defer func() {
			if recover() == nil {
				t.Error("Push() did not panic in debug mode")
			}
		}()
		_ = h.Rec.Push(bad)
	})

	t.Run("missing child patch", func(t *testing.T) {
		h := vtest.Mount(t, list("a"))
		err := h.Rec.Push(&vdom.Patch{Children: []*vdom.Patch{{Index: 3, Changes: []vdom.Change{vdom.NewReplaceText("x")}}}})
		if !errors.Is(err, reconcile.ErrDiverged) {
			t.Errorf("Push() = %v, want divergence", err)
		}
	})

	t.Run("op on wrong kind", func(t *testing.T) {
		h := vtest.Mount(t, vdom.Div(vdom.Span("x")))
		err := h.Rec.Push(&vdom.Patch{Children: []*vdom.Patch{{Index: 0, Children: []*vdom.Patch{{Index: 0, Changes: []vdom.Change{vdom.NewReplaceText("y")}}}}}})
		var upe *reconcile.UnknownPathError
		if !errors.As(err, &upe) || upe.Op != vdom.OpReplaceText {
			t.Errorf("Push() = %v, want ReplaceText error", err)
		}
	})
}

func TestPushBeforeMount(t *testing.T) {
	doc := headless.NewDocument()
	r := reconcile.New(doc, doc.NewContainer(), nil)
	if err := r.Push(&vdom.Patch{Removed: 1}); !errors.Is(err, reconcile.ErrNotMounted) {
		t.Errorf("Push() = %v, want ErrNotMounted", err)
	}
}

func TestMountPanicsOnMalformedTreeInDebug(t *testing.T) {
	doc := headless.NewDocument()
	r := reconcile.New(doc, doc.NewContainer(), nil, reconcile.WithDebug(true))
	defer func() {
		err, _ := recover().(error)
		if !errors.Is(err, vdom.ErrMalformedTree) {
			t.Errorf("recover() = %v, want vdom.ErrMalformedTree", err)
		}
	}()
	r.Mount(vdom.Ul(vdom.Li(vdom.Key("a")), vdom.Li(vdom.Key("a"))))
}

func TestUnmount(t *testing.T) {
	h := vtest.Mount(t, list("a", "b"))
	h.Rec.Unmount()
	if len(h.Container.Children) != 0 {
		t.Errorf("container not emptied: %s", h.HTML())
	}
	if h.Rec.Root() != nil {
		t.Error("Root() != nil after Unmount")
	}
}

func TestControlledValueReasserted(t *testing.T) {
	view := func() *vdom.Node {
		return vdom.Div(vdom.Input(vdom.ID("name"), vdom.Value("kept"), vdom.OnInput(func(v string) any { return v })))
	}
	h := vtest.Mount(t, view())
	input := h.Find(headless.ByID("name"))
	if input.Props["value"] != "kept" {
		t.Fatalf("value property = %v, want kept", input.Props["value"])
	}

	// The user types; the program ignores the message and re-renders.
	input.Props["value"] = "typed"
	h.Fire(headless.ByID("name"), "input", []byte(`{"target":{"value":"typed"}}`))
	h.Render(view())

	if input.Props["value"] != "kept" {
		t.Errorf("value property = %v, want kept", input.Props["value"])
	}
}

func TestAttributeRemovalClearsProperty(t *testing.T) {
	h := vtest.Mount(t, vdom.Div(vdom.Input(vdom.ID("c"), vdom.Type("checkbox"), vdom.Checked(true))))
	box := h.Find(headless.ByID("c"))
	if box.Props["checked"] != true {
		t.Fatalf("checked property = %v", box.Props["checked"])
	}
	h.Render(vdom.Div(vdom.Input(vdom.ID("c"), vdom.Type("checkbox"), vdom.Checked(false))))
	if _, ok := box.Props["checked"]; ok {
		t.Error("checked property kept after attribute removal")
	}
	if _, ok := box.Attr("checked"); ok {
		t.Error("checked attribute kept")
	}
}

func TestEventOptions(t *testing.T) {
	h := vtest.Mount(t, vdom.Div(vdom.OnClick("outer"),
		vdom.Form(vdom.ID("f"), vdom.OnSubmit("submit")),
		vdom.Button(vdom.ID("inner"), vdom.OnClick("inner").WithStopPropagation()),
		vdom.Span(vdom.ID("plain"), "bubbles"),
	))

	ev := h.Fire(headless.ByID("f"), "submit", nil)
	if !ev.DefaultPrevented() {
		t.Error("submit default not prevented")
	}

	h.Messages = nil
	h.Fire(headless.ByID("inner"), "click", nil)
	if len(h.Messages) != 1 || h.Messages[0] != "inner" {
		t.Errorf("Messages = %v, want [inner]", h.Messages)
	}

	h.Messages = nil
	h.Fire(headless.ByID("plain"), "click", nil)
	if len(h.Messages) != 1 || h.Messages[0] != "outer" {
		t.Errorf("Messages = %v, want [outer]", h.Messages)
	}
}

func TestListenerRemoved(t *testing.T) {
	h := vtest.Mount(t, vdom.Div(vdom.Button(vdom.ID("b"), vdom.OnClick("x"))))
	button := h.Find(headless.ByID("b"))
	h.Render(vdom.Div(vdom.Button(vdom.ID("b"))))
	if button.Listening("click") {
		t.Error("listener kept after handler removal")
	}
}

func TestMappedEventsThroughReconciler(t *testing.T) {
	type child struct{ Msg any }
	wrap := vdom.MapFunc("child", func(m any) any { return child{m} })
	h := vtest.Mount(t, vdom.Div(vdom.Map(vdom.Button(vdom.ID("b"), vdom.OnClick("inc")), wrap)))
	h.Fire(headless.ByID("b"), "click", nil)
	if len(h.Messages) != 1 || h.Messages[0] != (child{"inc"}) {
		t.Errorf("Messages = %v", h.Messages)
	}
}
