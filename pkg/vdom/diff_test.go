package vdom

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// at descends into the patch tree by child-patch index.
func at(t *testing.T, p *Patch, indices ...int) *Patch {
	t.Helper()
	for _, idx := range indices {
		var found *Patch
		for _, c := range p.Children {
			if c.Index == idx {
				found = c
			}
		}
		if found == nil {
			t.Fatalf("no child patch at %d in\n%s", idx, p)
		}
		p = found
	}
	return p
}

var ignoreNodes = cmpopts.IgnoreFields(Change{}, "Children", "With", "Added", "Removed")

func keyedItems(keys ...string) *Node {
	items := make([]*Node, len(keys))
	for i, k := range keys {
		items[i] = Li(Key(k), Text(k))
	}
	return Ul(items)
}

func sampleTrees() map[string]*Node {
	return map[string]*Node{
		"text":     Text("hello"),
		"element":  Div(ID("main"), Class("a", "b"), P("one"), P("two")),
		"keyed":    keyedItems("a", "b", "c"),
		"fragment": Div(Fragment(Span("x"), Fragment(Span("y"), Text("z"))), Fragment()),
		"raw":      Div(RawHTML("div", "<b>bold</b>", Class("raw"))),
		"events":   Form(OnSubmit("save"), Input(Value("v"), Property("scrollTop", 0), OnInput(func(v string) any { return v }))),
		"svg":      ElementNS("http://www.w3.org/2000/svg", "svg", ElementNS("http://www.w3.org/2000/svg", "circle", Attribute("r", "4"))),
	}
}

func TestDiffIdempotent(t *testing.T) {
	for name, tree := range sampleTrees() {
		t.Run(name, func(t *testing.T) {
			patch, _ := Diff(EventsFrom(tree), tree, tree)
			if !patch.IsEmpty() {
				t.Errorf("Diff(T, T) not empty:\n%s", patch)
			}
		})
	}
}

func TestDiffKeyedSwap(t *testing.T) {
	old := Ul(Keyed("1", Text("a")), Keyed("2", Text("b")))
	next := Ul(Keyed("2", Text("b")), Keyed("1", Text("a")))

	patch, _ := Diff(NewEvents(), old, next)
	ul := at(t, patch, 0)

	// Moving "1" before index 0 would be a no-op; the change relocates "2".
	want := []Change{NewMove("2", 0)}
	if diff := cmp.Diff(want, ul.Changes, ignoreNodes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if ul.Removed != 0 || len(ul.Children) != 0 {
		t.Errorf("Removed = %d, Children = %d, want 0, 0", ul.Removed, len(ul.Children))
	}
}

func TestDiffKeyStability(t *testing.T) {
	patch, _ := Diff(NewEvents(), keyedItems("a", "b", "c"), keyedItems("c", "a", "b"))
	ops := patch.Ops()
	if ops[OpMove] == 0 {
		t.Fatal("no Move emitted")
	}
	for op, n := range ops {
		if op != OpMove && n > 0 {
			t.Errorf("unexpected %d x %s in\n%s", n, op, patch)
		}
	}
}

func TestDiffSiblingOps(t *testing.T) {
	tests := []struct {
		name    string
		old     *Node
		next    *Node
		want    []Change
		removed int
	}{
		{
			name: "append",
			old:  keyedItems("a"),
			next: keyedItems("a", "b", "c"),
			want: []Change{NewInsert(nil, 1)},
		},
		{
			name:    "truncate",
			old:     keyedItems("a", "b", "c"),
			next:    keyedItems("a"),
			removed: 2,
		},
		{
			name: "remove head",
			old:  keyedItems("a", "b", "c"),
			next: keyedItems("b", "c"),
			want: []Change{NewRemove(0)},
		},
		{
			name: "insert middle",
			old:  keyedItems("a", "c"),
			next: keyedItems("a", "b", "c"),
			want: []Change{NewInsert(nil, 1)},
		},
		{
			name: "replace unmatched",
			old:  keyedItems("a", "x", "c"),
			next: keyedItems("a", "y", "c"),
			want: []Change{NewReplace(1, nil)},
		},
		{
			name: "reverse",
			old:  keyedItems("a", "b", "c"),
			next: keyedItems("c", "b", "a"),
			want: []Change{NewMove("c", 0), NewMove("b", 1)},
		},
		{
			name:    "move and drop",
			old:     keyedItems("a", "b", "c", "d"),
			next:    keyedItems("d", "a"),
			want:    []Change{NewMove("d", 0)},
			removed: 2,
		},
		{
			name:    "unkeyed grow and shrink",
			old:     Ul(Li("1"), Li("2"), Li("3")),
			next:    Ul(Li("1")),
			removed: 2,
		},
		{
			name: "tag change",
			old:  Div(Span("x")),
			next: Div(P("x")),
			want: []Change{NewReplace(0, nil)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, _ := Diff(NewEvents(), tt.old, tt.next)
			level := at(t, patch, 0)
			if diff := cmp.Diff(tt.want, level.Changes, ignoreNodes, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("changes mismatch (-want +got):\n%s", diff)
			}
			if level.Removed != tt.removed {
				t.Errorf("Removed = %d, want %d", level.Removed, tt.removed)
			}
		})
	}
}

func TestDiffInsertCarriesNodes(t *testing.T) {
	patch, _ := Diff(NewEvents(), keyedItems("a"), keyedItems("a", "b", "c"))
	ins := at(t, patch, 0).Changes[0]
	if len(ins.Children) != 2 || ins.Children[0].Key != "b" || ins.Children[1].Key != "c" {
		t.Errorf("Insert children = %v", ins.Children)
	}
}

func TestDiffText(t *testing.T) {
	patch, _ := Diff(NewEvents(), P("old"), P("new"))
	text := at(t, patch, 0, 0)
	want := []Change{NewReplaceText("new")}
	if diff := cmp.Diff(want, text.Changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffAttributes(t *testing.T) {
	old := Div(ID("a"), Class("x"), Attribute("title", "t"))
	next := Div(ID("b"), Class("x"), Attribute("lang", "en"))

	patch, _ := Diff(NewEvents(), old, next)
	div := at(t, patch, 0)
	if len(div.Changes) != 1 || div.Changes[0].Op != OpUpdate {
		t.Fatalf("changes = %v, want one Update", div.Changes)
	}
	up := div.Changes[0]
	if diff := cmp.Diff([]string{"lang", "id"}, attrNames(up.Added)); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"title"}, attrNames(up.Removed)); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffUpdateComesFirst(t *testing.T) {
	patch, _ := Diff(NewEvents(), Div(ID("a"), keyedItems("a")), Div(ID("b"), keyedItems("a")))
	div := at(t, patch, 0)
	if len(div.Changes) == 0 || div.Changes[0].Op != OpUpdate {
		t.Fatalf("first change = %v, want Update", div.Changes)
	}
}

func TestDiffVolatileProperty(t *testing.T) {
	tree := Div(Property("scrollLeft", 10))
	patch, _ := Diff(NewEvents(), tree, tree)
	if patch.IsEmpty() {
		t.Fatal("scrollLeft not reasserted")
	}
	if got := at(t, patch, 0).Changes[0].Added; len(got) != 1 || got[0].Name != "scrollLeft" {
		t.Errorf("added = %v", got)
	}
}

func TestDiffControlledForcing(t *testing.T) {
	view := func() *Node {
		return Div(Input(Value("typed"), OnInput(func(v string) any { return v })))
	}
	input := Root.Add(0, "").Add(0, "")

	events := EventsFrom(view())
	patch, events := Diff(events, view(), view())
	if !patch.IsEmpty() {
		t.Fatalf("value forced before any dispatch:\n%s", patch)
	}

	events, _, err := events.Handle(input.String(), "input", []byte(`{"target":{"value":"typed!"}}`))
	if err != nil {
		t.Fatal(err)
	}
	patch, events = Diff(events, view(), view())
	update := at(t, patch, 0, 0).Changes
	if len(update) != 1 || len(update[0].Added) != 1 || update[0].Added[0].Name != "value" {
		t.Fatalf("value not forced after dispatch:\n%s", patch)
	}

	patch, _ = Diff(events, view(), view())
	if !patch.IsEmpty() {
		t.Errorf("value still forced with no new dispatch:\n%s", patch)
	}
}

func TestDiffControlledOnlyFormElements(t *testing.T) {
	view := func() *Node { return Div(Attribute("value", "x"), OnClick(1)) }
	events := EventsFrom(view())
	events, _, _ = events.Handle("0", "click", nil)
	patch, _ := Diff(events, view(), view())
	if !patch.IsEmpty() {
		t.Errorf("div value forced:\n%s", patch)
	}
}

func TestDiffEvents(t *testing.T) {
	old := Button(OnClick("old"))
	next := Button(OnClick("new"))

	patch, events := Diff(EventsFrom(old), old, next)
	if !patch.IsEmpty() {
		t.Errorf("decoder swap produced changes:\n%s", patch)
	}
	_, h, err := events.Handle("0", "click", nil)
	if err != nil || h.Message != "new" {
		t.Errorf("Handle() = %v, %v, want new decoder", h.Message, err)
	}

	debounced := Button(OnClick("new").WithDebounce(time.Second))
	patch, _ = Diff(events, next, debounced)
	if got := at(t, patch, 0).Changes; len(got) != 1 || len(got[0].Added) != 1 {
		t.Errorf("option change not reported:\n%s", patch)
	}

	patch, events = Diff(events, next, Button())
	if got := at(t, patch, 0).Changes; len(got) != 1 || len(got[0].Removed) != 1 {
		t.Errorf("listener removal not reported:\n%s", patch)
	}
	if events.Has("0", "click") {
		t.Error("handler still registered after removal")
	}
}

func TestDiffRemovedSubtreeDeregisters(t *testing.T) {
	item := func(k string) *Node { return Li(Key(k), Button(OnClick(k))) }
	old := Ul(item("a"), item("b"))
	next := Ul(item("b"))

	events := EventsFrom(old)
	_, events = Diff(events, old, next)
	if events.Has("0\ta\t0", "click") {
		t.Error("removed subtree still has handlers")
	}
	if !events.Has("0\tb\t0", "click") {
		t.Error("kept subtree lost its handler")
	}
	if events.Len() != 1 {
		t.Errorf("Len() = %d, want 1", events.Len())
	}
}

func TestDiffDoesNotModifyEvents(t *testing.T) {
	old := Button(OnClick(1))
	events := EventsFrom(old)
	_, next := Diff(events, old, Div())
	if !events.Has("0", "click") {
		t.Error("Diff modified its input registry")
	}
	if next.Has("0", "click") {
		t.Error("replaced node kept its handler")
	}
}

func TestDiffFragments(t *testing.T) {
	old := Div(Fragment(Span("a"), Span("b")), P("tail"))
	next := Div(Fragment(Span("a"), Span("b"), Span("c")), P("tail"))

	patch, _ := Diff(NewEvents(), old, next)
	frag := at(t, patch, 0, 0)
	if len(frag.Changes) != 1 || frag.Changes[0].Op != OpInsert || frag.Changes[0].Before != 2 {
		t.Errorf("fragment changes = %v, want Insert before 2", frag.Changes)
	}
}

func TestDiffRawHTML(t *testing.T) {
	old := RawHTML("div", "<i>a</i>", Class("x"))
	next := RawHTML("div", "<i>b</i>", Class("y"))

	patch, _ := Diff(NewEvents(), old, next)
	raw := at(t, patch, 0)
	if len(raw.Changes) != 2 || raw.Changes[0].Op != OpUpdate || raw.Changes[1].Op != OpReplaceInnerHTML {
		t.Fatalf("changes = %v", raw.Changes)
	}
	if raw.Changes[1].Content != "<i>b</i>" {
		t.Errorf("html = %q", raw.Changes[1].Content)
	}
}

func TestDiffMount(t *testing.T) {
	root := Div("hi")
	patch, events := Diff(nil, nil, root)
	if len(patch.Changes) != 1 || patch.Changes[0].Op != OpInsert {
		t.Fatalf("mount patch = %s", patch)
	}
	if events == nil {
		t.Fatal("nil registry")
	}

	patch, _ = Diff(events, root, nil)
	if patch.Removed != 1 {
		t.Errorf("unmount Removed = %d, want 1", patch.Removed)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		tree *Node
		ok   bool
	}{
		{"fine", keyedItems("a", "b"), true},
		{"duplicate", keyedItems("a", "a"), false},
		{"mixed", Ul(Li(Key("a")), Li()), false},
		{"nested duplicate", Div(Fragment(Keyed("x", Text("1")), Keyed("x", Text("2")))), false},
		{"void with children", Input(Span()), false},
		{"key with element separator", keyedItems("a", "a"+ElementSeparator+"0"), false},
		{"key with event separator", Ul(Keyed("a"+EventSeparator+"click", Li())), false},
		{"root key with separator", Div(Key("x" + ElementSeparator + "y")), false},
		{"nil", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.tree)
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrMalformedTree) {
				t.Errorf("Validate() = %v, want ErrMalformedTree", err)
			}
		})
	}
}
