package vdom

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func attrNames(attrs []Attr) []string {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	return names
}

func TestPrepareSortsDescending(t *testing.T) {
	got := Prepare([]Attr{ID("x"), Href("/"), Type("text"), Class("c")})
	want := []string{"type", "id", "href", "class"}
	if diff := cmp.Diff(want, attrNames(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestPrepareMergesClass(t *testing.T) {
	got := Prepare([]Attr{Class("a"), Class(""), Class("b")})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Value != "a b" {
		t.Errorf("class = %q, want %q", got[0].Value, "a b")
	}
}

func TestPrepareMergesStyle(t *testing.T) {
	got := Prepare([]Attr{Style("color", "red"), ID("x"), Style("width", "1px")})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "style" || got[0].Value != "color:red;width:1px;" {
		t.Errorf("style = %s, want style=%q", got[0], "color:red;width:1px;")
	}
}

func TestPrepareStyleWithoutTrailingSemicolon(t *testing.T) {
	got := Prepare([]Attr{Attribute("style", "color:red"), Attribute("style", "top:0")})
	if got[0].Value != "color:red;top:0" {
		t.Errorf("style = %q, want %q", got[0].Value, "color:red;top:0")
	}
}

func TestPrepareFirstOccurrenceWins(t *testing.T) {
	tests := []struct {
		name  string
		attrs []Attr
		want  Attr
	}{
		{"attributes", []Attr{ID("first"), ID("second"), ID("third")}, ID("first")},
		{"mixed kinds", []Attr{Property("value", 1), Value("two")}, Property("value", 1)},
		{"separated in source", []Attr{Href("a"), Class("x"), Href("b")}, Href("a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Attr
			for _, a := range Prepare(tt.attrs) {
				if a.Name == tt.want.Name {
					if got != nil {
						t.Fatalf("duplicate %q survived", a.Name)
					}
					a := a
					got = &a
				}
			}
			if got == nil {
				t.Fatalf("%q dropped", tt.want.Name)
			}
			if got.Kind != tt.want.Kind || got.Value != tt.want.Value || !propsEqual(got.Prop, tt.want.Prop) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPrepareDropsEmpty(t *testing.T) {
	if got := Prepare([]Attr{{}}); len(got) != 0 {
		t.Errorf("single unnamed attribute kept: %v", got)
	}
	if got := Prepare([]Attr{Checked(false), Class(""), ID("x")}); len(got) != 1 || got[0].Name != "id" {
		t.Errorf("Prepare = %v, want [id]", got)
	}
	// A lone empty class is left alone: 0/1 attribute lists are not touched.
	if got := Prepare([]Attr{Class("")}); len(got) != 1 {
		t.Errorf("single class dropped: %v", got)
	}
}

func TestPrepareDoesNotModifyInput(t *testing.T) {
	in := []Attr{ID("a"), Class("b")}
	Prepare(in)
	if in[0].Name != "id" || in[1].Name != "class" {
		t.Errorf("input reordered: %v", in)
	}
}

func TestAttrString(t *testing.T) {
	tests := []struct {
		attr Attr
		want string
	}{
		{ID("main"), `id="main"`},
		{Property("scrollTop", 10), ".scrollTop=10"},
		{On("click", Message(1)), "on:click"},
		{On("input", Message(1)).WithDebounce(300 * time.Millisecond).WithPreventDefault(), "on:input[prevent,debounce=300ms]"},
	}
	for _, tt := range tests {
		if got := tt.attr.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestEventOptionsChanged(t *testing.T) {
	base := On("click", Message(1))
	if eventOptionsChanged(base, On("click", Message(2))) {
		t.Error("decoder change reported as option change")
	}
	if !eventOptionsChanged(base, base.WithThrottle(time.Second)) {
		t.Error("throttle change not reported")
	}
	if !eventOptionsChanged(base, base.WithStopPropagation()) {
		t.Error("stopPropagation change not reported")
	}
}
