package vtest

import (
	"strings"
	"testing"

	"github.com/vango-dev/vtree/pkg/headless"
	"github.com/vango-dev/vtree/pkg/reconcile"
	"github.com/vango-dev/vtree/pkg/vdom"
)

// Harness is a tree mounted into a headless document with an in-process
// event loop: events are decoded through the registry and their messages
// collected, and Render diffs and pushes the next tree.
type Harness struct {
	T         testing.TB
	Doc       *headless.Document
	Container *headless.Node
	Rec       *reconcile.Reconciler
	Events    *vdom.Events
	Tree      *vdom.Node

	// Messages collects decoded event messages in dispatch order.
	Messages []any
	// Errors collects registry errors such as vdom.ErrNoHandler.
	Errors []error
}

// Mount builds node into a fresh headless document.
//
// Example:
//
//	h := vtest.Mount(t, vdom.Div(vdom.Button(vdom.OnClick("inc"))))
//	h.Fire(headless.ByTag("button"), "click", nil)
func Mount(t testing.TB, node *vdom.Node, opts ...reconcile.Option) *Harness {
	t.Helper()
	h := &Harness{T: t, Doc: headless.NewDocument()}
	h.Container = h.Doc.NewContainer()
	h.Rec = reconcile.New(h.Doc, h.Container, h.dispatch, opts...)
	h.Rec.Mount(node)
	h.Events = vdom.EventsFrom(node)
	h.Tree = node
	return h
}

func (h *Harness) dispatch(path, name string, payload []byte) {
	events, handler, err := h.Events.Handle(path, name, payload)
	h.Events = events
	if err != nil {
		h.Errors = append(h.Errors, err)
		return
	}
	h.Messages = append(h.Messages, handler.Message)
}

// Render diffs next against the current tree and applies the patch. A
// patch that fails to apply fails the test.
func (h *Harness) Render(next *vdom.Node) *vdom.Patch {
	h.T.Helper()
	patch, events := vdom.Diff(h.Events, h.Tree, next)
	if err := h.Rec.Push(patch); err != nil {
		h.T.Fatalf("Push() error = %v\npatch:\n%s", err, patch)
	}
	h.Events = events
	h.Tree = next
	return patch
}

// HTML renders the mounted tree.
func (h *Harness) HTML() string {
	return headless.RenderChildren(h.Container)
}

// Find returns the first live node matching, failing the test if none does.
func (h *Harness) Find(match func(*headless.Node) bool) *headless.Node {
	h.T.Helper()
	n := headless.Find(h.Container, match)
	if n == nil {
		h.T.Fatalf("no matching node in:\n%s", truncate(h.HTML(), 500))
	}
	return n
}

// Fire dispatches a native event on the first matching node.
func (h *Harness) Fire(match func(*headless.Node) bool, name string, payload []byte) *headless.Event {
	h.T.Helper()
	return headless.Dispatch(h.Find(match), name, payload)
}

// RenderToString mounts node into a throwaway document and returns its HTML.
//
// Example:
//
//	html := vtest.RenderToString(view(model))
func RenderToString(node *vdom.Node) string {
	doc := headless.NewDocument()
	container := doc.NewContainer()
	reconcile.New(doc, container, nil).Mount(node)
	return headless.RenderChildren(container)
}

// ExpectHTML asserts that the mounted tree renders exactly as want.
func ExpectHTML(t testing.TB, h *Harness, want string) {
	t.Helper()
	if got := h.HTML(); got != want {
		t.Errorf("HTML mismatch\n got: %s\nwant: %s", got, want)
	}
}

// ExpectContains asserts that rendered output contains expected substring.
//
// Example:
//
//	vtest.ExpectContains(t, view(model), "Count: 1")
func ExpectContains(t testing.TB, node *vdom.Node, expected string) {
	t.Helper()
	html := RenderToString(node)
	if !strings.Contains(html, expected) {
		t.Errorf("expected rendered output to contain %q, got:\n%s", expected, truncate(html, 500))
	}
}

// ExpectNotContains asserts that rendered output does not contain substring.
func ExpectNotContains(t testing.TB, node *vdom.Node, unexpected string) {
	t.Helper()
	html := RenderToString(node)
	if strings.Contains(html, unexpected) {
		t.Errorf("expected rendered output to NOT contain %q, got:\n%s", unexpected, truncate(html, 500))
	}
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
