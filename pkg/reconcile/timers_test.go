package reconcile_test

import (
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/vtree/pkg/headless"
	"github.com/vango-dev/vtree/pkg/reconcile"
	"github.com/vango-dev/vtree/pkg/vdom"
	"github.com/vango-dev/vtree/pkg/vtest"
)

func echo(v string) any { return v }

func payload(v string) []byte {
	return []byte(`{"target":{"value":"` + v + `"}}`)
}

func debounced(id string) *vdom.Node {
	return vdom.Input(vdom.Key(id), vdom.ID(id), vdom.OnInput(echo).WithDebounce(300*time.Millisecond))
}

func TestDebounceDispatchesLastEvent(t *testing.T) {
	clock := vtest.NewFakeClock(time.Unix(0, 0))
	h := vtest.Mount(t, vdom.Div(debounced("q")), reconcile.WithClock(clock))

	h.Fire(headless.ByID("q"), "input", payload("a"))
	clock.Advance(200 * time.Millisecond)
	h.Fire(headless.ByID("q"), "input", payload("ab"))
	if h.Rec.PendingTimers() != 1 || clock.Active() != 1 {
		t.Fatalf("PendingTimers() = %d, Active() = %d, want 1, 1", h.Rec.PendingTimers(), clock.Active())
	}

	clock.Advance(299 * time.Millisecond)
	if len(h.Messages) != 0 {
		t.Fatalf("dispatched early: %v", h.Messages)
	}
	clock.Advance(time.Millisecond)
	if len(h.Messages) != 1 || h.Messages[0] != "ab" {
		t.Errorf("Messages = %v, want [ab]", h.Messages)
	}
	if h.Rec.PendingTimers() != 0 {
		t.Errorf("PendingTimers() = %d after firing", h.Rec.PendingTimers())
	}
}

func TestRemovingNodeCancelsOnlyItsTimer(t *testing.T) {
	clock := vtest.NewFakeClock(time.Unix(0, 0))
	h := vtest.Mount(t, vdom.Div(debounced("a"), debounced("b")), reconcile.WithClock(clock))

	h.Fire(headless.ByID("a"), "input", payload("from a"))
	h.Fire(headless.ByID("b"), "input", payload("from b"))
	if got := h.Rec.PendingTimers(); got != 2 {
		t.Fatalf("PendingTimers() = %d, want 2", got)
	}

	h.Render(vdom.Div(debounced("b")))
	if got := h.Rec.PendingTimers(); got != 1 {
		t.Errorf("PendingTimers() = %d, want 1", got)
	}
	if got := clock.Active(); got != 1 {
		t.Errorf("clock.Active() = %d, want 1", got)
	}

	clock.Advance(time.Second)
	if len(h.Messages) != 1 || h.Messages[0] != "from b" {
		t.Errorf("Messages = %v, want [from b]", h.Messages)
	}
}

func TestRemovingAncestorCancelsDescendantTimers(t *testing.T) {
	clock := vtest.NewFakeClock(time.Unix(0, 0))
	tree := vdom.Div(vdom.Section(vdom.Fragment(vdom.Div(debounced("a")), vdom.Div(debounced("b")))), vdom.P("keep"))
	h := vtest.Mount(t, tree, reconcile.WithClock(clock))

	h.Fire(headless.ByID("a"), "input", payload("1"))
	h.Fire(headless.ByID("b"), "input", payload("2"))
	h.Render(vdom.Div(vdom.P("keep")))

	if h.Rec.PendingTimers() != 0 || clock.Active() != 0 {
		t.Errorf("PendingTimers() = %d, Active() = %d, want 0, 0", h.Rec.PendingTimers(), clock.Active())
	}
	clock.Advance(time.Second)
	if len(h.Messages) != 0 {
		t.Errorf("detached node dispatched: %v", h.Messages)
	}
}

func TestThrottle(t *testing.T) {
	clock := vtest.NewFakeClock(time.Unix(0, 0))
	tree := vdom.Div(vdom.Button(vdom.ID("b"), vdom.OnClick("hit").WithThrottle(time.Second)))
	h := vtest.Mount(t, tree, reconcile.WithClock(clock))

	for i := 0; i < 3; i++ {
		h.Fire(headless.ByID("b"), "click", nil)
		clock.Advance(100 * time.Millisecond)
	}
	if len(h.Messages) != 1 {
		t.Fatalf("Messages = %v, want one", h.Messages)
	}

	clock.Advance(time.Second)
	h.Fire(headless.ByID("b"), "click", nil)
	if len(h.Messages) != 2 {
		t.Errorf("Messages = %v, want two", h.Messages)
	}
}

func TestThrottleWinsOverDebounce(t *testing.T) {
	clock := vtest.NewFakeClock(time.Unix(0, 0))
	attr := vdom.OnClick("hit").WithThrottle(time.Second).WithDebounce(time.Second)
	h := vtest.Mount(t, vdom.Div(vdom.Button(vdom.ID("b"), attr)), reconcile.WithClock(clock))

	h.Fire(headless.ByID("b"), "click", nil)
	if len(h.Messages) != 1 || h.Rec.PendingTimers() != 0 {
		t.Errorf("Messages = %v, PendingTimers() = %d, want immediate dispatch", h.Messages, h.Rec.PendingTimers())
	}
}

func TestDroppingDebounceCancelsPendingTimer(t *testing.T) {
	clock := vtest.NewFakeClock(time.Unix(0, 0))
	h := vtest.Mount(t, vdom.Div(debounced("q")), reconcile.WithClock(clock))
	h.Fire(headless.ByID("q"), "input", payload("x"))

	h.Render(vdom.Div(vdom.Input(vdom.Key("q"), vdom.ID("q"), vdom.OnInput(echo))))
	if h.Rec.PendingTimers() != 0 {
		t.Errorf("PendingTimers() = %d, want 0", h.Rec.PendingTimers())
	}

	h.Fire(headless.ByID("q"), "input", payload("now"))
	if len(h.Messages) != 1 || h.Messages[0] != "now" {
		t.Errorf("Messages = %v, want [now]", h.Messages)
	}
}

func TestDebounceRunsThroughPost(t *testing.T) {
	clock := vtest.NewFakeClock(time.Unix(0, 0))
	var queued []func()
	post := func(f func()) { queued = append(queued, f) }
	h := vtest.Mount(t, vdom.Div(debounced("q")), reconcile.WithClock(clock), reconcile.WithPost(post))

	h.Fire(headless.ByID("q"), "input", payload("x"))
	clock.Advance(time.Second)
	if len(h.Messages) != 0 || len(queued) != 1 {
		t.Fatalf("Messages = %v, queued = %d", h.Messages, len(queued))
	}
	queued[0]()
	if len(h.Messages) != 1 {
		t.Errorf("Messages = %v after running posted callback", h.Messages)
	}
}

// Debounce timers on the system clock fire on their own goroutines while
// the owner keeps raising events and pushing patches. Run with -race.
func TestDebounceOnSystemClockWithDefaultPost(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	doc := headless.NewDocument()
	container := doc.NewContainer()
	r := reconcile.New(doc, container, func(path, name string, _ []byte) {
		mu.Lock()
		paths = append(paths, path)
		mu.Unlock()
	})

	view := func(i int) *vdom.Node {
		return vdom.Div(
			vdom.P(vdom.Textf("%d", i)),
			vdom.Input(vdom.Key("q"), vdom.ID("q"), vdom.OnInput(echo).WithDebounce(time.Microsecond)),
		)
	}
	tree := view(0)
	events := vdom.EventsFrom(tree)
	r.Mount(tree)

	for i := 1; i <= 2000; i++ {
		headless.Dispatch(headless.Find(container, headless.ByID("q")), "input", payload("x"))
		next := view(i)
		var patch *vdom.Patch
		patch, events = vdom.Diff(events, tree, next)
		if err := r.Push(patch); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
		tree = next
	}

	deadline := time.Now().Add(5 * time.Second)
	for r.PendingTimers() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := r.PendingTimers(); n != 0 {
		t.Fatalf("PendingTimers() = %d, want 0", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) == 0 {
		t.Fatal("no debounced event dispatched")
	}
	for _, p := range paths {
		if p != paths[0] {
			t.Errorf("dispatched path %q, want %q", p, paths[0])
		}
	}
}
