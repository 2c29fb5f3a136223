package vtest

import (
	"testing"
	"time"

	"github.com/vango-dev/vtree/pkg/headless"
	"github.com/vango-dev/vtree/pkg/vdom"
)

func TestFakeClockOrder(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var fired []string
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stopped := clock.AfterFunc(time.Second, func() { fired = append(fired, "x") })

	if !stopped.Stop() {
		t.Fatal("Stop() = false on pending timer")
	}
	if stopped.Stop() {
		t.Error("second Stop() = true")
	}

	clock.Advance(1500 * time.Millisecond)
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("fired = %v, want [a]", fired)
	}
	if clock.Active() != 1 {
		t.Errorf("Active() = %d, want 1", clock.Active())
	}
	clock.Advance(time.Second)
	if len(fired) != 2 || fired[1] != "b" {
		t.Errorf("fired = %v, want [a b]", fired)
	}
	if got := clock.Now(); !got.Equal(time.Unix(2, 500_000_000)) {
		t.Errorf("Now() = %v", got)
	}
}

func TestFakeClockRescheduleFromCallback(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	n := 0
	var tick func()
	tick = func() {
		n++
		if n < 3 {
			clock.AfterFunc(time.Second, tick)
		}
	}
	clock.AfterFunc(time.Second, tick)
	clock.Advance(10 * time.Second)
	if n != 3 {
		t.Errorf("ticks = %d, want 3", n)
	}
}

func TestHarness(t *testing.T) {
	view := func(n int) *vdom.Node {
		return vdom.Div(vdom.Button(vdom.OnClick("inc"), vdom.Textf("%d", n)))
	}
	h := Mount(t, view(0))
	ExpectHTML(t, h, "<div><button>0</button></div>")

	h.Fire(headless.ByTag("button"), "click", nil)
	if len(h.Messages) != 1 || h.Messages[0] != "inc" {
		t.Fatalf("Messages = %v, want [inc]", h.Messages)
	}

	h.Render(view(1))
	ExpectHTML(t, h, "<div><button>1</button></div>")
	ExpectContains(t, view(2), "<button>2</button>")
	ExpectNotContains(t, view(2), "<span")
}
