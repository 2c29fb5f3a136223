// Package vtest provides testing helpers for trees, reconcilers and timers.
//
// # Harness
//
// Mount builds a tree into a headless document with a reconciler and an
// event registry wired together, so a test can fire native events and
// render the next tree the way a running program would:
//
//	h := vtest.Mount(t, view(0))
//	h.Fire(headless.ByTag("button"), "click", nil)
//	h.Render(view(1))
//	vtest.ExpectHTML(t, h, "<div><button>1</button></div>")
//
// # Fake clock
//
// FakeClock implements reconcile.Clock. Timers only fire from Advance, on
// the calling goroutine, which makes debounce and throttle behaviour
// deterministic:
//
//	clock := vtest.NewFakeClock(time.Unix(0, 0))
//	h := vtest.Mount(t, tree, reconcile.WithClock(clock))
//	clock.Advance(300 * time.Millisecond)
//
// # Render assertions
//
//	vtest.ExpectContains(t, view(model), "Welcome")
//	vtest.ExpectNotContains(t, view(model), "Error")
package vtest
