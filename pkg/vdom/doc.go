// Package vdom provides the virtual tree model, the tree diff and the event
// registry.
//
// A view produces a fresh Node tree per render. Diff compares it with the
// previous tree and yields a sparse Patch plus the Events registry that
// routes native events back to their handlers. Diff is pure and can run
// anywhere: in-process next to a reconciler, or on a server whose patches
// are shipped to a remote client.
//
// # Building trees
//
// Elements are created using variadic builder functions:
//
//	Ul(Class("todos"),
//	    Li(Key("a"), Text("first")),
//	    Li(Key("b"), Text("second"), OnClick(Toggle{ID: "b"})),
//	)
//
// Attributes are normalised on construction (see Prepare): sorted
// descending by name, class and style merged, first occurrence wins for
// anything else.
//
// # Paths
//
// Every node has a Path from the root: its key when it has one, otherwise
// its index among its siblings. Event handlers are registered under the
// serialised path plus the event name.
//
// # Patches
//
// A Patch addresses one node. Its Changes apply in order against that
// node's children, then Removed children are dropped from the end, then
// the Children patches apply against the resulting children.
package vdom
