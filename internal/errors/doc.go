// Package errors provides coded, categorised errors for the vtree CLI and
// its configuration and document loaders.
//
// Each code maps to a registered template holding a short message, a
// longer explanation and a documentation link. Errors can carry a source
// location (a tree document or config file) and a suggestion, and Format
// renders them for a terminal.
//
// # Usage
//
//	err := errors.New("E002").
//	    WithLocation("trees/list.yaml", 7, 5).
//	    WithSuggestion("Give every keyed sibling a distinct key")
//
//	fmt.Print(err.Format())
//	// ERROR E002: Malformed tree
//	//
//	//   trees/list.yaml:7:5
//	//
//	//       6 │   - li:
//	//   →   7 │     key: a
//	//         │     ^
//	//       8 │   - li:
//	//
//	//   Hint: Give every keyed sibling a distinct key
package errors
