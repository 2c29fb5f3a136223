// Package treedoc reads virtual trees written as YAML documents, the input
// format of the vtree CLI.
//
// A node is one of:
//
//	hello                      # a text node
//	div: hello                 # an element with one text child
//	ul: [{li: a}, {li: b}]     # an element with children
//	div:                       # an element with fields
//	  key: row-1
//	  ns: http://www.w3.org/2000/svg
//	  attrs:
//	    class: box
//	    "prop:value": 42       # property
//	    "on:click": inc        # event mapped to the message "inc"
//	    "on:input":
//	      message: typed
//	      throttle: 100ms
//	  children: [...]
//	text: {content: hi, key: t1}
//	fragment: [...]            # or {key: f, children: [...]}
//	raw: {tag: div, html: "<b>x</b>"}
//
// A bare sequence at the top level is an unkeyed fragment. Errors carry the
// line and column of the offending node.
package treedoc
