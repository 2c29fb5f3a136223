package vdom

import (
	"strconv"
	"strings"
)

// Path separators. Paths travel between the reconciler and the event
// registry (and over the wire) in their serialised form.
const (
	ElementSeparator = "\t"
	EventSeparator   = "\n"
)

// Path is the structural address of a node, built from the root down.
// The zero value is the root. Paths are persistent: Add never modifies the
// receiver, so a parent path can be shared by all of its children.
type Path struct {
	seg *pathSegment
}

type pathSegment struct {
	parent *pathSegment
	key    string
	index  int
}

// Root is the path of the mounted container.
var Root = Path{}

// Add returns the path of the child at index below p. Keyed children are
// addressed by key so their address survives reordering.
func (p Path) Add(index int, key string) Path {
	return Path{seg: &pathSegment{parent: p.seg, key: key, index: index}}
}

// IsRoot reports whether p is the root path.
func (p Path) IsRoot() bool {
	return p.seg == nil
}

// Depth returns the number of segments below the root.
func (p Path) Depth() int {
	n := 0
	for s := p.seg; s != nil; s = s.parent {
		n++
	}
	return n
}

// Parent returns the enclosing path. The parent of the root is the root.
func (p Path) Parent() Path {
	if p.seg == nil {
		return p
	}
	return Path{seg: p.seg.parent}
}

// String serialises the path: one token per segment, joined by
// ElementSeparator. The root serialises to "".
func (p Path) String() string {
	if p.seg == nil {
		return ""
	}
	tokens := make([]string, 0, 8)
	for s := p.seg; s != nil; s = s.parent {
		tokens = append(tokens, s.token())
	}
	var b strings.Builder
	for i := len(tokens) - 1; i >= 0; i-- {
		b.WriteString(tokens[i])
		if i > 0 {
			b.WriteString(ElementSeparator)
		}
	}
	return b.String()
}

func (s *pathSegment) token() string {
	if s.key != "" {
		return s.key
	}
	return strconv.Itoa(s.index)
}

// EventKey returns the registry key of the named event at p.
func (p Path) EventKey(name string) string {
	return EventKey(p.String(), name)
}

// EventKey returns the registry key of the named event at a serialised path.
func EventKey(path, name string) string {
	return path + EventSeparator + name
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	return IsPathPrefix(prefix.String(), p.String())
}

// IsPathPrefix reports whether the serialised path prefix is path itself or
// one of its ancestors. Only whole tokens match: "0\t1" is not a prefix of
// "0\t12".
func IsPathPrefix(prefix, path string) bool {
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || strings.HasPrefix(path[len(prefix):], ElementSeparator)
}
