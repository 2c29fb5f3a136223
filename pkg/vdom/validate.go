package vdom

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedTree is matched by every *MalformedTreeError.
var ErrMalformedTree = errors.New("vdom: malformed tree")

// MalformedTreeError reports a sibling list the diff cannot reason about.
// Diffing such a tree has undefined results; the tree is never repaired.
type MalformedTreeError struct {
	Path   string // serialised path of the parent
	Reason string
	Key    string
}

func (e *MalformedTreeError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("vdom: malformed tree at %q: %s %q", e.Path, e.Reason, e.Key)
	}
	return fmt.Sprintf("vdom: malformed tree at %q: %s", e.Path, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedTree) true.
func (e *MalformedTreeError) Is(target error) bool { return target == ErrMalformedTree }

// Validate reports the first duplicate key or keyed/unkeyed mix found in any
// sibling list of the tree, depth first. Void elements with children and
// keys containing a path separator are reported as well.
func Validate(root *Node) error {
	if root == nil {
		return nil
	}
	if err := checkKey(Root, root.Key); err != nil {
		return err
	}
	return validate(Root.Add(0, root.Key), root)
}

func validate(path Path, n *Node) error {
	switch n.Kind {
	case KindElement, KindFragment:
	default:
		return nil
	}
	if n.duplicateKey != "" {
		return &MalformedTreeError{Path: path.String(), Reason: "duplicate key", Key: n.duplicateKey}
	}
	if n.mixedKeys {
		return &MalformedTreeError{Path: path.String(), Reason: "keyed and unkeyed children mixed"}
	}
	if n.Void && len(n.Children) > 0 {
		return &MalformedTreeError{Path: path.String(), Reason: "void element <" + n.Tag + "> has children"}
	}
	for i, c := range n.Children {
		if err := checkKey(path, c.Key); err != nil {
			return err
		}
		if err := validate(path.Add(i, c.Key), c); err != nil {
			return err
		}
	}
	return nil
}

// checkKey rejects keys that would split into several path tokens.
func checkKey(parent Path, key string) error {
	if strings.ContainsAny(key, ElementSeparator+EventSeparator) {
		return &MalformedTreeError{Path: parent.String(), Reason: "key contains a path separator", Key: key}
	}
	return nil
}
