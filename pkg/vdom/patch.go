package vdom

import (
	"fmt"
	"strings"
)

// Op is the type of a change.
type Op uint8

const (
	OpInsert           Op = 0x01 // Insert new children before an index
	OpMove             Op = 0x02 // Move a keyed child before an index
	OpRemove           Op = 0x03 // Remove the child at an index
	OpReplace          Op = 0x04 // Replace the child at an index
	OpUpdate           Op = 0x05 // Add and remove attributes
	OpReplaceText      Op = 0x06 // Replace text content
	OpReplaceInnerHTML Op = 0x07 // Replace raw inner HTML
)

// String returns the string representation of the Op.
func (op Op) String() string {
	switch op {
	case OpInsert:
		return "Insert"
	case OpMove:
		return "Move"
	case OpRemove:
		return "Remove"
	case OpReplace:
		return "Replace"
	case OpUpdate:
		return "Update"
	case OpReplaceText:
		return "ReplaceText"
	case OpReplaceInnerHTML:
		return "ReplaceInnerHTML"
	default:
		return "Unknown"
	}
}

// Change is a single operation against the children or attributes of the
// node a Patch addresses. Indices are positions in that node's children as
// they stand once every earlier change of the same Patch has been applied.
type Change struct {
	Op       Op
	Index    int     // Remove, Replace
	Before   int     // Insert, Move
	Key      string  // Move
	Children []*Node // Insert
	With     *Node   // Replace
	Added    []Attr  // Update
	Removed  []Attr  // Update
	Content  string  // ReplaceText, ReplaceInnerHTML
}

// NewInsert inserts children before the child at index before.
func NewInsert(children []*Node, before int) Change {
	return Change{Op: OpInsert, Children: children, Before: before}
}

// NewMove moves the keyed child before the child at index before.
func NewMove(key string, before int) Change {
	return Change{Op: OpMove, Key: key, Before: before}
}

// NewRemove removes the child at index.
func NewRemove(index int) Change {
	return Change{Op: OpRemove, Index: index}
}

// NewReplace replaces the child at index.
func NewReplace(index int, with *Node) Change {
	return Change{Op: OpReplace, Index: index, With: with}
}

// NewUpdate applies attribute changes to the addressed node.
func NewUpdate(added, removed []Attr) Change {
	return Change{Op: OpUpdate, Added: added, Removed: removed}
}

// NewReplaceText replaces the content of the addressed text node.
func NewReplaceText(content string) Change {
	return Change{Op: OpReplaceText, Content: content}
}

// NewReplaceInnerHTML replaces the inner HTML of the addressed node.
func NewReplaceInnerHTML(html string) Change {
	return Change{Op: OpReplaceInnerHTML, Content: html}
}

// String renders the change for logs and the CLI.
func (c Change) String() string {
	switch c.Op {
	case OpInsert:
		parts := make([]string, len(c.Children))
		for i, n := range c.Children {
			parts[i] = n.String()
		}
		return fmt.Sprintf("Insert(before=%d, [%s])", c.Before, strings.Join(parts, ", "))
	case OpMove:
		return fmt.Sprintf("Move(key=%q, before=%d)", c.Key, c.Before)
	case OpRemove:
		return fmt.Sprintf("Remove(index=%d)", c.Index)
	case OpReplace:
		return fmt.Sprintf("Replace(index=%d, %s)", c.Index, c.With)
	case OpUpdate:
		return fmt.Sprintf("Update(added=%v, removed=%v)", c.Added, c.Removed)
	case OpReplaceText:
		return fmt.Sprintf("ReplaceText(%q)", c.Content)
	case OpReplaceInnerHTML:
		return fmt.Sprintf("ReplaceInnerHTML(%d bytes)", len(c.Content))
	default:
		return "Unknown"
	}
}

// Patch is the sparse tree of changes between two trees. Index is the
// position of the addressed node in its parent's children; the top-level
// patch addresses the mounted container.
//
// Changes apply in order, then the last Removed children are dropped, then
// Children patches apply against the resulting children.
type Patch struct {
	Index    int
	Removed  int
	Changes  []Change
	Children []*Patch
}

// IsEmpty reports whether the patch carries no work at all.
func (p *Patch) IsEmpty() bool {
	return p == nil || (p.Removed == 0 && len(p.Changes) == 0 && len(p.Children) == 0)
}

// Walk visits p and its descendants depth first. Returning false from fn
// skips the children of the visited patch.
func (p *Patch) Walk(fn func(depth int, p *Patch) bool) {
	p.walk(0, fn)
}

func (p *Patch) walk(depth int, fn func(int, *Patch) bool) {
	if p == nil || !fn(depth, p) {
		return
	}
	for _, c := range p.Children {
		c.walk(depth+1, fn)
	}
}

// Ops counts changes by op over the whole patch tree. Trailing removals are
// counted as OpRemove.
func (p *Patch) Ops() map[Op]int {
	counts := make(map[Op]int)
	p.Walk(func(_ int, p *Patch) bool {
		for _, c := range p.Changes {
			counts[c.Op]++
		}
		if p.Removed > 0 {
			counts[OpRemove] += p.Removed
		}
		return true
	})
	return counts
}

// String renders the patch tree, one line per level.
func (p *Patch) String() string {
	if p == nil {
		return "<nil>"
	}
	var b strings.Builder
	p.Walk(func(depth int, p *Patch) bool {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(&b, "%s@%d", indent, p.Index)
		if p.Removed > 0 {
			fmt.Fprintf(&b, " removed=%d", p.Removed)
		}
		b.WriteByte('\n')
		for _, c := range p.Changes {
			fmt.Fprintf(&b, "%s  %s\n", indent, c)
		}
		return true
	})
	return b.String()
}
