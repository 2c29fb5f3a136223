package vdom

import "strings"

// Diff compares two trees and returns the patch that turns a live tree built
// from old into one matching next, together with the event registry for
// next.
//
// Diff is pure: events is never modified. The returned patch addresses the
// mounted container, whose only child is the root node. It is empty, never
// nil, when the trees are equivalent.
func Diff(events *Events, old, next *Node) (*Patch, *Events) {
	d := &differ{events: events.Tick()}
	patch := d.diffChildren(0, nil, Root, rootList(old), rootList(next))
	return patch, d.events
}

type differ struct {
	events *Events
}

// siblings is one side of a sibling comparison.
type siblings struct {
	nodes []*Node
	keyed map[string]*Node
}

func rootList(n *Node) siblings {
	if n == nil {
		return siblings{}
	}
	s := siblings{nodes: []*Node{n}}
	if n.Key != "" {
		s.keyed = map[string]*Node{n.Key: n}
	}
	return s
}

func childList(n *Node) siblings {
	return siblings{nodes: n.Children, keyed: n.keyed}
}

func (s siblings) has(key string) bool {
	if key == "" {
		return false
	}
	_, ok := s.keyed[key]
	return ok
}

// diffChildren walks the old and new sibling lists in lockstep and returns
// the patch for the node at patchIndex.
//
// nodeIndex is the live position of the cursor: every child left of it
// already matches the new list. Indices in emitted changes are live
// positions, and changes are appended in the order they must be applied.
// oldIndex is the position the current old child had in the old list; it
// addresses unkeyed old subtrees when their handlers are deregistered.
//
// When a keyed node is pulled forward by a Move, the matched old node is
// parked in slot and compared next. Its original occurrence is skipped when
// the walk reaches it.
func (d *differ) diffChildren(patchIndex int, mapper Mapper, path Path, old, next siblings) *Patch {
	patch := &Patch{Index: patchIndex}

	var (
		moved     map[string]struct{}
		slot      *Node
		oldIndex  int
		newIndex  int
		nodeIndex int
	)

	for {
		var prev *Node
		switch {
		case slot != nil:
			prev = slot
		case oldIndex < len(old.nodes):
			prev = old.nodes[oldIndex]
		}

		// Both lists exhausted
		if prev == nil && newIndex >= len(next.nodes) {
			break
		}

		// New list exhausted: everything left in the old list goes, except
		// the nodes a Move already relocated.
		if newIndex >= len(next.nodes) {
			for ; oldIndex < len(old.nodes); oldIndex++ {
				n := old.nodes[oldIndex]
				if _, ok := moved[n.Key]; ok {
					continue
				}
				patch.Removed++
				d.events.removeChild(path, oldIndex, n)
			}
			break
		}

		// Old list exhausted: append the rest of the new list in one go.
		if prev == nil {
			rest := next.nodes[newIndex:]
			d.events.addChildren(mapper, path, nodeIndex, rest)
			patch.Changes = append(patch.Changes, NewInsert(rest, nodeIndex))
			break
		}

		cur := next.nodes[newIndex]

		if prev.Key != cur.Key {
			// A parked node always shares its key with cur, so prev here is
			// an original occurrence.
			if _, ok := moved[prev.Key]; ok {
				oldIndex++
				continue
			}

			prevInNew := next.has(prev.Key)
			curInOld := old.has(cur.Key)

			switch {
			case prevInNew && curInOld:
				if moved == nil {
					moved = make(map[string]struct{})
				}
				moved[cur.Key] = struct{}{}
				patch.Changes = append(patch.Changes, NewMove(cur.Key, nodeIndex))
				slot = old.keyed[cur.Key]

			case !prevInNew && curInOld:
				patch.Changes = append(patch.Changes, NewRemove(nodeIndex))
				d.events.removeChild(path, oldIndex, prev)
				oldIndex++

			case prevInNew && !curInOld:
				patch.Changes = append(patch.Changes, NewInsert([]*Node{cur}, nodeIndex))
				d.events.addChild(mapper, path, nodeIndex, cur)
				newIndex++
				nodeIndex++

			default:
				patch.Changes = append(patch.Changes, NewReplace(nodeIndex, cur))
				d.events.removeChild(path, oldIndex, prev)
				d.events.addChild(mapper, path, nodeIndex, cur)
				oldIndex++
				newIndex++
				nodeIndex++
			}
			continue
		}

		// Keys are equal: compare the pair in place.
		oldPos := oldIndex
		if slot != nil {
			oldPos = nodeIndex
		}
		if child := d.diffNode(nodeIndex, oldPos, mapper, path, prev, cur); child != nil {
			if child.replace {
				patch.Changes = append(patch.Changes, NewReplace(nodeIndex, cur))
			} else if !child.patch.IsEmpty() {
				patch.Children = append(patch.Children, child.patch)
			}
		}
		if slot != nil {
			slot = nil
		} else {
			oldIndex++
		}
		newIndex++
		nodeIndex++
	}

	return patch
}

type nodeResult struct {
	patch   *Patch
	replace bool
}

// diffNode compares two nodes sharing a key. oldPos is the position the old
// node was registered under.
func (d *differ) diffNode(nodeIndex, oldPos int, mapper Mapper, path Path, prev, next *Node) *nodeResult {
	composed := Compose(mapper, next.Mapper)
	childPath := path.Add(nodeIndex, next.Key)

	switch {
	case prev.Kind == KindFragment && next.Kind == KindFragment:
		return &nodeResult{patch: d.diffChildren(nodeIndex, composed, childPath, childList(prev), childList(next))}

	case prev.Kind == KindElement && next.Kind == KindElement && sameElement(prev, next):
		controlled := isFormControl(next) && d.events.HasDispatchedEvents(childPath)
		added, removed := d.diffAttributes(controlled, composed, childPath, prev.Attrs, next.Attrs)
		child := d.diffChildren(nodeIndex, composed, childPath, childList(prev), childList(next))
		if len(added) > 0 || len(removed) > 0 {
			child.Changes = append([]Change{NewUpdate(added, removed)}, child.Changes...)
		}
		return &nodeResult{patch: child}

	case prev.Kind == KindText && next.Kind == KindText:
		if prev.Content == next.Content {
			return nil
		}
		return &nodeResult{patch: &Patch{
			Index:   nodeIndex,
			Changes: []Change{NewReplaceText(next.Content)},
		}}

	case prev.Kind == KindRawHTML && next.Kind == KindRawHTML && sameElement(prev, next):
		child := &Patch{Index: nodeIndex}
		added, removed := d.diffAttributes(false, composed, childPath, prev.Attrs, next.Attrs)
		if len(added) > 0 || len(removed) > 0 {
			child.Changes = append(child.Changes, NewUpdate(added, removed))
		}
		if prev.HTML != next.HTML {
			child.Changes = append(child.Changes, NewReplaceInnerHTML(next.HTML))
		}
		return &nodeResult{patch: child}
	}

	// Kind, tag or namespace mismatch
	d.events.removeChild(path, oldPos, prev)
	d.events.addChild(mapper, path, nodeIndex, next)
	return &nodeResult{replace: true}
}

// diffAttributes merge-joins two attribute lists sorted descending by name.
// Event handlers are (re)registered at path as a side effect.
func (d *differ) diffAttributes(controlled bool, mapper Mapper, path Path, prev, next []Attr) (added, removed []Attr) {
	i, j := 0, 0
	for i < len(prev) || j < len(next) {
		switch {
		case i == len(prev):
			added = d.addAttr(added, mapper, path, next[j])
			j++
			continue
		case j == len(next):
			removed = d.removeAttr(removed, path, prev[i])
			i++
			continue
		}

		p, n := prev[i], next[j]
		switch c := strings.Compare(p.Name, n.Name); {
		case c < 0:
			added = d.addAttr(added, mapper, path, n)
			j++
			continue
		case c > 0:
			removed = d.removeAttr(removed, path, p)
			i++
			continue
		}
		i++
		j++

		switch {
		case p.Kind == AttrAttribute && n.Kind == AttrAttribute:
			if (controlled && isControlledName(n.Name)) || p.Value != n.Value {
				added = append(added, n)
			}
		case p.Kind == AttrProperty && n.Kind == AttrProperty:
			if isVolatileProperty(n.Name) || (controlled && isControlledName(n.Name)) || !propsEqual(p.Prop, n.Prop) {
				added = append(added, n)
			}
		case p.Kind == AttrEvent && n.Kind == AttrEvent:
			// The newest decoder always wins; the live listener only needs
			// touching when its options moved.
			d.events.addEvent(mapper, path, n)
			if eventOptionsChanged(p, n) {
				added = append(added, n)
			}
		default:
			removed = d.removeAttr(removed, path, p)
			added = d.addAttr(added, mapper, path, n)
		}
	}
	return added, removed
}

func (d *differ) addAttr(added []Attr, mapper Mapper, path Path, a Attr) []Attr {
	if a.Kind == AttrEvent {
		d.events.addEvent(mapper, path, a)
	}
	return append(added, a)
}

func (d *differ) removeAttr(removed []Attr, path Path, a Attr) []Attr {
	if a.Kind == AttrEvent {
		d.events.removeEvent(path, a.Name)
	}
	return append(removed, a)
}

func sameElement(a, b *Node) bool {
	return a.Tag == b.Tag && (a.Namespace == b.Namespace || (isHTML(a.Namespace) && isHTML(b.Namespace)))
}

// isFormControl reports the elements whose value can be edited natively.
func isFormControl(n *Node) bool {
	if !isHTML(n.Namespace) {
		return false
	}
	switch n.Tag {
	case "input", "select", "textarea":
		return true
	}
	return false
}
