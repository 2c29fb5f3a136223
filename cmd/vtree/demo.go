package main

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/vango-dev/vtree/pkg/server"
	"github.com/vango-dev/vtree/pkg/vdom"
)

// Messages of the demo program.
type (
	addItem     struct{}
	removeItem  struct{ id int }
	reverseList struct{}
	setDraft    struct{ text string }
	increment   struct{}
)

type item struct {
	id   int
	text string
}

// demo is the program served by `vtree serve`: a counter and a keyed list
// that exercises inserts, removals and moves.
type demo struct {
	count  int
	nextID int
	draft  string
	items  []item
}

var _ server.Program = (*demo)(nil)

func newDemo() server.Program {
	return &demo{
		nextID: 3,
		items:  []item{{1, "first"}, {2, "second"}},
	}
}

func (d *demo) Update(msg any) {
	switch m := msg.(type) {
	case increment:
		d.count++
	case setDraft:
		d.draft = m.text
	case addItem:
		text := d.draft
		if text == "" {
			text = "item " + strconv.Itoa(d.nextID)
		}
		d.items = append(d.items, item{d.nextID, text})
		d.nextID++
		d.draft = ""
	case removeItem:
		d.items = slices.DeleteFunc(d.items, func(it item) bool { return it.id == m.id })
	case reverseList:
		slices.Reverse(d.items)
	}
}

func (d *demo) View() *vdom.Node {
	rows := make([]*vdom.Node, len(d.items))
	for i, it := range d.items {
		rows[i] = vdom.Li(
			vdom.Key(strconv.Itoa(it.id)),
			vdom.Span(it.text),
			vdom.Button(vdom.OnClick(removeItem{it.id}), "remove"),
		)
	}

	return vdom.Main(
		vdom.H1("vtree demo"),
		vdom.Section(
			vdom.Class("counter"),
			vdom.Button(vdom.OnClick(increment{}), "+1"),
			vdom.Span(vdom.ID("count"), fmt.Sprint(d.count)),
		),
		vdom.Section(
			vdom.Class("list"),
			vdom.Input(
				vdom.Type("text"),
				vdom.Value(d.draft),
				vdom.OnInput(func(v string) any { return setDraft{v} }).WithDebounce(150 * time.Millisecond),
			),
			vdom.Button(vdom.OnClick(addItem{}), "add"),
			vdom.Button(vdom.OnClick(reverseList{}), "reverse"),
			vdom.Ul(rows),
		),
	)
}
