package vdom

// MapStep is one message transform in a mapper chain.
//
// Steps are values rather than bare closures so a chain can be named,
// logged and compared when a tree is rendered on a server and its patches
// are shipped to a remote client.
type MapStep interface {
	Name() string
	MapMessage(msg any) any
}

// Mapper is an ordered list of steps composed top-down: the first step
// belongs to the outermost mapped subtree.
type Mapper []MapStep

// Compose returns the chain for a child subtree nested below parent.
func Compose(parent, child Mapper) Mapper {
	switch {
	case len(child) == 0:
		return parent
	case len(parent) == 0:
		return child
	}
	out := make(Mapper, 0, len(parent)+len(child))
	out = append(out, parent...)
	return append(out, child...)
}

// Apply runs msg through the chain, innermost step first.
func (m Mapper) Apply(msg any) any {
	for i := len(m) - 1; i >= 0; i-- {
		msg = m[i].MapMessage(msg)
	}
	return msg
}

// Names returns the step names in chain order.
func (m Mapper) Names() []string {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = s.Name()
	}
	return names
}

type funcStep struct {
	name string
	fn   func(any) any
}

func (s funcStep) Name() string           { return s.name }
func (s funcStep) MapMessage(msg any) any { return s.fn(msg) }

// MapFunc adapts a named function into a MapStep.
func MapFunc(name string, fn func(any) any) MapStep {
	return funcStep{name: name, fn: fn}
}
