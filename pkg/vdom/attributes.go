package vdom

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// AttrKind discriminates the three attribute flavours.
type AttrKind uint8

const (
	AttrAttribute AttrKind = iota // Markup attribute, string valued
	AttrProperty                  // Property assigned on the live node
	AttrEvent                     // Event listener
)

// String returns the string representation of the AttrKind.
func (k AttrKind) String() string {
	switch k {
	case AttrAttribute:
		return "Attribute"
	case AttrProperty:
		return "Property"
	case AttrEvent:
		return "Event"
	default:
		return "Unknown"
	}
}

// Attr is a single directive on an element.
type Attr struct {
	Kind AttrKind
	Name string

	Value string // AttrAttribute
	Prop  any    // AttrProperty

	// AttrEvent
	Decoder         Decoder
	PreventDefault  bool
	StopPropagation bool
	Debounce        time.Duration
	Throttle        time.Duration
}

// IsEmpty returns true if this attribute has no name and is dropped by Prepare.
func (a Attr) IsEmpty() bool {
	return a.Name == ""
}

// String renders the attribute for logs and patch dumps.
func (a Attr) String() string {
	switch a.Kind {
	case AttrProperty:
		return fmt.Sprintf(".%s=%s", a.Name, propToString(a.Prop))
	case AttrEvent:
		var mods []string
		if a.PreventDefault {
			mods = append(mods, "prevent")
		}
		if a.StopPropagation {
			mods = append(mods, "stop")
		}
		if a.Debounce > 0 {
			mods = append(mods, "debounce="+a.Debounce.String())
		}
		if a.Throttle > 0 {
			mods = append(mods, "throttle="+a.Throttle.String())
		}
		if len(mods) == 0 {
			return "on:" + a.Name
		}
		return "on:" + a.Name + "[" + strings.Join(mods, ",") + "]"
	default:
		return fmt.Sprintf("%s=%q", a.Name, a.Value)
	}
}

// Attribute creates a markup attribute.
func Attribute(name, value string) Attr {
	return Attr{Kind: AttrAttribute, Name: name, Value: value}
}

// Property creates a property assignment.
func Property(name string, value any) Attr {
	return Attr{Kind: AttrProperty, Name: name, Prop: value}
}

// On creates an event listener attribute.
func On(name string, decoder Decoder) Attr {
	return Attr{Kind: AttrEvent, Name: name, Decoder: decoder}
}

// WithDebounce delays dispatch until no event arrived for d.
func (a Attr) WithDebounce(d time.Duration) Attr {
	a.Debounce = d
	return a
}

// WithThrottle dispatches at most one event per d.
func (a Attr) WithThrottle(d time.Duration) Attr {
	a.Throttle = d
	return a
}

// WithPreventDefault cancels the native default action.
func (a Attr) WithPreventDefault() Attr {
	a.PreventDefault = true
	return a
}

// WithStopPropagation stops the native event from bubbling further.
func (a Attr) WithStopPropagation() Attr {
	a.StopPropagation = true
	return a
}

// Common attributes

// ID sets the id attribute.
func ID(id string) Attr { return Attribute("id", id) }

// Class sets the class attribute, joining multiple classes with spaces.
// Several Class attributes on one element are merged.
func Class(classes ...string) Attr { return Attribute("class", strings.Join(classes, " ")) }

// Style sets one style declaration. Several Style attributes on one
// element are merged into a single style attribute.
func Style(property, value string) Attr { return Attribute("style", property+":"+value+";") }

// Value sets the value attribute.
func Value(v string) Attr { return Attribute("value", v) }

// Checked sets the checked attribute when on is true.
func Checked(on bool) Attr {
	if !on {
		return Attr{}
	}
	return Attribute("checked", "")
}

// Selected sets the selected attribute when on is true.
func Selected(on bool) Attr {
	if !on {
		return Attr{}
	}
	return Attribute("selected", "")
}

// Type sets the type attribute.
func Type(t string) Attr { return Attribute("type", t) }

// Href sets the href attribute.
func Href(url string) Attr { return Attribute("href", url) }

// Prepare normalises an attribute list: sorted descending by name, unnamed
// and empty class entries dropped, adjacent class values joined with a
// space, style values joined with ';', and for any other repeated name the
// first occurrence in source order wins.
//
// The result is what the attribute diff merge-joins, so every node built by
// this package carries a prepared list.
func Prepare(attrs []Attr) []Attr {
	if len(attrs) <= 1 {
		if len(attrs) == 1 && attrs[0].IsEmpty() {
			return nil
		}
		return attrs
	}

	sorted := slices.Clone(attrs)
	slices.SortStableFunc(sorted, func(a, b Attr) int {
		return strings.Compare(b.Name, a.Name)
	})

	merged := make([]Attr, 0, len(sorted))
	for _, a := range sorted {
		if a.IsEmpty() {
			continue
		}
		if a.Kind == AttrAttribute && a.Name == "class" && a.Value == "" {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].Name == a.Name {
			last := &merged[n-1]
			switch {
			case last.Kind == AttrAttribute && a.Kind == AttrAttribute && a.Name == "class":
				last.Value = last.Value + " " + a.Value
			case last.Kind == AttrAttribute && a.Kind == AttrAttribute && a.Name == "style":
				last.Value = joinStyle(last.Value, a.Value)
			}
			continue
		}
		merged = append(merged, a)
	}
	return merged
}

func joinStyle(a, b string) string {
	if a == "" || strings.HasSuffix(a, ";") {
		return a + b
	}
	return a + ";" + b
}

// isControlledName reports attribute names that reflect live form state.
func isControlledName(name string) bool {
	return name == "value" || name == "checked" || name == "selected"
}

// isVolatileProperty reports properties that change without the view
// knowing and therefore are always reasserted.
func isVolatileProperty(name string) bool {
	return name == "scrollLeft" || name == "scrollRight"
}

// eventOptionsChanged reports whether the listener configuration changed.
// The decoder itself is always re-registered and does not count.
func eventOptionsChanged(prev, next Attr) bool {
	return prev.PreventDefault != next.PreventDefault ||
		prev.StopPropagation != next.StopPropagation ||
		prev.Debounce != next.Debounce ||
		prev.Throttle != next.Throttle
}

// propsEqual compares two property values for equality.
func propsEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return reflect.DeepEqual(a, b)
}

// propToString converts a property value to a string for display.
func propToString(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}
