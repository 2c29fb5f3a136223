package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vango-dev/vtree/pkg/vdom"
)

// ErrInvalidNode is returned when a node or attribute tag is unknown.
var ErrInvalidNode = errors.New("protocol: invalid node")

// Property value tags.
const (
	propNil    byte = 0x00
	propBool   byte = 0x01
	propInt    byte = 0x02
	propFloat  byte = 0x03
	propString byte = 0x04
	propJSON   byte = 0x05
)

// Event listener option bits.
const (
	eventPreventDefault  byte = 0x01
	eventStopPropagation byte = 0x02
)

// EncodeNode encodes a tree to bytes.
func EncodeNode(n *vdom.Node) []byte {
	e := NewEncoder()
	EncodeNodeTo(e, n)
	return e.Bytes()
}

// EncodeNodeTo encodes a tree using the provided encoder.
//
// Wire format:
//
//	[kind:1][key:string] then by kind
//	Element:  [namespace:string][tag:string][attrs][children]
//	Fragment: [children]
//	Text:     [content:string]
//	RawHTML:  [namespace:string][tag:string][attrs][html:string]
//
// Mappers are not encoded and event decoders travel only as listener
// options.
func EncodeNodeTo(e *Encoder, n *vdom.Node) {
	e.WriteByte(byte(n.Kind))
	e.WriteString(n.Key)
	switch n.Kind {
	case vdom.KindElement:
		e.WriteString(n.Namespace)
		e.WriteString(n.Tag)
		encodeAttrs(e, n.Attrs)
		encodeChildren(e, n.Children)
	case vdom.KindFragment:
		encodeChildren(e, n.Children)
	case vdom.KindText:
		e.WriteString(n.Content)
	case vdom.KindRawHTML:
		e.WriteString(n.Namespace)
		e.WriteString(n.Tag)
		encodeAttrs(e, n.Attrs)
		e.WriteString(n.HTML)
	}
}

func encodeChildren(e *Encoder, children []*vdom.Node) {
	e.WriteIndex(len(children))
	for _, c := range children {
		EncodeNodeTo(e, c)
	}
}

func encodeAttrs(e *Encoder, attrs []vdom.Attr) {
	e.WriteIndex(len(attrs))
	for _, a := range attrs {
		encodeAttr(e, a)
	}
}

func encodeAttr(e *Encoder, a vdom.Attr) {
	e.WriteByte(byte(a.Kind))
	e.WriteString(a.Name)
	switch a.Kind {
	case vdom.AttrAttribute:
		e.WriteString(a.Value)
	case vdom.AttrProperty:
		encodeProp(e, a.Prop)
	case vdom.AttrEvent:
		var opts byte
		if a.PreventDefault {
			opts |= eventPreventDefault
		}
		if a.StopPropagation {
			opts |= eventStopPropagation
		}
		e.WriteByte(opts)
		e.WriteUvarint(uint64(a.Debounce))
		e.WriteUvarint(uint64(a.Throttle))
	}
}

func encodeProp(e *Encoder, v any) {
	switch val := v.(type) {
	case nil:
		e.WriteByte(propNil)
	case bool:
		e.WriteByte(propBool)
		e.WriteBool(val)
	case int:
		e.WriteByte(propInt)
		e.WriteSvarint(int64(val))
	case int32:
		e.WriteByte(propInt)
		e.WriteSvarint(int64(val))
	case int64:
		e.WriteByte(propInt)
		e.WriteSvarint(val)
	case float32:
		e.WriteByte(propFloat)
		e.WriteFloat64(float64(val))
	case float64:
		e.WriteByte(propFloat)
		e.WriteFloat64(val)
	case string:
		e.WriteByte(propString)
		e.WriteString(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			e.WriteByte(propString)
			e.WriteString(fmt.Sprint(val))
			return
		}
		e.WriteByte(propJSON)
		e.WriteLenBytes(data)
	}
}

// DecodeNode decodes a tree from bytes.
func DecodeNode(data []byte) (*vdom.Node, error) {
	d := NewDecoder(data)
	n, err := DecodeNodeFrom(d)
	if err != nil {
		return nil, err
	}
	return n, d.done()
}

// DecodeNodeFrom decodes a tree from a decoder, enforcing MaxNodeDepth.
// Nodes are rebuilt through the vdom constructors so keyed child lookups
// and attribute normalisation hold as for locally built trees.
func DecodeNodeFrom(d *Decoder) (*vdom.Node, error) {
	return decodeNode(d, newDepthContext(MaxNodeDepth))
}

func decodeNode(d *Decoder, dc *depthContext) (*vdom.Node, error) {
	if err := dc.enter(); err != nil {
		return nil, err
	}
	defer dc.leave()

	kind, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	key, err := d.ReadString()
	if err != nil {
		return nil, err
	}

	switch vdom.Kind(kind) {
	case vdom.KindElement:
		ns, tag, attrs, err := decodeElementHead(d)
		if err != nil {
			return nil, err
		}
		children, err := decodeChildren(d, dc)
		if err != nil {
			return nil, err
		}
		return vdom.NewElement(key, ns, tag, attrs, children), nil

	case vdom.KindFragment:
		children, err := decodeChildren(d, dc)
		if err != nil {
			return nil, err
		}
		return vdom.NewFragment(key, children), nil

	case vdom.KindText:
		content, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		return vdom.NewText(key, content), nil

	case vdom.KindRawHTML:
		ns, tag, attrs, err := decodeElementHead(d)
		if err != nil {
			return nil, err
		}
		html, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		return vdom.NewRawHTML(key, ns, tag, attrs, html), nil

	default:
		return nil, fmt.Errorf("%w: kind 0x%02x", ErrInvalidNode, kind)
	}
}

func decodeElementHead(d *Decoder) (ns, tag string, attrs []vdom.Attr, err error) {
	if ns, err = d.ReadString(); err != nil {
		return
	}
	if tag, err = d.ReadString(); err != nil {
		return
	}
	attrs, err = decodeAttrs(d)
	return
}

func decodeChildren(d *Decoder, dc *depthContext) ([]*vdom.Node, error) {
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	children := make([]*vdom.Node, count)
	for i := range children {
		if children[i], err = decodeNode(d, dc); err != nil {
			return nil, err
		}
	}
	return children, nil
}

func decodeAttrs(d *Decoder) ([]vdom.Attr, error) {
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	attrs := make([]vdom.Attr, count)
	for i := range attrs {
		if attrs[i], err = decodeAttr(d); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

func decodeAttr(d *Decoder) (vdom.Attr, error) {
	var a vdom.Attr
	kind, err := d.ReadByte()
	if err != nil {
		return a, err
	}
	a.Kind = vdom.AttrKind(kind)
	if a.Name, err = d.ReadString(); err != nil {
		return a, err
	}

	switch a.Kind {
	case vdom.AttrAttribute:
		a.Value, err = d.ReadString()
	case vdom.AttrProperty:
		a.Prop, err = decodeProp(d)
	case vdom.AttrEvent:
		var opts byte
		if opts, err = d.ReadByte(); err != nil {
			return a, err
		}
		a.PreventDefault = opts&eventPreventDefault != 0
		a.StopPropagation = opts&eventStopPropagation != 0
		var debounce, throttle uint64
		if debounce, err = d.ReadUvarint(); err != nil {
			return a, err
		}
		if throttle, err = d.ReadUvarint(); err != nil {
			return a, err
		}
		a.Debounce = time.Duration(debounce)
		a.Throttle = time.Duration(throttle)
	default:
		err = fmt.Errorf("%w: attribute kind 0x%02x", ErrInvalidNode, kind)
	}
	return a, err
}

func decodeProp(d *Decoder) (any, error) {
	tag, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case propNil:
		return nil, nil
	case propBool:
		return d.ReadBool()
	case propInt:
		v, err := d.ReadSvarint()
		return int(v), err
	case propFloat:
		return d.ReadFloat64()
	case propString:
		return d.ReadString()
	case propJSON:
		data, err := d.ReadLenBytes()
		return json.RawMessage(data), err
	default:
		return nil, fmt.Errorf("%w: property tag 0x%02x", ErrInvalidNode, tag)
	}
}
