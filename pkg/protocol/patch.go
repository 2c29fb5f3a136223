package protocol

import (
	"errors"
	"fmt"

	"github.com/vango-dev/vtree/pkg/vdom"
)

// ErrInvalidChange is returned when a change carries an unknown op.
var ErrInvalidChange = errors.New("protocol: invalid change")

// EncodePatch encodes a patch to bytes.
func EncodePatch(p *vdom.Patch) []byte {
	e := NewEncoder()
	EncodePatchTo(e, p)
	return e.Bytes()
}

// EncodePatchTo encodes a patch using the provided encoder. The wire form
// mirrors vdom.Patch field for field:
//
//	[index:varint][removed:varint][count:varint][changes...][count:varint][children...]
//
// A nil patch is encoded as an empty one.
func EncodePatchTo(e *Encoder, p *vdom.Patch) {
	if p == nil {
		p = &vdom.Patch{}
	}
	e.WriteIndex(p.Index)
	e.WriteIndex(p.Removed)
	e.WriteIndex(len(p.Changes))
	for i := range p.Changes {
		encodeChange(e, &p.Changes[i])
	}
	e.WriteIndex(len(p.Children))
	for _, c := range p.Children {
		EncodePatchTo(e, c)
	}
}

func encodeChange(e *Encoder, c *vdom.Change) {
	e.WriteByte(byte(c.Op))
	switch c.Op {
	case vdom.OpInsert:
		e.WriteIndex(c.Before)
		encodeChildren(e, c.Children)
	case vdom.OpMove:
		e.WriteString(c.Key)
		e.WriteIndex(c.Before)
	case vdom.OpRemove:
		e.WriteIndex(c.Index)
	case vdom.OpReplace:
		e.WriteIndex(c.Index)
		EncodeNodeTo(e, c.With)
	case vdom.OpUpdate:
		encodeAttrs(e, c.Added)
		encodeAttrs(e, c.Removed)
	case vdom.OpReplaceText, vdom.OpReplaceInnerHTML:
		e.WriteString(c.Content)
	}
}

// DecodePatch decodes a patch from bytes.
func DecodePatch(data []byte) (*vdom.Patch, error) {
	d := NewDecoder(data)
	p, err := DecodePatchFrom(d)
	if err != nil {
		return nil, err
	}
	return p, d.done()
}

// DecodePatchFrom decodes a patch from a decoder, enforcing MaxPatchDepth.
func DecodePatchFrom(d *Decoder) (*vdom.Patch, error) {
	return decodePatch(d, newDepthContext(MaxPatchDepth))
}

func decodePatch(d *Decoder, dc *depthContext) (*vdom.Patch, error) {
	if err := dc.enter(); err != nil {
		return nil, err
	}
	defer dc.leave()

	p := &vdom.Patch{}
	var err error
	if p.Index, err = d.ReadIndex(); err != nil {
		return nil, err
	}
	if p.Removed, err = d.ReadIndex(); err != nil {
		return nil, err
	}

	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		p.Changes = make([]vdom.Change, count)
		for i := range p.Changes {
			if p.Changes[i], err = decodeChange(d); err != nil {
				return nil, err
			}
		}
	}

	if count, err = d.ReadCollectionCount(); err != nil {
		return nil, err
	}
	if count > 0 {
		p.Children = make([]*vdom.Patch, count)
		for i := range p.Children {
			if p.Children[i], err = decodePatch(d, dc); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func decodeChange(d *Decoder) (vdom.Change, error) {
	var c vdom.Change
	op, err := d.ReadByte()
	if err != nil {
		return c, err
	}
	c.Op = vdom.Op(op)

	switch c.Op {
	case vdom.OpInsert:
		if c.Before, err = d.ReadIndex(); err != nil {
			return c, err
		}
		c.Children, err = decodeChildren(d, newDepthContext(MaxNodeDepth))
	case vdom.OpMove:
		if c.Key, err = d.ReadString(); err != nil {
			return c, err
		}
		c.Before, err = d.ReadIndex()
	case vdom.OpRemove:
		c.Index, err = d.ReadIndex()
	case vdom.OpReplace:
		if c.Index, err = d.ReadIndex(); err != nil {
			return c, err
		}
		c.With, err = DecodeNodeFrom(d)
	case vdom.OpUpdate:
		if c.Added, err = decodeAttrs(d); err != nil {
			return c, err
		}
		c.Removed, err = decodeAttrs(d)
	case vdom.OpReplaceText, vdom.OpReplaceInnerHTML:
		c.Content, err = d.ReadString()
	default:
		err = fmt.Errorf("%w: op 0x%02x", ErrInvalidChange, op)
	}
	return c, err
}
