package protocol

import (
	"fmt"

	"github.com/vango-dev/vtree/pkg/vdom"
)

// SessionHeader carries the session ID in the WebSocket upgrade response.
// A reconnecting client sends it back as ?session=<id>&seq=<last applied>.
const SessionHeader = "X-Vtree-Session"

// Mount carries a full tree. The client discards whatever it had mounted
// and mounts Root afresh; Seq restarts the patch sequence.
type Mount struct {
	Seq  uint64
	Root *vdom.Node
}

// PatchMessage carries one Patch. The client applies patches strictly in
// Seq order; a gap means the connection lost a frame and the client must
// request a remount.
type PatchMessage struct {
	Seq   uint64
	Patch *vdom.Patch
}

// MountFrame builds a FrameMount frame.
func MountFrame(m *Mount) *Frame {
	e := NewEncoder()
	e.WriteUvarint(m.Seq)
	EncodeNodeTo(e, m.Root)
	return &Frame{Type: FrameMount, Flags: FlagSequenced, Payload: e.Bytes()}
}

// PatchFrame builds a FramePatch frame.
func PatchFrame(m *PatchMessage) *Frame {
	e := NewEncoder()
	e.WriteUvarint(m.Seq)
	EncodePatchTo(e, m.Patch)
	return &Frame{Type: FramePatch, Flags: FlagSequenced, Payload: e.Bytes()}
}

// EventFrame builds a FrameEvent frame.
func EventFrame(ev *Event) *Frame {
	return &Frame{Type: FrameEvent, Flags: FlagSequenced, Payload: EncodeEvent(ev)}
}

// ControlFrame builds a FrameControl frame.
func ControlFrame(c *Control) *Frame {
	return NewFrame(FrameControl, EncodeControl(c))
}

// ErrorFrame builds a FrameError frame.
func ErrorFrame(em *ErrorMessage) *Frame {
	return NewFrame(FrameError, EncodeErrorMessage(em))
}

// DecodeMount decodes the payload of a FrameMount frame.
func DecodeMount(payload []byte) (*Mount, error) {
	d := NewDecoder(payload)
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	root, err := DecodeNodeFrom(d)
	if err != nil {
		return nil, err
	}
	return &Mount{Seq: seq, Root: root}, d.done()
}

// DecodePatchMessage decodes the payload of a FramePatch frame.
func DecodePatchMessage(payload []byte) (*PatchMessage, error) {
	d := NewDecoder(payload)
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	p, err := DecodePatchFrom(d)
	if err != nil {
		return nil, err
	}
	return &PatchMessage{Seq: seq, Patch: p}, d.done()
}

// Message is any decoded frame payload: *Mount, *PatchMessage, *Event,
// *Control or *ErrorMessage.
type Message any

// DecodeMessage decodes a frame's payload according to its type.
func DecodeMessage(f *Frame) (Message, error) {
	switch f.Type {
	case FrameMount:
		return DecodeMount(f.Payload)
	case FramePatch:
		return DecodePatchMessage(f.Payload)
	case FrameEvent:
		return DecodeEvent(f.Payload)
	case FrameControl:
		return DecodeControl(f.Payload)
	case FrameError:
		return DecodeErrorMessage(f.Payload)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidFrameType, byte(f.Type))
	}
}
