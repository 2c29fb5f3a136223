package protocol

import "errors"

// ErrInvalidEvent is returned when an event message has no event name.
var ErrInvalidEvent = errors.New("protocol: invalid event")

// Event is a native event forwarded by the client. Path is the serialised
// vdom.Path of the listening node and Payload is the native event as JSON;
// the server decodes it with the handler registered under Path and Name.
type Event struct {
	Seq     uint64
	Path    string
	Name    string
	Payload []byte
}

// EncodeEvent encodes an event to bytes.
func EncodeEvent(ev *Event) []byte {
	e := NewEncoder()
	EncodeEventTo(e, ev)
	return e.Bytes()
}

// EncodeEventTo encodes an event using the provided encoder.
//
//	[seq:varint][path:string][name:string][payload:bytes]
func EncodeEventTo(e *Encoder, ev *Event) {
	e.WriteUvarint(ev.Seq)
	e.WriteString(ev.Path)
	e.WriteString(ev.Name)
	e.WriteLenBytes(ev.Payload)
}

// DecodeEvent decodes an event from bytes.
func DecodeEvent(data []byte) (*Event, error) {
	d := NewDecoder(data)
	ev, err := DecodeEventFrom(d)
	if err != nil {
		return nil, err
	}
	return ev, d.done()
}

// DecodeEventFrom decodes an event from a decoder.
func DecodeEventFrom(d *Decoder) (*Event, error) {
	var ev Event
	var err error
	if ev.Seq, err = d.ReadUvarint(); err != nil {
		return nil, err
	}
	if ev.Path, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ev.Name, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ev.Name == "" {
		return nil, ErrInvalidEvent
	}
	payload, err := d.ReadLenBytes()
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		ev.Payload = payload
	}
	return &ev, nil
}
