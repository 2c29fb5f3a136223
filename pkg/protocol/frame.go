package protocol

import (
	"errors"
	"io"
)

// Frame constants.
const (
	// FrameHeaderSize is the size of the frame header in bytes.
	FrameHeaderSize = 6

	// MaxPayloadSize is the largest payload a frame may carry.
	MaxPayloadSize = DefaultMaxAllocation
)

// FrameType identifies the type of frame.
type FrameType uint8

const (
	FrameMount   FrameType = 0x01 // Server → Client full tree
	FramePatch   FrameType = 0x02 // Server → Client patch
	FrameEvent   FrameType = 0x03 // Client → Server native event
	FrameControl FrameType = 0x04 // Ping, pong, remount, close
	FrameError   FrameType = 0x05 // Error message
)

// String returns the string representation of the frame type.
func (ft FrameType) String() string {
	switch ft {
	case FrameMount:
		return "Mount"
	case FramePatch:
		return "Patch"
	case FrameEvent:
		return "Event"
	case FrameControl:
		return "Control"
	case FrameError:
		return "Error"
	default:
		return "Unknown"
	}
}

// FrameFlags are optional flags for frame processing.
type FrameFlags uint8

const (
	FlagSequenced FrameFlags = 0x01 // Payload starts with a sequence number
	FlagDebug     FrameFlags = 0x02 // Sender runs with tree validation on
)

// Has returns true if the flags contain the specified flag.
func (ff FrameFlags) Has(flag FrameFlags) bool {
	return ff&flag != 0
}

// Frame errors.
var (
	ErrFrameTooLarge    = errors.New("protocol: frame payload too large")
	ErrInvalidFrameType = errors.New("protocol: invalid frame type")
)

// Frame is a protocol frame with header and payload.
type Frame struct {
	Type    FrameType
	Flags   FrameFlags
	Payload []byte
}

// NewFrame creates a new frame with the given type and payload.
func NewFrame(ft FrameType, payload []byte) *Frame {
	return &Frame{Type: ft, Payload: payload}
}

// Encode encodes the frame to bytes including the header.
func (f *Frame) Encode() []byte {
	e := &Encoder{buf: make([]byte, 0, FrameHeaderSize+len(f.Payload))}
	f.EncodeTo(e)
	return e.Bytes()
}

// EncodeTo encodes the frame using the provided encoder.
func (f *Frame) EncodeTo(e *Encoder) {
	e.WriteByte(byte(f.Type))
	e.WriteByte(byte(f.Flags))
	e.WriteUint32(uint32(len(f.Payload)))
	e.WriteBytes(f.Payload)
}

func parseHeader(header []byte) (FrameType, FrameFlags, int, error) {
	ft := FrameType(header[0])
	if ft < FrameMount || ft > FrameError {
		return 0, 0, 0, ErrInvalidFrameType
	}
	n, err := NewDecoder(header[2:FrameHeaderSize]).ReadUint32()
	if err != nil {
		return 0, 0, 0, err
	}
	if n > MaxPayloadSize {
		return 0, 0, 0, ErrFrameTooLarge
	}
	return ft, FrameFlags(header[1]), int(n), nil
}

// DecodeFrame decodes a frame from bytes. The input must hold exactly one
// complete frame, as a WebSocket message does.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize {
		return nil, io.ErrUnexpectedEOF
	}
	ft, flags, length, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	switch {
	case len(data) < FrameHeaderSize+length:
		return nil, io.ErrUnexpectedEOF
	case len(data) > FrameHeaderSize+length:
		return nil, ErrTrailingBytes
	}
	payload := make([]byte, length)
	copy(payload, data[FrameHeaderSize:])
	return &Frame{Type: ft, Flags: flags, Payload: payload}, nil
}

// ReadFrame reads a complete frame from an io.Reader. It returns io.EOF
// only when the reader ends cleanly between frames.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	ft, flags, length, err := parseHeader(header)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return &Frame{Type: ft, Flags: flags, Payload: payload}, nil
}

// WriteFrame writes a complete frame to an io.Writer.
func WriteFrame(w io.Writer, f *Frame) error {
	if len(f.Payload) > MaxPayloadSize {
		return ErrFrameTooLarge
	}
	_, err := w.Write(f.Encode())
	return err
}
