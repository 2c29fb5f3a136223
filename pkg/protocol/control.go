package protocol

import "fmt"

// ControlType identifies the type of control message.
type ControlType uint8

const (
	ControlPing    ControlType = 0x01 // Client/server ping
	ControlPong    ControlType = 0x02 // Response to ping
	ControlRemount ControlType = 0x10 // Client diverged and needs a fresh Mount
	ControlClose   ControlType = 0x20 // Session close
)

// String returns the string representation of the control type.
func (ct ControlType) String() string {
	switch ct {
	case ControlPing:
		return "Ping"
	case ControlPong:
		return "Pong"
	case ControlRemount:
		return "Remount"
	case ControlClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// CloseReason indicates why a session is being closed.
type CloseReason uint8

const (
	CloseNormal         CloseReason = 0x00 // Normal closure
	CloseGoingAway      CloseReason = 0x01 // Client/server going away
	CloseSessionExpired CloseReason = 0x02 // Session expired
	CloseServerShutdown CloseReason = 0x03 // Server shutting down
	CloseError          CloseReason = 0x04 // Error occurred
)

// String returns the string representation of the close reason.
func (cr CloseReason) String() string {
	switch cr {
	case CloseNormal:
		return "Normal"
	case CloseGoingAway:
		return "GoingAway"
	case CloseSessionExpired:
		return "SessionExpired"
	case CloseServerShutdown:
		return "ServerShutdown"
	case CloseError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Control is a control message. Which fields are meaningful depends on
// Type:
//
//	Ping, Pong: Timestamp (Unix milliseconds, echoed back by Pong)
//	Remount:    LastSeq (last patch the client applied before diverging)
//	Close:      Reason, Message
type Control struct {
	Type      ControlType
	Timestamp uint64
	LastSeq   uint64
	Reason    CloseReason
	Message   string
}

// EncodeControl encodes a control message to bytes.
func EncodeControl(c *Control) []byte {
	e := NewEncoder()
	EncodeControlTo(e, c)
	return e.Bytes()
}

// EncodeControlTo encodes a control message using the provided encoder.
func EncodeControlTo(e *Encoder, c *Control) {
	e.WriteByte(byte(c.Type))
	switch c.Type {
	case ControlPing, ControlPong:
		e.WriteUint64(c.Timestamp)
	case ControlRemount:
		e.WriteUvarint(c.LastSeq)
	case ControlClose:
		e.WriteByte(byte(c.Reason))
		e.WriteString(c.Message)
	}
}

// DecodeControl decodes a control message from bytes.
func DecodeControl(data []byte) (*Control, error) {
	d := NewDecoder(data)
	c, err := DecodeControlFrom(d)
	if err != nil {
		return nil, err
	}
	return c, d.done()
}

// DecodeControlFrom decodes a control message from a decoder.
func DecodeControlFrom(d *Decoder) (*Control, error) {
	typeByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	c := &Control{Type: ControlType(typeByte)}

	switch c.Type {
	case ControlPing, ControlPong:
		c.Timestamp, err = d.ReadUint64()
	case ControlRemount:
		c.LastSeq, err = d.ReadUvarint()
	case ControlClose:
		var reason byte
		if reason, err = d.ReadByte(); err != nil {
			return nil, err
		}
		c.Reason = CloseReason(reason)
		c.Message, err = d.ReadString()
	default:
		err = fmt.Errorf("protocol: unknown control type 0x%02x", typeByte)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewPing creates a new Ping message.
func NewPing(timestamp uint64) *Control {
	return &Control{Type: ControlPing, Timestamp: timestamp}
}

// NewPong answers a Ping, echoing its timestamp.
func NewPong(ping *Control) *Control {
	return &Control{Type: ControlPong, Timestamp: ping.Timestamp}
}

// NewRemount creates a new Remount request.
func NewRemount(lastSeq uint64) *Control {
	return &Control{Type: ControlRemount, LastSeq: lastSeq}
}

// NewClose creates a new Close message.
func NewClose(reason CloseReason, message string) *Control {
	return &Control{Type: ControlClose, Reason: reason, Message: message}
}
