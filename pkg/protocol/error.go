package protocol

// ErrorCode identifies the type of error.
type ErrorCode uint16

const (
	ErrUnknown        ErrorCode = 0x0000 // Unknown error
	ErrInvalidFrame   ErrorCode = 0x0001 // Malformed frame
	ErrBadEvent       ErrorCode = 0x0002 // Malformed event
	ErrNoHandler      ErrorCode = 0x0003 // No handler at path for event
	ErrUnhandled      ErrorCode = 0x0004 // Handler could not decode the event
	ErrSessionExpired ErrorCode = 0x0005 // Session no longer valid
	ErrDiverged       ErrorCode = 0x0006 // Client tree no longer matches the server's
	ErrServerError    ErrorCode = 0x0100 // Internal server error
	ErrMalformedTree  ErrorCode = 0x0101 // View produced a malformed tree
)

// String returns the string representation of the error code.
func (ec ErrorCode) String() string {
	switch ec {
	case ErrUnknown:
		return "Unknown"
	case ErrInvalidFrame:
		return "InvalidFrame"
	case ErrBadEvent:
		return "BadEvent"
	case ErrNoHandler:
		return "NoHandler"
	case ErrUnhandled:
		return "Unhandled"
	case ErrSessionExpired:
		return "SessionExpired"
	case ErrDiverged:
		return "Diverged"
	case ErrServerError:
		return "ServerError"
	case ErrMalformedTree:
		return "MalformedTree"
	default:
		return "Unknown"
	}
}

// ErrorMessage is sent when an error occurs.
type ErrorMessage struct {
	Code    ErrorCode // Error code
	Message string    // Human-readable error message
	Fatal   bool      // If true, connection should be closed
}

// EncodeErrorMessage encodes an ErrorMessage to bytes.
func EncodeErrorMessage(em *ErrorMessage) []byte {
	e := NewEncoder()
	e.WriteUint16(uint16(em.Code))
	e.WriteString(em.Message)
	e.WriteBool(em.Fatal)
	return e.Bytes()
}

// DecodeErrorMessage decodes an ErrorMessage from bytes.
func DecodeErrorMessage(data []byte) (*ErrorMessage, error) {
	d := NewDecoder(data)
	code, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	message, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	fatal, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	return &ErrorMessage{Code: ErrorCode(code), Message: message, Fatal: fatal}, d.done()
}

// NewError creates a new non-fatal ErrorMessage.
func NewError(code ErrorCode, message string) *ErrorMessage {
	return &ErrorMessage{Code: code, Message: message}
}

// NewFatalError creates a new fatal ErrorMessage.
func NewFatalError(code ErrorCode, message string) *ErrorMessage {
	return &ErrorMessage{Code: code, Message: message, Fatal: true}
}

// Error implements the error interface.
func (em *ErrorMessage) Error() string {
	if em.Fatal {
		return "fatal: " + em.Code.String() + ": " + em.Message
	}
	return em.Code.String() + ": " + em.Message
}
