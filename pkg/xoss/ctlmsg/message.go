// Package ctlmsg implements the fixed-width control-message protocol
// exchanged over the CTL GATT characteristic: a one-byte message type,
// an opaque body, and a trailing XOR checksum over everything that came
// before it.
package ctlmsg

import "fmt"

// MaxFrameSize is the largest a control message may be on the wire,
// including the type byte and the trailing checksum byte.
const MaxFrameSize = 20

// MaxBodySize is the largest a message body may be: MaxFrameSize minus
// the type byte and the checksum byte.
const MaxBodySize = MaxFrameSize - 2

// Type identifies the kind of a control message. The numeric values are
// the device's own wire protocol and must not be renumbered.
type Type byte

const (
	DbgCmd        Type = 0x00
	Idle          Type = 0x04
	RequestReturn Type = 0x05
	Returning     Type = 0x06
	RequestSend   Type = 0x07
	Accept        Type = 0x08
	RequestCap    Type = 0x09
	ReturnCap     Type = 0x0A
	RequestDel    Type = 0x0D
	DelSuccess    Type = 0x0E
	RequestDetail Type = 0x0F
	RequestStop   Type = 0x1F
	ErrVali       Type = 0x11
	ErrNoFile     Type = 0x12
	ErrMemory     Type = 0x13
	ErrStatus     Type = 0x14
	ErrDecode     Type = 0x15
	TimeSet       Type = 0x54
	TimeSetRtn    Type = 0x55
	RequestMga    Type = 0x77
	ReturnMga     Type = 0x78
	StatusAct     Type = 0xAC
	RequestClr    Type = 0xCC
	ReturnClr     Type = 0xCD
	DfuEnter      Type = 0xDF
	StatusReturn  Type = 0xFF
)

var typeNames = map[Type]string{
	DbgCmd:        "DbgCmd",
	Idle:          "Idle",
	RequestReturn: "RequestReturn",
	Returning:     "Returning",
	RequestSend:   "RequestSend",
	Accept:        "Accept",
	RequestCap:    "RequestCap",
	ReturnCap:     "ReturnCap",
	RequestDel:    "RequestDel",
	DelSuccess:    "DelSuccess",
	RequestDetail: "RequestDetail",
	RequestStop:   "RequestStop",
	ErrVali:       "ErrVali",
	ErrNoFile:     "ErrNoFile",
	ErrMemory:     "ErrMemory",
	ErrStatus:     "ErrStatus",
	ErrDecode:     "ErrDecode",
	TimeSet:       "TimeSet",
	TimeSetRtn:    "TimeSetRtn",
	RequestMga:    "RequestMga",
	ReturnMga:     "ReturnMga",
	StatusAct:     "StatusAct",
	RequestClr:    "RequestClr",
	ReturnClr:     "ReturnClr",
	DfuEnter:      "DfuEnter",
	StatusReturn:  "StatusReturn",
}

// String implements fmt.Stringer, falling back to the raw hex value for
// a type this build doesn't recognize by name.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(0x%02X)", byte(t))
}

// IsError reports whether t is one of the device-reported error types.
func (t Type) IsError() bool {
	switch t {
	case ErrVali, ErrNoFile, ErrMemory, ErrStatus, ErrDecode:
		return true
	default:
		return false
	}
}

// Message is a decoded control message: a type byte plus its body, with
// the checksum already verified (on decode) or not yet computed (before
// encode).
type Message struct {
	Type Type
	Body []byte
}

// partialChecksum XORs every byte of buf together.
func partialChecksum(buf []byte) byte {
	var acc byte
	for _, b := range buf {
		acc ^= b
	}
	return acc
}

// Encode renders m onto the wire: type byte, body, XOR checksum over
// both. It fails if the resulting frame would exceed MaxFrameSize.
func Encode(m Message) ([]byte, error) {
	if len(m.Body) > MaxBodySize {
		return nil, fmt.Errorf("ctlmsg: body of %d bytes exceeds max %d", len(m.Body), MaxBodySize)
	}

	frame := make([]byte, 0, 1+len(m.Body)+1)
	frame = append(frame, byte(m.Type))
	frame = append(frame, m.Body...)
	frame = append(frame, partialChecksum(frame))

	return frame, nil
}

// Decode parses a wire frame into a Message, verifying its trailing XOR
// checksum. It fails on an empty frame, a frame larger than
// MaxFrameSize, or a checksum mismatch.
func Decode(frame []byte) (Message, error) {
	if len(frame) < 2 {
		return Message{}, fmt.Errorf("ctlmsg: frame of %d bytes too short to contain a type and checksum", len(frame))
	}
	if len(frame) > MaxFrameSize {
		return Message{}, fmt.Errorf("ctlmsg: frame of %d bytes exceeds max %d", len(frame), MaxFrameSize)
	}

	payload, checksum := frame[:len(frame)-1], frame[len(frame)-1]
	if got := partialChecksum(payload); got != checksum {
		return Message{}, &ChecksumError{Got: got, Want: checksum}
	}

	t := Type(payload[0])
	if _, known := typeNames[t]; !known {
		return Message{}, &UnknownTypeError{Got: t}
	}

	body := make([]byte, len(payload)-1)
	copy(body, payload[1:])

	return Message{Type: t, Body: body}, nil
}

// ChecksumError reports a control-frame checksum mismatch, a framing
// error that is fatal to the session (the device and host have lost
// byte-level agreement on the wire).
type ChecksumError struct {
	Got, Want byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("ctlmsg: checksum mismatch: computed 0x%02X, frame says 0x%02X", e.Got, e.Want)
}

// UnknownTypeError reports a control frame whose type byte isn't one of
// the enumerated Type values, a framing error per spec.md §7.
type UnknownTypeError struct {
	Got Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("ctlmsg: unknown type 0x%02X", byte(e.Got))
}

// ErrorKind classifies a device-reported error message type into the
// condition it represents, mirroring the error taxonomy the device
// itself uses on the wire.
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorValidation
	ErrorNoFile
	ErrorNoMemory
	ErrorInvalidStatus
	ErrorDecodeFailed
)

// Classify maps a device-reported error Type to its ErrorKind. It
// returns ErrorUnknown, false for any Type that isn't one of the five
// error types.
func Classify(t Type) (ErrorKind, bool) {
	switch t {
	case ErrVali:
		return ErrorValidation, true
	case ErrNoFile:
		return ErrorNoFile, true
	case ErrMemory:
		return ErrorNoMemory, true
	case ErrStatus:
		return ErrorInvalidStatus, true
	case ErrDecode:
		return ErrorDecodeFailed, true
	default:
		return ErrorUnknown, false
	}
}
