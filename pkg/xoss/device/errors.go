package device

import (
	"errors"
	"fmt"

	"github.com/dcnick3/xoss-sync/pkg/xoss/ctlmsg"
)

// TransportError wraps a failure writing to or reading from the BLE
// link itself (characteristic write failure, notification stream
// closed). It is fatal to the in-flight operation; the session attempts
// a RequestStop recovery before being considered dead.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("device: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FramingError wraps any failure decoding a frame at the control or
// YMODEM layer (bad checksum, unknown type, bad CRC, bad sequence). The
// device and host have lost byte-level agreement, so this is fatal to
// the whole session rather than just the current operation.
type FramingError struct {
	Op  string
	Err error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("device: framing error during %s: %v", e.Op, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// EchoMismatchError reports that a reply meant to echo the request body
// (RequestReturn/RequestSend/RequestDel/TimeSet) did not. Like framing
// errors, this leaves the device's state ambiguous and is fatal to the
// session.
type EchoMismatchError struct {
	Op       string
	Sent     []byte
	Received []byte
}

func (e *EchoMismatchError) Error() string {
	return fmt.Sprintf("device: %s: reply did not echo request body (sent %x, got %x)", e.Op, e.Sent, e.Received)
}

// DeviceError reports a condition the device itself reported via one of
// the five ErrXxx control-message types. It is propagated to the caller
// verbatim; the session remains usable afterward.
type DeviceError struct {
	Kind ctlmsg.ErrorKind
	Raw  []byte
}

func (e *DeviceError) Error() string {
	switch e.Kind {
	case ctlmsg.ErrorValidation:
		return "device: validation error"
	case ctlmsg.ErrorNoFile:
		return fmt.Sprintf("device: no such file: %q", string(e.Raw))
	case ctlmsg.ErrorNoMemory:
		return "device: out of memory"
	case ctlmsg.ErrorInvalidStatus:
		if len(e.Raw) == 1 && e.Raw[0] == 0x00 {
			return "device: invalid transaction status"
		}
		return fmt.Sprintf("device: invalid file status: %q", string(e.Raw))
	case ctlmsg.ErrorDecodeFailed:
		return fmt.Sprintf("device: decode failed: %q", string(e.Raw))
	default:
		return fmt.Sprintf("device: unknown device error, raw body %x", e.Raw)
	}
}

// IsInvalidTransactionStatus reports whether e is the specific
// InvalidStatus variant whose single-byte body is 0x00, per spec.md's
// distinction between a bad transaction status and a bad file status.
func (e *DeviceError) IsInvalidTransactionStatus() bool {
	return e.Kind == ctlmsg.ErrorInvalidStatus && len(e.Raw) == 1 && e.Raw[0] == 0x00
}

// asDeviceError converts msg into a *DeviceError if its type is one of
// the five device-reported error types, returning ok=false otherwise.
func asDeviceError(msg ctlmsg.Message) (*DeviceError, bool) {
	kind, ok := ctlmsg.Classify(msg.Type)
	if !ok {
		return nil, false
	}
	return &DeviceError{Kind: kind, Raw: msg.Body}, true
}

// TimeoutError reports that a control, post-transfer, or YMODEM-step
// timeout budget (spec.md §5) elapsed. It is fatal to the in-flight
// operation; the session attempts a RequestStop recovery.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("device: timed out during %s", e.Op)
}

// ContractError reports a caller-side violation of a fixed wire
// constraint: a control body too long, or a YMODEM filename+size header
// exceeding 128 bytes. Unlike the other families, this is caught before
// any bytes go on the wire and never touches device state.
type ContractError struct {
	Err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("device: contract violation: %v", e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

// ErrDead is returned by any operation attempted on a session that a
// prior fatal fault has left in the State family's "used after fault"
// condition. The caller must reconstruct the session (reconnect) to
// recover.
var ErrDead = errors.New("device: session is dead after an unrecovered fault; reconnect to continue")

// recoveryPolicy describes what §7 prescribes after a given failure:
// whether the session should attempt RequestStop and remain usable, or
// is considered dead outright.
type recoveryPolicy int

const (
	// recoverableViaStop: try RequestStop/expect Idle; usable again on
	// success, dead on further failure.
	recoverableViaStop recoveryPolicy = iota
	// fatalToSession: the device/host have lost agreement; no recovery
	// is attempted.
	fatalToSession
	// notFatal: the operation failed but the device is confirmed back
	// at Idle (or never left it); the session is unaffected.
	notFatal
)

func policyFor(err error) recoveryPolicy {
	var transportErr *TransportError
	var timeoutErr *TimeoutError
	var framingErr *FramingError
	var echoErr *EchoMismatchError

	switch {
	case errors.As(err, &transportErr), errors.As(err, &timeoutErr):
		return recoverableViaStop
	case errors.As(err, &framingErr), errors.As(err, &echoErr):
		return fatalToSession
	default:
		return notFatal
	}
}

// errorFamily names err's §7 error family for metrics labelling.
func errorFamily(err error) string {
	var transportErr *TransportError
	var framingErr *FramingError
	var echoErr *EchoMismatchError
	var deviceErr *DeviceError
	var timeoutErr *TimeoutError
	var contractErr *ContractError

	switch {
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &framingErr):
		return "framing"
	case errors.As(err, &echoErr):
		return "echo_mismatch"
	case errors.As(err, &deviceErr):
		return "device"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &contractErr):
		return "contract"
	case errors.Is(err, ErrDead):
		return "state"
	default:
		return "unknown"
	}
}
