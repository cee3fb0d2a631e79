package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dcnick3/xoss-sync/pkg/metrics"
	"github.com/dcnick3/xoss-sync/pkg/xoss/ctl"
	"github.com/dcnick3/xoss-sync/pkg/xoss/ctlmsg"
	"github.com/dcnick3/xoss-sync/pkg/xoss/ymodem"
)

// MemoryCapacity reports the device's free and total storage, both in
// KiB, as parsed from a ReturnCap reply body.
type MemoryCapacity struct {
	FreeKB  uint32
	TotalKB uint32
}

// MGAState classifies the validity of the device's stored A-GNSS
// assistance data.
type MGAState int

const (
	// MGAMissingData means the device has no (or expired-to-zero)
	// assistance data cached.
	MGAMissingData MGAState = iota
	// MGAValid means the device's assistance data is valid until
	// ValidUntil.
	MGAValid
)

// MGAStatus is the parsed result of a ReturnMga reply.
type MGAStatus struct {
	State      MGAState
	ValidUntil time.Time
}

// MemoryCapacity issues RequestCap and parses the device's free/total
// storage from the ReturnCap reply body, an ASCII "<free_kb>/<total_kb>"
// string.
func (d *Device) MemoryCapacity(ctx context.Context) (MemoryCapacity, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	start := time.Now()
	defer func() { metrics.ObserveOperationDuration("memory-capacity", time.Since(start).Seconds()) }()

	if err := d.checkAlive(); err != nil {
		return MemoryCapacity{}, err
	}

	reply, err := d.ctl.Request(ctx, ctlmsg.Message{Type: ctlmsg.RequestCap}, ctl.DefaultTimeout)
	if opErr := wrapCtlError(err, "memory-capacity"); opErr != nil {
		return MemoryCapacity{}, d.recordAndWrap(ctx, "memory-capacity", "", opErr)
	}

	result, parseErr := parseMemoryCapacity(reply)
	return result, d.recordAndWrap(ctx, "memory-capacity", "", parseErr)
}

func parseMemoryCapacity(reply ctlmsg.Message) (MemoryCapacity, error) {
	if devErr, ok := asDeviceError(reply); ok {
		return MemoryCapacity{}, devErr
	}
	if reply.Type != ctlmsg.ReturnCap {
		return MemoryCapacity{}, &FramingError{Op: "memory-capacity", Err: fmt.Errorf("unexpected reply type %v", reply.Type)}
	}

	parts := strings.SplitN(string(reply.Body), "/", 2)
	if len(parts) != 2 {
		return MemoryCapacity{}, &FramingError{Op: "memory-capacity", Err: fmt.Errorf("malformed ReturnCap body %q", reply.Body)}
	}
	free, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return MemoryCapacity{}, &FramingError{Op: "memory-capacity", Err: fmt.Errorf("parsing free_kb: %w", err)}
	}
	total, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return MemoryCapacity{}, &FramingError{Op: "memory-capacity", Err: fmt.Errorf("parsing total_kb: %w", err)}
	}

	return MemoryCapacity{FreeKB: uint32(free), TotalKB: uint32(total)}, nil
}

// SetTime sets the device's clock, issuing TimeSet with the given time
// encoded as a little-endian unix-seconds u32 and verifying the
// TimeSetRtn reply echoes the same four bytes.
func (d *Device) SetTime(ctx context.Context, when time.Time) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	start := time.Now()
	defer func() { metrics.ObserveOperationDuration("set-time", time.Since(start).Seconds()) }()

	if err := d.checkAlive(); err != nil {
		return err
	}

	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, uint32(when.Unix()))

	reply, err := d.ctl.Request(ctx, ctlmsg.Message{Type: ctlmsg.TimeSet, Body: body}, ctl.DefaultTimeout)
	opErr := wrapCtlError(err, "set-time")
	if opErr == nil {
		opErr = checkReply(reply, ctlmsg.TimeSetRtn, body, "set-time")
	}

	return d.recordAndWrap(ctx, "set-time", when.Format(time.RFC3339), opErr)
}

// MGAStatus issues RequestMga and parses the device's A-GNSS assistance
// data validity from the 6-byte ReturnMga reply body.
func (d *Device) MGAStatus(ctx context.Context) (MGAStatus, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	start := time.Now()
	defer func() { metrics.ObserveOperationDuration("mga-status", time.Since(start).Seconds()) }()

	if err := d.checkAlive(); err != nil {
		return MGAStatus{}, err
	}

	reply, err := d.ctl.Request(ctx, ctlmsg.Message{Type: ctlmsg.RequestMga}, ctl.DefaultTimeout)
	if opErr := wrapCtlError(err, "mga-status"); opErr != nil {
		return MGAStatus{}, d.recordAndWrap(ctx, "mga-status", "", opErr)
	}

	status, parseErr := parseMGAStatus(reply)
	return status, d.recordAndWrap(ctx, "mga-status", "", parseErr)
}

func parseMGAStatus(reply ctlmsg.Message) (MGAStatus, error) {
	if devErr, ok := asDeviceError(reply); ok {
		return MGAStatus{}, devErr
	}
	if reply.Type != ctlmsg.ReturnMga {
		return MGAStatus{}, &FramingError{Op: "mga-status", Err: fmt.Errorf("unexpected reply type %v", reply.Type)}
	}
	if len(reply.Body) != 6 {
		return MGAStatus{}, &FramingError{Op: "mga-status", Err: fmt.Errorf("ReturnMga body length %d, want 6", len(reply.Body))}
	}

	unix := binary.LittleEndian.Uint32(reply.Body[2:6])
	if unix == 0 {
		return MGAStatus{State: MGAMissingData}, nil
	}
	return MGAStatus{State: MGAValid, ValidUntil: time.Unix(int64(unix), 0)}, nil
}

// DeleteFile removes name from the device, verifying the DelSuccess
// reply echoes the requested name.
func (d *Device) DeleteFile(ctx context.Context, name string) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	start := time.Now()
	defer func() { metrics.ObserveOperationDuration("delete-file", time.Since(start).Seconds()) }()

	if err := d.checkAlive(); err != nil {
		return err
	}

	body := []byte(name)
	reply, err := d.ctl.Request(ctx, ctlmsg.Message{Type: ctlmsg.RequestDel, Body: body}, ctl.DefaultTimeout)
	opErr := wrapCtlError(err, "delete-file")
	if opErr == nil {
		if devErr, ok := asDeviceError(reply); ok {
			opErr = devErr
		} else {
			opErr = checkReply(reply, ctlmsg.DelSuccess, body, "delete-file")
		}
	}

	return d.recordAndWrap(ctx, "delete-file", name, opErr)
}

// ReadFile fetches name from the device over the UART/YMODEM channel,
// bracketed by RequestReturn/Returning on the control channel and a
// trailing Idle expected within the post-transfer timeout.
func (d *Device) ReadFile(ctx context.Context, name string) ([]byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	start := time.Now()
	defer func() { metrics.ObserveOperationDuration("read-file", time.Since(start).Seconds()) }()

	if err := d.checkAlive(); err != nil {
		return nil, err
	}

	body := []byte(name)
	reply, err := d.ctl.Request(ctx, ctlmsg.Message{Type: ctlmsg.RequestReturn, Body: body}, ctl.DefaultTimeout)
	if opErr := wrapCtlError(err, "read-file"); opErr != nil {
		return nil, d.recordAndWrap(ctx, "read-file", name, opErr)
	}
	if devErr, ok := asDeviceError(reply); ok {
		// Device-reported errors here leave the session usable — no
		// transfer was ever started.
		return nil, d.recordAndWrap(ctx, "read-file", name, devErr)
	}
	if echoErr := checkReply(reply, ctlmsg.Returning, body, "read-file"); echoErr != nil {
		return nil, d.recordAndWrap(ctx, "read-file", name, echoErr)
	}

	stream, err := d.uart.Open()
	if err != nil {
		return nil, d.recordAndWrap(ctx, "read-file", name, &TransportError{Op: "read-file", Err: err})
	}

	// The header packet's own filename is the device's idea of the name
	// and is not consulted; the name supplied by the caller is
	// authoritative.
	_, data, err := ymodem.ReceiveFile(ctx, stream)
	_ = stream.Close()
	if err != nil {
		var opErr error = &FramingError{Op: "read-file", Err: err}
		if errors.Is(err, context.DeadlineExceeded) {
			opErr = &TimeoutError{Op: "read-file: YMODEM step"}
		}
		return nil, d.recordAndWrap(ctx, "read-file", name, opErr)
	}
	if d.progress != nil {
		d.progress.Progress("read-file", name, len(data), len(data))
	}

	idle, err := d.ctl.Recv(ctx, ctl.PostTransferTimeout)
	var opErr error
	switch {
	case err != nil:
		opErr = &TimeoutError{Op: "read-file: awaiting trailing Idle"}
	case idle.Type != ctlmsg.Idle:
		opErr = &FramingError{Op: "read-file", Err: fmt.Errorf("expected trailing Idle, got %v", idle.Type)}
	}

	if opErr != nil {
		return nil, d.recordAndWrap(ctx, "read-file", name, opErr)
	}
	metrics.AddBytes(metrics.DirectionDownload, len(data))
	return data, d.recordAndWrap(ctx, "read-file", fmt.Sprintf("%s (%d bytes)", name, len(data)), nil)
}

// WriteFile stores data under name on the device over the UART/YMODEM
// channel, bracketed by RequestSend/Accept on the control channel and a
// trailing Idle expected within the post-transfer timeout.
func (d *Device) WriteFile(ctx context.Context, name string, data []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	start := time.Now()
	defer func() { metrics.ObserveOperationDuration("write-file", time.Since(start).Seconds()) }()

	if err := d.checkAlive(); err != nil {
		return err
	}

	body := []byte(name)
	reply, err := d.ctl.Request(ctx, ctlmsg.Message{Type: ctlmsg.RequestSend, Body: body}, ctl.DefaultTimeout)
	if opErr := wrapCtlError(err, "write-file"); opErr != nil {
		return d.recordAndWrap(ctx, "write-file", name, opErr)
	}
	if devErr, ok := asDeviceError(reply); ok {
		return d.recordAndWrap(ctx, "write-file", name, devErr)
	}
	if echoErr := checkReply(reply, ctlmsg.Accept, body, "write-file"); echoErr != nil {
		return d.recordAndWrap(ctx, "write-file", name, echoErr)
	}

	stream, err := d.uart.Open()
	if err != nil {
		return d.recordAndWrap(ctx, "write-file", name, &TransportError{Op: "write-file", Err: err})
	}

	sendErr := ymodem.SendFile(ctx, stream, name, data)
	_ = stream.Close()
	if sendErr != nil {
		var opErr error = &FramingError{Op: "write-file", Err: sendErr}
		if errors.Is(sendErr, context.DeadlineExceeded) {
			opErr = &TimeoutError{Op: "write-file: YMODEM step"}
		}
		return d.recordAndWrap(ctx, "write-file", name, opErr)
	}
	if d.progress != nil {
		d.progress.Progress("write-file", name, len(data), len(data))
	}

	idle, err := d.ctl.Recv(ctx, ctl.PostTransferTimeout)
	var opErr error
	switch {
	case err != nil:
		opErr = &TimeoutError{Op: "write-file: awaiting trailing Idle"}
	case idle.Type != ctlmsg.Idle:
		opErr = &FramingError{Op: "write-file", Err: fmt.Errorf("expected trailing Idle, got %v", idle.Type)}
	}

	if opErr == nil {
		metrics.AddBytes(metrics.DirectionUpload, len(data))
	}
	return d.recordAndWrap(ctx, "write-file", fmt.Sprintf("%s (%d bytes)", name, len(data)), opErr)
}

// checkReply verifies reply has the expected type and, for echoing
// replies, that its body equals the request body, per §6's echo
// contract.
func checkReply(reply ctlmsg.Message, wantType ctlmsg.Type, wantBody []byte, op string) error {
	if reply.Type != wantType {
		return &FramingError{Op: op, Err: fmt.Errorf("unexpected reply type %v, want %v", reply.Type, wantType)}
	}
	if !bytes.Equal(reply.Body, wantBody) {
		return &EchoMismatchError{Op: op, Sent: wantBody, Received: reply.Body}
	}
	return nil
}

// wrapCtlError classifies a raw error from ctl.Channel.Request into the
// appropriate device error family.
func wrapCtlError(err error, op string) error {
	if err == nil {
		return nil
	}
	if err == ctl.ErrTimeout {
		return &TimeoutError{Op: op}
	}
	var checksumErr *ctlmsg.ChecksumError
	var unknownTypeErr *ctlmsg.UnknownTypeError
	if errors.As(err, &checksumErr) || errors.As(err, &unknownTypeErr) {
		return &FramingError{Op: op, Err: err}
	}
	return &TransportError{Op: op, Err: err}
}
