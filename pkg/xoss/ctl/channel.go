// Package ctl implements the control channel (C3): a request/response
// rendezvous over the CTL GATT characteristic, with at most one
// in-flight request at a time.
package ctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dcnick3/xoss-sync/pkg/xoss/ctlmsg"
)

// DefaultTimeout bounds an ordinary control request/response round
// trip.
const DefaultTimeout = 1 * time.Second

// PostTransferTimeout is used for the control exchange that follows a
// file transfer, which can take longer than an ordinary exchange
// because the device may still be flushing the file it just received.
const PostTransferTimeout = 10 * time.Second

// RecoveryTimeout bounds the RequestStop/Idle exchange the session
// attempts after a transport or timeout fault, separate from
// DefaultTimeout because it follows a fault rather than routine use.
const RecoveryTimeout = 5 * time.Second

// Writer sends an encoded control frame to the device.
type Writer interface {
	WriteCTL(frame []byte) error
}

// ErrTimeout is returned when a control request receives no reply
// within its timeout. Per the recovery policy, a timeout is fatal to
// the in-flight operation; the caller should attempt a RequestStop
// recovery exchange before giving up on the session entirely.
var ErrTimeout = errors.New("ctl: timed out waiting for reply")

// Channel serializes control-message request/response exchanges. A
// Channel is not safe for concurrent Request calls — callers must
// enforce the single-in-flight-request invariant themselves (the device
// session's lock does this).
type Channel struct {
	writer Writer
	inbox  <-chan []byte
}

// New creates a Channel that writes frames via writer and reads replies
// from inbox (typically ble.Pump.CTL()).
func New(writer Writer, inbox <-chan []byte) *Channel {
	return &Channel{writer: writer, inbox: inbox}
}

// Request encodes and sends msg, then waits up to timeout for a reply,
// decoding and returning it. A non-positive timeout uses DefaultTimeout.
func (c *Channel) Request(ctx context.Context, msg ctlmsg.Message, timeout time.Duration) (ctlmsg.Message, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	frame, err := ctlmsg.Encode(msg)
	if err != nil {
		return ctlmsg.Message{}, fmt.Errorf("ctl: encoding request: %w", err)
	}

	if err := c.writer.WriteCTL(frame); err != nil {
		return ctlmsg.Message{}, fmt.Errorf("ctl: writing request: %w", err)
	}

	return c.recv(ctx, timeout)
}

// Recv waits up to timeout for the next control-channel reply without
// sending anything, for the rare case where the device pushes a CTL
// notification unprompted (e.g. Idle).
func (c *Channel) Recv(ctx context.Context, timeout time.Duration) (ctlmsg.Message, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return c.recv(ctx, timeout)
}

func (c *Channel) recv(ctx context.Context, timeout time.Duration) (ctlmsg.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame, ok := <-c.inbox:
		if !ok {
			return ctlmsg.Message{}, fmt.Errorf("ctl: inbox closed")
		}
		msg, err := ctlmsg.Decode(frame)
		if err != nil {
			return ctlmsg.Message{}, fmt.Errorf("ctl: decoding reply: %w", err)
		}
		return msg, nil
	case <-timer.C:
		return ctlmsg.Message{}, ErrTimeout
	case <-ctx.Done():
		return ctlmsg.Message{}, ctx.Err()
	}
}
