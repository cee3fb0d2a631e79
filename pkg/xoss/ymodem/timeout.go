package ymodem

import (
	"context"
	"fmt"
	"time"
)

// StepTimeout bounds every individual handshake/packet step of a
// transfer, matching the device's own patience: if the host or device
// doesn't respond within this window, the step (and the transfer) has
// failed.
const StepTimeout = 5 * time.Second

// withStepTimeout runs fn with a StepTimeout deadline. fn is expected to
// perform blocking I/O; since Go I/O isn't inherently cancellable,
// withStepTimeout returns as soon as the deadline or ctx expires even if
// fn is still running in the background — the caller must treat the
// underlying stream as unusable after a timeout.
func withStepTimeout(ctx context.Context, step string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, StepTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ymodem: %s: %w", step, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ymodem: %s: %w", step, ctx.Err())
	}
}
