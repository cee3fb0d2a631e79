// Package device implements the device session (C6): the high-level
// object callers use to open a connected XOSS peripheral and perform
// atomic read-file / write-file / delete-file / set-time / query
// operations against it, composing the control channel (C3), the UART
// byte stream (C4), and the YMODEM engine (C5).
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/dcnick3/xoss-sync/pkg/metrics"
	"github.com/dcnick3/xoss-sync/pkg/xoss/ble"
	"github.com/dcnick3/xoss-sync/pkg/xoss/ctl"
	"github.com/dcnick3/xoss-sync/pkg/xoss/ctlmsg"
	"github.com/dcnick3/xoss-sync/pkg/xoss/model"
	"github.com/dcnick3/xoss-sync/pkg/xoss/uart"
)

// DeviceInformation is the immutable snapshot of the standard
// device-information characteristics, read once at Open and never
// updated afterward.
type DeviceInformation struct {
	Firmware     string
	Manufacturer string
	Model        string
	Hardware     string
	Serial       string
}

// BatteryReader exposes the pump's lock-free battery reading.
type BatteryReader interface {
	Battery() int32
}

// HistoryStore records completed operations for later audit (C8). A nil
// Store disables history recording.
type HistoryStore interface {
	Record(ctx context.Context, operation string, detail string, err error)
}

// Publisher pushes telemetry about completed operations (C9). A nil
// Publisher disables telemetry.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// ProgressReporter is told about each completed file transfer (C11): it
// is called once, after the transfer, with done == total; no
// intermediate progress is reported. A nil ProgressReporter disables
// progress events.
type ProgressReporter interface {
	Progress(operation, filename string, done, total int)
}

// Device is a session against one connected XOSS peripheral. It is not
// safe for concurrent unrelated operations: the lock serialises all
// operations that touch the control or UART channel, matching spec.md's
// "one logical connection, one owner" model (§9).
type Device struct {
	peripheral interface {
		ReadInfo(uuid bluetooth.UUID) (string, error)
		Disconnect() error
	}
	battery BatteryReader

	ctl  *ctl.Channel
	uart *uart.Channel

	info DeviceInformation

	lock sync.Mutex
	dead bool

	header   *model.Header
	hasCache bool

	history  HistoryStore
	telem    Publisher
	progress ProgressReporter

	log *slog.Logger
}

// Options carries the optional ambient collaborators a Device may be
// wired to. All fields are optional; a zero Options disables history,
// telemetry, and progress reporting.
type Options struct {
	History   HistoryStore
	Telemetry Publisher
	Progress  ProgressReporter
	Log       *slog.Logger
}

// Open wraps an already-connected peripheral (post service-discovery,
// per ble.Connect) into a Device session: it reads the immutable
// device-information strings and initial battery value, then issues
// StatusReturn and, if the device isn't already Idle, a recovery
// RequestStop — the device remembers an interrupted transfer across
// reconnects and refuses subsequent operations otherwise.
func Open(ctx context.Context, p *ble.Peripheral, opts Options) (*Device, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	info := DeviceInformation{}
	var err error
	if info.Firmware, err = p.ReadInfo(ble.FirmwareRevisionUUID); err != nil {
		return nil, fmt.Errorf("device: reading firmware revision: %w", err)
	}
	if info.Manufacturer, err = p.ReadInfo(ble.ManufacturerNameUUID); err != nil {
		return nil, fmt.Errorf("device: reading manufacturer name: %w", err)
	}
	if info.Model, err = p.ReadInfo(ble.ModelNumberUUID); err != nil {
		return nil, fmt.Errorf("device: reading model number: %w", err)
	}
	if info.Hardware, err = p.ReadInfo(ble.HardwareRevisionUUID); err != nil {
		return nil, fmt.Errorf("device: reading hardware revision: %w", err)
	}
	if info.Serial, err = p.ReadInfo(ble.SerialNumberUUID); err != nil {
		return nil, fmt.Errorf("device: reading serial number: %w", err)
	}

	d := newDevice(
		ctl.New(p, p.Pump.CTL()),
		uart.New(p, p.Pump.RX()),
		info,
		p.Pump,
		p,
		opts,
	)

	status, err := d.ctl.Request(ctx, ctlmsg.Message{Type: ctlmsg.StatusReturn}, ctl.DefaultTimeout)
	if err != nil {
		return nil, &TimeoutError{Op: "initial StatusReturn"}
	}
	if status.Type != ctlmsg.Idle {
		log.Warn("device: status returned non-Idle on open, issuing recovery stop", "type", status.Type.String())
		stop, err := d.ctl.Request(ctx, ctlmsg.Message{Type: ctlmsg.RequestStop}, ctl.DefaultTimeout)
		if err != nil || stop.Type != ctlmsg.Idle {
			return nil, fmt.Errorf("device: device did not return to Idle after recovery stop (status=%v, err=%v)", stop.Type, err)
		}
	}

	metrics.SetDeviceConnected(true)
	metrics.SetBatteryPercent(d.Battery())
	return d, nil
}

func newDevice(
	ctlCh *ctl.Channel,
	uartCh *uart.Channel,
	info DeviceInformation,
	battery BatteryReader,
	peripheral interface {
		ReadInfo(uuid bluetooth.UUID) (string, error)
		Disconnect() error
	},
	opts Options,
) *Device {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Device{
		peripheral: peripheral,
		battery:    battery,
		ctl:        ctlCh,
		uart:       uartCh,
		info:       info,
		history:    opts.History,
		telem:      opts.Telemetry,
		progress:   opts.Progress,
		log:        log,
	}
}

// Info returns the immutable device-information snapshot read at Open.
func (d *Device) Info() DeviceInformation { return d.info }

// Battery returns the last reported battery percentage (0-100), or -1
// if none has been reported yet. It does not take the device lock.
func (d *Device) Battery() int32 { return d.battery.Battery() }

// Close disconnects the underlying peripheral. The pump and its
// notification subscriptions are torn down as part of the BLE
// disconnect.
func (d *Device) Close() error {
	metrics.SetDeviceConnected(false)
	return d.peripheral.Disconnect()
}

// recordAndWrap updates session-dead state per the recovery policy
// (§7), attempting a RequestStop recovery for transport/timeout
// failures, and records the outcome to history/telemetry before
// returning the (possibly enriched) error to the caller.
func (d *Device) recordAndWrap(ctx context.Context, operation, detail string, err error) error {
	if err != nil {
		switch policyFor(err) {
		case fatalToSession:
			d.dead = true
		case recoverableViaStop:
			if recErr := d.attemptRecoveryStop(ctx); recErr != nil {
				d.dead = true
			}
		}
	}

	if err != nil {
		metrics.IncOperation(operation, metrics.StatusFailed)
		metrics.IncError(errorFamily(err))
	} else {
		metrics.IncOperation(operation, metrics.StatusSuccess)
	}

	if d.history != nil {
		d.history.Record(ctx, operation, detail, err)
	}
	if d.telem != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		if pubErr := d.telem.Publish("xoss/operation/"+operation, []byte(fmt.Sprintf(`{"detail":%q,"status":%q}`, detail, status))); pubErr != nil {
			d.log.Warn("device: telemetry publish failed", "operation", operation, "error", pubErr)
		}
	}

	return err
}

// attemptRecoveryStop sends RequestStop and waits (up to
// ctl.RecoveryTimeout) for the device to confirm it returned to Idle, per
// the §7 recovery policy for transport/timeout failures.
func (d *Device) attemptRecoveryStop(ctx context.Context) error {
	reply, err := d.ctl.Request(ctx, ctlmsg.Message{Type: ctlmsg.RequestStop}, ctl.RecoveryTimeout)
	if err != nil {
		return err
	}
	if reply.Type != ctlmsg.Idle {
		return fmt.Errorf("device: recovery stop did not return Idle, got %v", reply.Type)
	}
	return nil
}

// checkAlive returns ErrDead if a prior fatal fault has left the
// session unusable, per the State error family (§7).
func (d *Device) checkAlive() error {
	if d.dead {
		return ErrDead
	}
	return nil
}
