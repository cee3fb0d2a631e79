package ble

import (
	"log/slog"
	"sync/atomic"

	"tinygo.org/x/bluetooth"
)

// inboxDepth is the bounded size of the CTL and UART-RX notification
// inboxes. The device never has more than a couple of notifications in
// flight; a full inbox means nobody is reading, so the newest
// notification is dropped rather than blocking the pump.
const inboxDepth = 3

// Pump fans out BLE notifications arriving on the CTL and UART-RX
// characteristics to bounded channels that pkg/xoss/ctl and
// pkg/xoss/uart read from, and keeps the most recently reported battery
// percentage available for lock-free reads.
type Pump struct {
	ctl     chan []byte
	rx      chan []byte
	battery atomic.Int32
	log     *slog.Logger
}

// NewPump creates a Pump ready to have Dispatch called from BLE
// notification callbacks.
func NewPump(log *slog.Logger) *Pump {
	if log == nil {
		log = slog.Default()
	}
	p := &Pump{
		ctl: make(chan []byte, inboxDepth),
		rx:  make(chan []byte, inboxDepth),
		log: log,
	}
	p.battery.Store(-1)
	return p
}

// CTL returns the channel carrying CTL-characteristic notifications.
func (p *Pump) CTL() <-chan []byte { return p.ctl }

// RX returns the channel carrying UART-RX-characteristic notifications.
func (p *Pump) RX() <-chan []byte { return p.rx }

// Battery returns the last reported battery percentage, or -1 if the
// device has not yet reported one.
func (p *Pump) Battery() int32 { return p.battery.Load() }

// Dispatch routes a single notification by characteristic UUID. It is
// called directly from the tinygo/bluetooth notification callback, so it
// must never block: a full inbox drops the notification and logs a
// warning instead of stalling the BLE stack's callback goroutine.
func (p *Pump) Dispatch(uuid bluetooth.UUID, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	switch uuid {
	case CtlUUID:
		p.offer(p.ctl, "ctl", cp)
	case UARTRxUUID:
		p.offer(p.rx, "uart-rx", cp)
	case BatteryLevelUUID:
		if len(cp) >= 1 {
			p.battery.Store(int32(cp[0]))
		}
	case FirmwareRevisionUUID, ManufacturerNameUUID, ModelNumberUUID, HardwareRevisionUUID, SerialNumberUUID:
		// Device-information characteristics are read once at Open and
		// never subscribed to; a notification from one is ignored.
	default:
		p.log.Warn("ble: notification from unrecognized characteristic", "uuid", uuid.String(), "bytes", len(cp))
	}
}

func (p *Pump) offer(ch chan []byte, name string, data []byte) {
	select {
	case ch <- data:
	default:
		p.log.Warn("ble: inbox full, dropping notification", "channel", name, "bytes", len(data))
	}
}
