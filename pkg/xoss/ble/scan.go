package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"
)

// Peripheral bundles a connected device together with the three
// proprietary characteristics and the pump feeding from their
// notifications. Connect leaves the peripheral ready for
// pkg/xoss/ctl and pkg/xoss/uart to build channels on top of.
type Peripheral struct {
	Device *bluetooth.Device
	Pump   *Pump

	ctlChar *bluetooth.DeviceCharacteristic
	txChar  *bluetooth.DeviceCharacteristic
	rxChar  *bluetooth.DeviceCharacteristic

	batteryChar *bluetooth.DeviceCharacteristic
	infoChars   map[bluetooth.UUID]*bluetooth.DeviceCharacteristic
}

// Config selects which device to connect to and how long to scan for
// it.
type Config struct {
	// Name is the advertised local name to match. Either Name or
	// Address must be set.
	Name string
	// Address is the device's MAC/UUID address to match, taking
	// precedence over Name when both are set.
	Address string
	// ScanTimeout bounds how long Connect waits to find the device.
	ScanTimeout time.Duration
}

// DefaultScanTimeout is used when Config.ScanTimeout is zero.
const DefaultScanTimeout = 10 * time.Second

// Connect scans for, connects to, and discovers the characteristics of
// the target device, wiring its CTL and UART-RX notifications into a
// fresh Pump. It fails if the device cannot be found within
// cfg.ScanTimeout, or if any of the three proprietary characteristics
// (CTL, UART-TX, UART-RX) is missing —
// this device does not speak the XOSS protocol.
func Connect(ctx context.Context, adapter *bluetooth.Adapter, cfg Config, log *slog.Logger) (*Peripheral, error) {
	if cfg.Name == "" && cfg.Address == "" {
		return nil, fmt.Errorf("ble: one of Name or Address must be set")
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = DefaultScanTimeout
	}

	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enabling adapter: %w", err)
	}

	result, err := scanFor(ctx, adapter, cfg)
	if err != nil {
		return nil, err
	}

	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("ble: connecting to %s: %w", result.Address.String(), err)
	}

	services, err := device.DiscoverServices(nil)
	if err != nil {
		_ = device.Disconnect()
		return nil, fmt.Errorf("ble: discovering services: %w", err)
	}

	pump := NewPump(log)
	peripheral := &Peripheral{
		Device:    &device,
		Pump:      pump,
		infoChars: make(map[bluetooth.UUID]*bluetooth.DeviceCharacteristic),
	}

	for i := range services {
		svc := services[i]
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			continue
		}
		for j := range chars {
			ch := chars[j]
			switch ch.UUID() {
			case CtlUUID:
				c := ch
				peripheral.ctlChar = &c
			case UARTTxUUID:
				c := ch
				peripheral.txChar = &c
			case UARTRxUUID:
				c := ch
				peripheral.rxChar = &c
			case BatteryLevelUUID:
				c := ch
				peripheral.batteryChar = &c
			case FirmwareRevisionUUID, ManufacturerNameUUID, ModelNumberUUID, HardwareRevisionUUID, SerialNumberUUID:
				c := ch
				peripheral.infoChars[ch.UUID()] = &c
			}
		}
	}

	if peripheral.ctlChar == nil || peripheral.txChar == nil || peripheral.rxChar == nil {
		_ = device.Disconnect()
		return nil, fmt.Errorf("ble: device is missing one or more proprietary XOSS characteristics (ctl=%v tx=%v rx=%v)",
			peripheral.ctlChar != nil, peripheral.txChar != nil, peripheral.rxChar != nil)
	}

	if err := peripheral.ctlChar.EnableNotifications(func(data []byte) {
		pump.Dispatch(CtlUUID, data)
	}); err != nil {
		_ = device.Disconnect()
		return nil, fmt.Errorf("ble: enabling CTL notifications: %w", err)
	}

	if err := peripheral.rxChar.EnableNotifications(func(data []byte) {
		pump.Dispatch(UARTRxUUID, data)
	}); err != nil {
		_ = device.Disconnect()
		return nil, fmt.Errorf("ble: enabling UART-RX notifications: %w", err)
	}

	if peripheral.batteryChar != nil {
		_ = peripheral.batteryChar.EnableNotifications(func(data []byte) {
			pump.Dispatch(BatteryLevelUUID, data)
		})
		// Read the initial value once; later changes arrive as notifications.
		buf := make([]byte, 1)
		if n, err := peripheral.batteryChar.Read(buf); err == nil && n == 1 {
			pump.Dispatch(BatteryLevelUUID, buf)
		}
	}

	return peripheral, nil
}

func scanFor(ctx context.Context, adapter *bluetooth.Adapter, cfg Config) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	var matched atomic.Bool

	err := adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if matched.Load() {
			return
		}

		matches := (cfg.Address != "" && result.Address.String() == cfg.Address) ||
			(cfg.Address == "" && cfg.Name != "" && result.LocalName() == cfg.Name)

		if matches && matched.CompareAndSwap(false, true) {
			adapter.StopScan()
			found <- result
		}
	})
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("ble: starting scan: %w", err)
	}

	timeout := time.NewTimer(cfg.ScanTimeout)
	defer timeout.Stop()

	select {
	case result := <-found:
		return result, nil
	case <-timeout.C:
		adapter.StopScan()
		return bluetooth.ScanResult{}, fmt.Errorf("ble: scan timed out after %s looking for %q/%q", cfg.ScanTimeout, cfg.Name, cfg.Address)
	case <-ctx.Done():
		adapter.StopScan()
		return bluetooth.ScanResult{}, ctx.Err()
	}
}

// WriteCTL writes a frame to the CTL characteristic with a response,
// matching the device's expectation that control messages are
// acknowledged at the link layer.
func (p *Peripheral) WriteCTL(frame []byte) error {
	_, err := p.ctlChar.Write(frame)
	return err
}

// WriteUART writes a chunk to the UART TX characteristic
// without-response, as the device's UART stream expects.
func (p *Peripheral) WriteUART(chunk []byte) error {
	_, err := p.txChar.WriteWithoutResponse(chunk)
	return err
}

// ReadInfo reads one of the standard device-information characteristics
// (firmware/manufacturer/model/hardware/serial), returning "" if the
// device didn't expose it.
func (p *Peripheral) ReadInfo(uuid bluetooth.UUID) (string, error) {
	ch, ok := p.infoChars[uuid]
	if !ok {
		return "", nil
	}
	buf := make([]byte, 64)
	n, err := ch.Read(buf)
	if err != nil {
		return "", fmt.Errorf("ble: reading device-information characteristic %s: %w", uuid.String(), err)
	}
	return string(buf[:n]), nil
}

// Disconnect tears down the BLE connection. There is no reconnection
// support: a disconnected Peripheral must be discarded and a fresh one
// obtained via Connect.
func (p *Peripheral) Disconnect() error {
	return p.Device.Disconnect()
}
