// Package ble discovers the three proprietary XOSS GATT characteristics
// (UART TX/RX and CTL) and the standard battery/device-information ones,
// and fans out their notifications to the higher protocol layers.
package ble

import "tinygo.org/x/bluetooth"

func mustParseUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic("ble: invalid well-known UUID literal " + s + ": " + err.Error())
	}
	return u
}

// Proprietary XOSS characteristic UUIDs, shared by the UART TX/RX pair
// and the control channel.
var (
	UARTServiceUUID = mustParseUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	UARTTxUUID      = mustParseUUID("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	UARTRxUUID      = mustParseUUID("6e400003-b5a3-f393-e0a9-e50e24dcca9e")
	CtlUUID         = mustParseUUID("6e400004-b5a3-f393-e0a9-e50e24dcca9e")
)

// Standard Bluetooth SIG characteristics and services exposed by the
// device, expanded to their full 128-bit form from the 16-bit assigned
// numbers (0000xxxx-0000-1000-8000-00805f9b34fb).
var (
	BatteryLevelUUID     = mustParseUUID("00002a19-0000-1000-8000-00805f9b34fb")
	FirmwareRevisionUUID = mustParseUUID("00002a26-0000-1000-8000-00805f9b34fb")
	ManufacturerNameUUID = mustParseUUID("00002a29-0000-1000-8000-00805f9b34fb")
	ModelNumberUUID      = mustParseUUID("00002a24-0000-1000-8000-00805f9b34fb")
	HardwareRevisionUUID = mustParseUUID("00002a27-0000-1000-8000-00805f9b34fb")
	SerialNumberUUID     = mustParseUUID("00002a25-0000-1000-8000-00805f9b34fb")

	DeviceInformationServiceUUID = mustParseUUID("0000180a-0000-1000-8000-00805f9b34fb")
	BatteryServiceUUID           = mustParseUUID("0000180f-0000-1000-8000-00805f9b34fb")
)
