package device

import (
	"bufio"
	"io"

	"tinygo.org/x/bluetooth"

	"github.com/dcnick3/xoss-sync/pkg/xoss/ctl"
	"github.com/dcnick3/xoss-sync/pkg/xoss/ctlmsg"
	"github.com/dcnick3/xoss-sync/pkg/xoss/uart"
)

// fakePeripheral is an in-memory double for *ble.Peripheral, good
// enough to drive a Device's control channel and UART/YMODEM transfers
// end to end without any real BLE hardware. Control replies are
// produced synchronously (or from a spawned goroutine, for the
// post-transfer Idle) by the test-supplied onCTL callback; UART bytes
// written by the host flow through an io.Pipe to whichever fakeDevice
// the test spins up to answer them.
type fakePeripheral struct {
	ctlIn chan []byte
	rxIn  chan []byte

	hostToDevice *io.PipeWriter
	deviceReader *bufio.Reader

	onCTL func(msg ctlmsg.Message)

	battery int32
}

func newFakePeripheral() *fakePeripheral {
	pr, pw := io.Pipe()
	return &fakePeripheral{
		ctlIn:        make(chan []byte, 3),
		rxIn:         make(chan []byte, 3),
		hostToDevice: pw,
		deviceReader: bufio.NewReaderSize(pr, 8192),
		battery:      -1,
	}
}

func (f *fakePeripheral) WriteCTL(frame []byte) error {
	msg, err := ctlmsg.Decode(frame)
	if err != nil {
		return err
	}
	if f.onCTL != nil {
		f.onCTL(msg)
	}
	return nil
}

func (f *fakePeripheral) WriteUART(chunk []byte) error {
	_, err := f.hostToDevice.Write(chunk)
	return err
}

func (f *fakePeripheral) ReadInfo(uuid bluetooth.UUID) (string, error) {
	return "", nil
}

func (f *fakePeripheral) Disconnect() error { return nil }

func (f *fakePeripheral) Battery() int32 { return f.battery }

// reply pushes a control message into the CTL inbox as if it had
// arrived as a device notification.
func (f *fakePeripheral) reply(msg ctlmsg.Message) {
	frame, err := ctlmsg.Encode(msg)
	if err != nil {
		panic(err)
	}
	f.ctlIn <- frame
}

// fakeDeviceStream is the ymodem.Stream the simulated device side runs
// the engine against: it reads bytes the host wrote via WriteUART and
// turns every Write into a single notification on the RX inbox, mirroring
// how the real device's BLE notifications arrive as discrete chunks.
type fakeDeviceStream struct {
	r   *bufio.Reader
	out chan []byte
}

func (s *fakeDeviceStream) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *fakeDeviceStream) ReadByte() (byte, error)    { return s.r.ReadByte() }
func (s *fakeDeviceStream) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	s.out <- cp
	return len(p), nil
}

func (f *fakePeripheral) deviceStream() *fakeDeviceStream {
	return &fakeDeviceStream{r: f.deviceReader, out: f.rxIn}
}

func newTestDevice(f *fakePeripheral) *Device {
	return newDevice(
		ctl.New(f, f.ctlIn),
		uart.New(f, f.rxIn),
		DeviceInformation{},
		f,
		f,
		Options{},
	)
}
