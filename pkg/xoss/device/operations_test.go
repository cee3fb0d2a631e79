package device

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dcnick3/xoss-sync/pkg/xoss/ctlmsg"
	"github.com/dcnick3/xoss-sync/pkg/xoss/ymodem"
)

func TestMemoryCapacity(t *testing.T) {
	f := newFakePeripheral()
	f.onCTL = func(msg ctlmsg.Message) {
		if msg.Type != ctlmsg.RequestCap {
			t.Errorf("unexpected request type %v", msg.Type)
			return
		}
		f.reply(ctlmsg.Message{Type: ctlmsg.ReturnCap, Body: []byte("1234/1024")})
	}

	d := newTestDevice(f)
	got, err := d.MemoryCapacity(context.Background())
	if err != nil {
		t.Fatalf("MemoryCapacity: %v", err)
	}
	if want := (MemoryCapacity{FreeKB: 1234, TotalKB: 1024}); got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSetTime(t *testing.T) {
	f := newFakePeripheral()
	var sentBody []byte
	f.onCTL = func(msg ctlmsg.Message) {
		if msg.Type != ctlmsg.TimeSet {
			t.Errorf("unexpected request type %v", msg.Type)
			return
		}
		sentBody = append([]byte(nil), msg.Body...)
		f.reply(ctlmsg.Message{Type: ctlmsg.TimeSetRtn, Body: msg.Body})
	}

	d := newTestDevice(f)
	when := time.Unix(0x5F5E1000, 0)
	if err := d.SetTime(context.Background(), when); err != nil {
		t.Fatalf("SetTime: %v", err)
	}

	want := []byte{0x00, 0x10, 0x5E, 0x5F}
	if !bytes.Equal(sentBody, want) {
		t.Fatalf("request body = % x, want % x", sentBody, want)
	}
}

func TestReadFile_SmallFile(t *testing.T) {
	f := newFakePeripheral()
	const filename = "hi.txt"
	payload := []byte("abc")
	sendErr := make(chan error, 1)

	f.onCTL = func(msg ctlmsg.Message) {
		switch msg.Type {
		case ctlmsg.RequestReturn:
			f.reply(ctlmsg.Message{Type: ctlmsg.Returning, Body: msg.Body})
			go func() {
				err := ymodem.SendFile(context.Background(), f.deviceStream(), filename, payload)
				if err == nil {
					f.reply(ctlmsg.Message{Type: ctlmsg.Idle})
				}
				sendErr <- err
			}()
		default:
			t.Errorf("unexpected control message %v", msg.Type)
		}
	}

	d := newTestDevice(f)
	got, err := d.ReadFile(context.Background(), filename)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("simulated device send: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestWriteFile_LargeFile(t *testing.T) {
	f := newFakePeripheral()
	const filename = "x.gnss"
	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i)
	}
	recvErr := make(chan error, 1)
	var gotHeader ymodem.Header
	var gotData []byte

	f.onCTL = func(msg ctlmsg.Message) {
		switch msg.Type {
		case ctlmsg.RequestSend:
			f.reply(ctlmsg.Message{Type: ctlmsg.Accept, Body: msg.Body})
			go func() {
				h, data, err := ymodem.ReceiveFile(context.Background(), f.deviceStream())
				gotHeader, gotData = h, data
				if err == nil {
					f.reply(ctlmsg.Message{Type: ctlmsg.Idle})
				}
				recvErr <- err
			}()
		default:
			t.Errorf("unexpected control message %v", msg.Type)
		}
	}

	d := newTestDevice(f)
	if err := d.WriteFile(context.Background(), filename, payload); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := <-recvErr; err != nil {
		t.Fatalf("simulated device receive: %v", err)
	}
	if gotHeader.Size != uint64(len(payload)) {
		t.Fatalf("header.Size = %d, want %d", gotHeader.Size, len(payload))
	}
	if !bytes.Equal(gotData, payload) {
		t.Fatalf("device received %d bytes, want payload of %d bytes round-tripped exactly", len(gotData), len(payload))
	}
}

func TestMGAStatus_Missing(t *testing.T) {
	f := newFakePeripheral()
	f.onCTL = func(msg ctlmsg.Message) {
		if msg.Type != ctlmsg.RequestMga {
			t.Errorf("unexpected request type %v", msg.Type)
			return
		}
		f.reply(ctlmsg.Message{Type: ctlmsg.ReturnMga, Body: []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00}})
	}

	d := newTestDevice(f)
	got, err := d.MGAStatus(context.Background())
	if err != nil {
		t.Fatalf("MGAStatus: %v", err)
	}
	if got.State != MGAMissingData {
		t.Fatalf("State = %v, want MGAMissingData", got.State)
	}
}

func TestReadFile_NoFileLeavesSessionUsable(t *testing.T) {
	f := newFakePeripheral()
	f.onCTL = func(msg ctlmsg.Message) {
		switch msg.Type {
		case ctlmsg.RequestReturn:
			f.reply(ctlmsg.Message{Type: ctlmsg.ErrNoFile, Body: msg.Body})
		case ctlmsg.RequestCap:
			f.reply(ctlmsg.Message{Type: ctlmsg.ReturnCap, Body: []byte("1/2")})
		default:
			t.Errorf("unexpected control message %v", msg.Type)
		}
	}

	d := newTestDevice(f)
	_, err := d.ReadFile(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected a NoFile error")
	}
	var devErr *DeviceError
	if !castDeviceError(err, &devErr) {
		t.Fatalf("error = %v (%T), want *DeviceError", err, err)
	}
	if devErr.Kind != ctlmsg.ErrorNoFile || string(devErr.Raw) != "nope" {
		t.Fatalf("got %+v, want NoFile(\"nope\")", devErr)
	}

	if _, err := d.MemoryCapacity(context.Background()); err != nil {
		t.Fatalf("MemoryCapacity after NoFile should still succeed: %v", err)
	}
}

func castDeviceError(err error, target **DeviceError) bool {
	if e, ok := err.(*DeviceError); ok {
		*target = e
		return true
	}
	return false
}

func TestSetTime_EchoMismatchKillsSession(t *testing.T) {
	f := newFakePeripheral()
	f.onCTL = func(msg ctlmsg.Message) {
		if msg.Type == ctlmsg.TimeSet {
			f.reply(ctlmsg.Message{Type: ctlmsg.TimeSetRtn, Body: []byte{0xFF, 0xFF, 0xFF, 0xFF}})
		}
	}

	d := newTestDevice(f)
	err := d.SetTime(context.Background(), time.Unix(1000, 0))
	if err == nil {
		t.Fatal("expected an echo-mismatch error")
	}

	if err := d.SetTime(context.Background(), time.Unix(2000, 0)); err != ErrDead {
		t.Fatalf("expected ErrDead after a framing-fatal echo mismatch, got %v", err)
	}
}
