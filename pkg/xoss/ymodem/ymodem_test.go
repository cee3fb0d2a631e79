package ymodem

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

// duplex is a Stream backed by a pair of io.Pipes, used to run a
// ReceiveFile/SendFile pair concurrently against each other in tests,
// the same way the device and host talk past one another over BLE.
type duplex struct {
	r *bufio.Reader
	w *io.PipeWriter
}

func (d *duplex) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *duplex) Write(p []byte) (int, error) { return d.w.Write(p) }
func (d *duplex) ReadByte() (byte, error)     { return d.r.ReadByte() }

func newDuplexPair() (a, b *duplex) {
	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	a = &duplex{r: bufio.NewReader(br), w: aw}
	b = &duplex{r: bufio.NewReader(ar), w: bw}
	return a, b
}

func TestSendReceiveRoundTrip_SmallFile(t *testing.T) {
	hostSide, deviceSide := newDuplexPair()

	const filename = "small.bin"
	payload := bytes.Repeat([]byte{0xCA}, 40)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- SendFile(ctx, hostSide, filename, payload)
	}()

	header, got, err := ReceiveFile(ctx, deviceSide)
	if err != nil {
		t.Fatalf("ReceiveFile: %v", err)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	if header.Name != filename {
		t.Errorf("header.Name = %q, want %q", header.Name, filename)
	}
	if header.Size != uint64(len(payload)) {
		t.Errorf("header.Size = %d, want %d", header.Size, len(payload))
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("received %d bytes, want %d bytes equal to payload", len(got), len(payload))
	}
}

func TestSendReceiveRoundTrip_LargeFile_ThreeSTXPackets(t *testing.T) {
	hostSide, deviceSide := newDuplexPair()

	const filename = "large.fit"
	// Three full STX (1024-byte) packets worth of data.
	payload := make([]byte, LargeDataSize*3)
	for i := range payload {
		payload[i] = byte(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- SendFile(ctx, hostSide, filename, payload)
	}()

	header, got, err := ReceiveFile(ctx, deviceSide)
	if err != nil {
		t.Fatalf("ReceiveFile: %v", err)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	if header.Size != uint64(len(payload)) {
		t.Fatalf("header.Size = %d, want %d", header.Size, len(payload))
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch after round trip of %d bytes", len(payload))
	}
}

func TestPacket_SerializeParseRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0x11}, SmallDataSize)
	p := Packet{Seq: 7, Data: data}

	raw, err := p.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Seq != p.Seq || !bytes.Equal(got.Data, p.Data) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestParse_InvalidCRC(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, SmallDataSize)
	p := Packet{Seq: 1, Data: data}
	raw, _ := p.Serialize()
	raw[len(raw)-1] ^= 0xFF

	_, err := Parse(raw)
	if err == nil {
		t.Fatal("expected a CRC error for a corrupted packet")
	}
	var crcErr *InvalidCRCError
	if !asCRCError(err, &crcErr) {
		t.Fatalf("error = %v, want *InvalidCRCError", err)
	}
}

func asCRCError(err error, target **InvalidCRCError) bool {
	if e, ok := err.(*InvalidCRCError); ok {
		*target = e
		return true
	}
	return false
}

func TestParse_InvalidStart(t *testing.T) {
	_, err := Parse([]byte{0x99, 0x00, 0xFF})
	if err == nil {
		t.Fatal("expected an error for an invalid start byte")
	}
}

func TestParseHeader(t *testing.T) {
	data := make([]byte, SmallDataSize)
	copy(data, "workout.fit 12345")

	h, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.Name != "workout.fit" || h.Size != 12345 {
		t.Fatalf("got %+v", h)
	}
}

func TestSendFile_FilenameTooLong(t *testing.T) {
	hostSide, _ := newDuplexPair()
	longName := string(bytes.Repeat([]byte{'a'}, SmallDataSize))

	err := SendFile(context.Background(), hostSide, longName, []byte("data"))
	if err == nil {
		t.Fatal("expected an error for an over-long filename/size header")
	}
}
