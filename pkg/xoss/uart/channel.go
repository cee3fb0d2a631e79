// Package uart implements the UART-style TX/RX channel (C4): an
// MTU-chunked, write-without-response byte stream layered over the
// proprietary UART TX/RX characteristics, used by pkg/xoss/ymodem for
// file transfer.
package uart

import (
	"bufio"
	"fmt"
	"io"
)

// MTU is the maximum chunk size written to the TX characteristic in one
// write-without-response call.
const MTU = 206

// Writer sends a chunk to the device over the UART TX characteristic.
type Writer interface {
	WriteUART(chunk []byte) error
}

// Channel serializes access to the single UART byte stream a device
// exposes at a time. Only one Stream may be open at once; Open fails if
// a previous Stream hasn't been closed.
type Channel struct {
	writer Writer
	inbox  <-chan []byte
	open   bool
}

// New creates a Channel that writes via writer and reads incoming bytes
// from inbox (typically ble.Pump.RX()).
func New(writer Writer, inbox <-chan []byte) *Channel {
	return &Channel{writer: writer, inbox: inbox}
}

// Open returns a fresh Stream over the channel. It fails if a
// previously opened Stream was never closed — XOSS devices only ever
// have one logical file transfer in flight.
func (c *Channel) Open() (*Stream, error) {
	if c.open {
		return nil, fmt.Errorf("uart: a stream is already open")
	}
	c.open = true

	pr, pw := io.Pipe()
	go feed(c.inbox, pw)

	return &Stream{
		channel: c,
		writer:  c.writer,
		reader:  bufio.NewReaderSize(pr, 4*MTU),
		pipeW:   pw,
	}, nil
}

func feed(inbox <-chan []byte, pw *io.PipeWriter) {
	for chunk := range inbox {
		if _, err := pw.Write(chunk); err != nil {
			return
		}
	}
}

// Stream is an io.ReadWriteCloser over a device's UART channel: reads
// drain notifications the pump routed from the UART-RX characteristic,
// writes are chunked to MTU and sent write-without-response on the
// UART-TX characteristic.
type Stream struct {
	channel *Channel
	writer  Writer
	reader  *bufio.Reader
	pipeW   *io.PipeWriter
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

// ReadByte implements io.ByteReader, used by pkg/xoss/ymodem to read the
// single-byte start markers of YMODEM packets.
func (s *Stream) ReadByte() (byte, error) {
	return s.reader.ReadByte()
}

// Write implements io.Writer, chunking p into MTU-sized
// write-without-response calls. A single Write call may issue several
// underlying BLE writes; callers that need each chunk acknowledged at a
// higher protocol layer (as YMODEM does) should write one packet per
// call.
func (s *Stream) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := len(p)
		if n > MTU {
			n = MTU
		}
		if err := s.writer.WriteUART(p[:n]); err != nil {
			return written, fmt.Errorf("uart: write: %w", err)
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

// Close releases the stream, allowing Channel.Open to be called again.
func (s *Stream) Close() error {
	s.channel.open = false
	return s.pipeW.Close()
}
