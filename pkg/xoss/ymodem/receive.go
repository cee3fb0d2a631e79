package ymodem

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Stream is what ReceiveFile and SendFile need from the underlying UART
// stream: a byte-oriented reader and writer (pkg/xoss/uart.Stream
// satisfies this).
type Stream interface {
	io.Reader
	io.Writer
	io.ByteReader
}

// ReceiveFile runs the receiver side of a transfer: announce readiness
// with 'C', read the header packet, then read data packets in sequence
// until the header's declared size is satisfied, finishing the EOT/NAK/
// EOT/ACK handshake. It returns the header and the file's full
// contents — the engine buffers the whole transfer rather than
// streaming it to the caller.
func ReceiveFile(ctx context.Context, s Stream) (Header, []byte, error) {
	var header Header
	var seq byte

	err := withStepTimeout(ctx, "initiating transfer", func() error {
		if _, err := s.Write([]byte{'C'}); err != nil {
			return fmt.Errorf("sending C: %w", err)
		}

		packet, err := readPacket(s)
		if err != nil {
			return fmt.Errorf("reading header packet: %w", err)
		}
		if packet.Seq != seq {
			return &SeqMismatchError{Got: packet.Seq, Want: seq}
		}

		h, err := ParseHeader(packet.Data)
		if err != nil {
			return err
		}
		header = h

		if _, err := s.Write([]byte{ack}); err != nil {
			return fmt.Errorf("sending ACK: %w", err)
		}
		if _, err := s.Write([]byte{'C'}); err != nil {
			return fmt.Errorf("sending C: %w", err)
		}
		return nil
	})
	if err != nil {
		return Header{}, nil, err
	}

	var out bytes.Buffer
	lenLeft := header.Size

	for lenLeft > 0 {
		seq++

		err := withStepTimeout(ctx, "reading packet", func() error {
			packet, err := readPacket(s)
			if err != nil {
				return fmt.Errorf("reading packet: %w", err)
			}
			if packet.Seq != seq {
				return &SeqMismatchError{Got: packet.Seq, Want: seq}
			}

			if _, err := s.Write([]byte{ack}); err != nil {
				return fmt.Errorf("sending ACK: %w", err)
			}

			dataLen := uint64(len(packet.Data))
			if lenLeft < dataLen {
				dataLen = lenLeft
			}
			out.Write(packet.Data[:dataLen])
			lenLeft -= dataLen

			return nil
		})
		if err != nil {
			return Header{}, nil, err
		}
	}

	err = withStepTimeout(ctx, "reading EOT", func() error {
		if b, err := s.ReadByte(); err != nil {
			return fmt.Errorf("reading EOT: %w", err)
		} else if b != eot {
			return &UnexpectedByteError{Step: "reading first EOT", Got: b, Want: eot}
		}
		if _, err := s.Write([]byte{nak}); err != nil {
			return fmt.Errorf("sending NAK: %w", err)
		}
		if b, err := s.ReadByte(); err != nil {
			return fmt.Errorf("reading second EOT: %w", err)
		} else if b != eot {
			return &UnexpectedByteError{Step: "reading second EOT", Got: b, Want: eot}
		}
		if _, err := s.Write([]byte{ack}); err != nil {
			return fmt.Errorf("sending final ACK: %w", err)
		}
		return nil
	})
	if err != nil {
		return Header{}, nil, err
	}

	return header, out.Bytes(), nil
}

func readPacket(s Stream) (Packet, error) {
	start, err := s.ReadByte()
	if err != nil {
		return Packet{}, err
	}

	dataLen, err := dataLenForStart(start)
	if err != nil {
		return Packet{}, err
	}

	rest := make([]byte, dataLen+4)
	if _, err := io.ReadFull(s, rest); err != nil {
		return Packet{}, err
	}

	raw := make([]byte, 0, 1+len(rest))
	raw = append(raw, start)
	raw = append(raw, rest...)

	return Parse(raw)
}
