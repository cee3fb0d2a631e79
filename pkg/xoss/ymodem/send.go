package ymodem

import (
	"context"
	"fmt"
)

// SendFile runs the sender side of a transfer: wait for the device's
// 'C', send a header packet naming filename and len(data), then send
// data packets until all of data has been sent, finishing the EOT/NAK/
// EOT/ACK handshake. The whole file must already be in memory — the
// engine has no streaming-from-caller mode.
func SendFile(ctx context.Context, s Stream, filename string, data []byte) error {
	headerData, err := buildHeaderData(filename, uint64(len(data)))
	if err != nil {
		return err
	}

	packetDataSize := SmallDataSize
	if len(data) >= LargeDataSize {
		packetDataSize = LargeDataSize
	}

	var seq byte

	err = withStepTimeout(ctx, "initiating transfer", func() error {
		if b, err := s.ReadByte(); err != nil {
			return fmt.Errorf("reading C: %w", err)
		} else if b != 'C' {
			return &UnexpectedByteError{Step: "reading C", Got: b, Want: 'C'}
		}

		headerPacket := Packet{Seq: seq, Data: headerData}
		if err := writePacket(s, headerPacket); err != nil {
			return fmt.Errorf("writing header packet: %w", err)
		}

		if b, err := s.ReadByte(); err != nil {
			return fmt.Errorf("reading ACK: %w", err)
		} else if b != ack {
			return &UnexpectedByteError{Step: "reading ACK after header", Got: b, Want: ack}
		}
		if b, err := s.ReadByte(); err != nil {
			return fmt.Errorf("reading C: %w", err)
		} else if b != 'C' {
			return &UnexpectedByteError{Step: "reading C after header ACK", Got: b, Want: 'C'}
		}
		return nil
	})
	if err != nil {
		return err
	}

	remaining := data
	for len(remaining) > 0 {
		seq++

		n := packetDataSize
		if n > len(remaining) {
			n = len(remaining)
		}

		packetData := make([]byte, packetDataSize)
		copy(packetData, remaining[:n])
		remaining = remaining[n:]

		packet := Packet{Seq: seq, Data: packetData}

		err := withStepTimeout(ctx, "writing packet", func() error {
			if err := writePacket(s, packet); err != nil {
				return fmt.Errorf("writing packet: %w", err)
			}
			if b, err := s.ReadByte(); err != nil {
				return fmt.Errorf("reading ACK: %w", err)
			} else if b != ack {
				return &UnexpectedByteError{Step: "reading ACK after data packet", Got: b, Want: ack}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return withStepTimeout(ctx, "writing EOT", func() error {
		if _, err := s.Write([]byte{eot}); err != nil {
			return fmt.Errorf("sending EOT: %w", err)
		}
		if b, err := s.ReadByte(); err != nil {
			return fmt.Errorf("reading NAK: %w", err)
		} else if b != nak {
			return &UnexpectedByteError{Step: "reading NAK", Got: b, Want: nak}
		}
		if _, err := s.Write([]byte{eot}); err != nil {
			return fmt.Errorf("sending second EOT: %w", err)
		}
		if b, err := s.ReadByte(); err != nil {
			return fmt.Errorf("reading final ACK: %w", err)
		} else if b != ack {
			return &UnexpectedByteError{Step: "reading final ACK", Got: b, Want: ack}
		}
		return nil
	})
}

func writePacket(s Stream, p Packet) error {
	raw, err := p.Serialize()
	if err != nil {
		return err
	}
	_, err = s.Write(raw)
	return err
}
