// Package ymodem implements the BLE-adapted YMODEM-variant file-transfer
// engine (C5): same packet shape as classic YMODEM, but checksummed with
// CRC-16/ARC instead of CRC-16/XMODEM, and without batch/multi-file
// framing.
package ymodem

import (
	"fmt"

	"github.com/dcnick3/xoss-sync/pkg/utils/crc"
)

const (
	soh byte = 0x01
	stx byte = 0x02
	eot byte = 0x04
	ack byte = 0x06
	nak byte = 0x15
	can byte = 0x18
)

const (
	// SmallDataSize is the payload length of an SOH packet.
	SmallDataSize = 128
	// LargeDataSize is the payload length of an STX packet.
	LargeDataSize = 1024
	// MaxPacketSize is the largest a serialized packet can be: start +
	// seq + seq-complement + LargeDataSize + 2-byte CRC.
	MaxPacketSize = LargeDataSize + 5
)

// Packet is one YMODEM-variant data or header packet.
type Packet struct {
	Seq  byte
	Data []byte // always exactly SmallDataSize or LargeDataSize bytes
}

func dataLenForStart(start byte) (int, error) {
	switch start {
	case soh:
		return SmallDataSize, nil
	case stx:
		return LargeDataSize, nil
	default:
		return 0, &InvalidStartError{Got: start}
	}
}

func startByteForLen(n int) byte {
	if n == SmallDataSize {
		return soh
	}
	return stx
}

// Parse decodes raw (a complete packet, start byte through CRC) into a
// Packet, validating the sequence-number complement and the CRC-16/ARC
// checksum.
func Parse(raw []byte) (Packet, error) {
	if len(raw) < 2 {
		return Packet{}, &InvalidLengthError{Got: len(raw), Want: -1}
	}

	dataLen, err := dataLenForStart(raw[0])
	if err != nil {
		return Packet{}, err
	}

	wantLen := dataLen + 5
	if len(raw) != wantLen {
		return Packet{}, &InvalidLengthError{Got: len(raw), Want: wantLen}
	}

	seq, seqInv := raw[1], raw[2]
	if seq != seqInv^0xFF {
		return Packet{}, &InvalidSeqError{Seq: seq, SeqInv: seqInv}
	}

	data := raw[3 : len(raw)-2]

	wireCRC := uint16(raw[len(raw)-2])<<8 | uint16(raw[len(raw)-1])
	calcCRC := crc.CRC16ARC(data)
	if wireCRC != calcCRC {
		return Packet{}, &InvalidCRCError{Got: wireCRC, Want: calcCRC}
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	return Packet{Seq: seq, Data: dataCopy}, nil
}

// Serialize renders p onto the wire: start byte (chosen by payload
// size), seq, seq complement, payload, big-endian CRC-16/ARC.
func (p Packet) Serialize() ([]byte, error) {
	if len(p.Data) != SmallDataSize && len(p.Data) != LargeDataSize {
		return nil, fmt.Errorf("ymodem: packet data must be %d or %d bytes, got %d", SmallDataSize, LargeDataSize, len(p.Data))
	}

	buf := make([]byte, 0, MaxPacketSize)
	buf = append(buf, startByteForLen(len(p.Data)))
	buf = append(buf, p.Seq, p.Seq^0xFF)
	buf = append(buf, p.Data...)

	sum := crc.CRC16ARC(p.Data)
	buf = append(buf, byte(sum>>8), byte(sum))

	return buf, nil
}
