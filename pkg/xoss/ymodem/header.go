package ymodem

import (
	"bytes"
	"fmt"
	"strconv"
)

// Header is the parsed first packet of a transfer: filename and size,
// NUL/space separated and zero-padded to fill the packet.
type Header struct {
	Name string
	Size uint64
}

// ParseHeader extracts a Header from a header packet's data, following
// the device's own convention of NUL-terminating and then splitting on
// NUL or space, discarding empty fields.
func ParseHeader(data []byte) (Header, error) {
	trimmed := bytes.TrimRight(data, "\x00")

	fields := bytes.FieldsFunc(trimmed, func(r rune) bool {
		return r == 0 || r == ' '
	})

	var h Header
	for _, f := range fields {
		if h.Name == "" {
			h.Name = string(f)
			continue
		}
		size, err := strconv.ParseUint(string(f), 10, 64)
		if err != nil {
			return Header{}, fmt.Errorf("ymodem: parsing header size field %q: %w", f, err)
		}
		h.Size = size
	}

	if h.Name == "" {
		return Header{}, fmt.Errorf("ymodem: header packet has no filename")
	}

	return h, nil
}

// buildHeaderData renders name/size into an SOH-sized ("128 byte")
// header packet payload, zero-padded. It fails if the rendered
// "name size" string doesn't fit.
func buildHeaderData(name string, size uint64) ([]byte, error) {
	header := fmt.Sprintf("%s %d", name, size)
	if len(header) > SmallDataSize {
		return nil, &ErrFilenameTooLong{HeaderLen: len(header)}
	}

	data := make([]byte, SmallDataSize)
	copy(data, header)
	return data, nil
}
