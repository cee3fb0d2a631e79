package ctlmsg

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"empty body", Message{Type: Idle, Body: nil}},
		{"short body", Message{Type: RequestCap, Body: []byte{0x01, 0x02, 0x03}}},
		{"max body", Message{Type: ReturnCap, Body: bytes.Repeat([]byte{0xAB}, MaxBodySize)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if len(frame) > MaxFrameSize {
				t.Fatalf("encoded frame of %d bytes exceeds MaxFrameSize", len(frame))
			}

			got, err := Decode(frame)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Type != tt.msg.Type {
				t.Errorf("Type = %v, want %v", got.Type, tt.msg.Type)
			}
			if !bytes.Equal(got.Body, tt.msg.Body) {
				t.Errorf("Body = %v, want %v", got.Body, tt.msg.Body)
			}
		})
	}
}

func TestEncode_BodyTooLong(t *testing.T) {
	// 18 bytes is the boundary: type(1) + body(18) + checksum(1) = 20.
	if _, err := Encode(Message{Type: Idle, Body: bytes.Repeat([]byte{1}, MaxBodySize)}); err != nil {
		t.Fatalf("Encode with MaxBodySize bytes should succeed: %v", err)
	}
	if _, err := Encode(Message{Type: Idle, Body: bytes.Repeat([]byte{1}, MaxBodySize+1)}); err == nil {
		t.Fatalf("Encode with MaxBodySize+1 bytes should fail")
	}
}

func TestEncodedFrameChecksumIsZeroXOR(t *testing.T) {
	frame, err := Encode(Message{Type: TimeSet, Body: []byte{0x01, 0x02, 0x03, 0x04}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var acc byte
	for _, b := range frame {
		acc ^= b
	}
	if acc != 0 {
		t.Errorf("XOR of full encoded frame (including its own checksum) = 0x%02X, want 0", acc)
	}
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	frame, err := Encode(Message{Type: Idle, Body: []byte{0x01}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	frame[len(frame)-1] ^= 0xFF

	_, err = Decode(frame)
	if err == nil {
		t.Fatal("Decode should fail on a corrupted checksum")
	}
	var checksumErr *ChecksumError
	if !errors.As(err, &checksumErr) {
		t.Fatalf("error = %v, want *ChecksumError", err)
	}
}

func TestDecode_TooShort(t *testing.T) {
	if _, err := Decode([]byte{0x01}); err == nil {
		t.Fatal("Decode should reject a 1-byte frame (no room for a checksum)")
	}
	if _, err := Decode(nil); err == nil {
		t.Fatal("Decode should reject an empty frame")
	}
}

func TestDecode_TooLong(t *testing.T) {
	frame := make([]byte, MaxFrameSize+1)
	if _, err := Decode(frame); err == nil {
		t.Fatal("Decode should reject a frame longer than MaxFrameSize")
	}
}

func TestDecode_UnknownType(t *testing.T) {
	frame, err := Encode(Message{Type: Type(0x99), Body: []byte{0x01}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err = Decode(frame)
	if err == nil {
		t.Fatal("Decode should fail on a type byte outside the enumerated set")
	}
	var unknownErr *UnknownTypeError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("error = %v, want *UnknownTypeError", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		typ  Type
		want ErrorKind
		ok   bool
	}{
		{ErrVali, ErrorValidation, true},
		{ErrNoFile, ErrorNoFile, true},
		{ErrMemory, ErrorNoMemory, true},
		{ErrStatus, ErrorInvalidStatus, true},
		{ErrDecode, ErrorDecodeFailed, true},
		{Idle, ErrorUnknown, false},
		{ReturnCap, ErrorUnknown, false},
	}

	for _, tt := range tests {
		kind, ok := Classify(tt.typ)
		if ok != tt.ok || kind != tt.want {
			t.Errorf("Classify(%v) = (%v, %v), want (%v, %v)", tt.typ, kind, ok, tt.want, tt.ok)
		}
	}
}

func TestType_IsError(t *testing.T) {
	if !ErrNoFile.IsError() {
		t.Error("ErrNoFile.IsError() = false, want true")
	}
	if Idle.IsError() {
		t.Error("Idle.IsError() = true, want false")
	}
}

func TestType_String(t *testing.T) {
	if got := RequestCap.String(); got != "RequestCap" {
		t.Errorf("String() = %q, want RequestCap", got)
	}
	if got := Type(0x42).String(); got == "" {
		t.Errorf("String() of an unrecognized type should not be empty")
	}
}
