package crc

import "testing"

func TestCRC16ARC_CheckVector(t *testing.T) {
	// The standard CRC-16/ARC check vector: ASCII "123456789" -> 0xBB3D.
	got := CRC16ARC([]byte("123456789"))
	if got != 0xBB3D {
		t.Fatalf("CRC16ARC(%q) = %04X, want BB3D", "123456789", got)
	}
}

func TestCRC16ARC_Empty(t *testing.T) {
	if got := CRC16ARC(nil); got != 0x0000 {
		t.Fatalf("CRC16ARC(nil) = %04X, want 0000", got)
	}
}

func TestParams_CalculateMatchesConvenience(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0xFF, 0x00}
	if got, want := ARCParams.Calculate(data), CRC16ARC(data); got != want {
		t.Fatalf("Params.Calculate = %04X, CRC16ARC = %04X, want equal", got, want)
	}
}

func TestCRC16ARC_TableDriven(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{name: "single zero byte", data: []byte{0x00}, want: 0x0000},
		{name: "check vector", data: []byte("123456789"), want: 0xBB3D},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16ARC(tt.data); got != tt.want {
				t.Errorf("CRC16ARC(%v) = %04X, want %04X", tt.data, got, tt.want)
			}
		})
	}
}
