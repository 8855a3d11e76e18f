package main

import "testing"

func TestCRC16CheckValue(t *testing.T) {
	// Standard check value for CRC-16/CCITT-FALSE.
	if got := crc16([]byte("123456789")); got != 0x29B1 {
		t.Fatalf("crc16 check value: got 0x%04X, want 0x29B1", got)
	}
}

func TestCRC16Empty(t *testing.T) {
	if got := crc16(nil); got != 0xFFFF {
		t.Fatalf("crc16 of empty input: got 0x%04X, want 0xFFFF", got)
	}
}

func TestCRC16DetectsCorruption(t *testing.T) {
	payload := []byte{0x79, 0x28, 0x00, 0x01, 0x02}
	orig := crc16(payload)
	payload[2] ^= 0x10
	if crc16(payload) == orig {
		t.Fatalf("checksum unchanged after corruption")
	}
}
