package bits

import (
	"bytes"
	"testing"
)

func TestStripRemovesEmulationBytes(t *testing.T) {
	t.Parallel()
	ebsp := []byte{0x01, 0x00, 0x00, 0x03, 0x02, 0x00, 0x00, 0x03, 0x00}
	rbsp, removed := Strip(ebsp)
	want := []byte{0x01, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}
	if !bytes.Equal(rbsp, want) {
		t.Fatalf("Strip: got %x want %x", rbsp, want)
	}
	if removed != 2 {
		t.Fatalf("removed: got %d want 2", removed)
	}
}

func TestStripNoOp(t *testing.T) {
	t.Parallel()
	ebsp := []byte{0x01, 0x02, 0x03, 0x04}
	rbsp, removed := Strip(ebsp)
	if !bytes.Equal(rbsp, ebsp) {
		t.Fatalf("Strip: got %x want %x", rbsp, ebsp)
	}
	if removed != 0 {
		t.Fatalf("removed: got %d want 0", removed)
	}
}

// TestRBSPRoundTrip is the §8.1 property: for all byte sequences with no
// 0x000003 pattern, rbsp(ebsp(s)) == s.
func TestRBSPRoundTrip(t *testing.T) {
	t.Parallel()
	samples := [][]byte{
		{},
		{0x00},
		{0x01, 0x02, 0x03},
		{0x00, 0x00, 0x01}, // not a full 00 00 03, left untouched
		{0xFF, 0xFF, 0xFF, 0xFF},
		{0x00, 0x00, 0x04},
	}
	for _, s := range samples {
		ebsp := Unstrip(s)
		rbsp, _ := Strip(ebsp)
		if !bytes.Equal(rbsp, s) {
			t.Errorf("round trip failed for %x: got %x via ebsp %x", s, rbsp, ebsp)
		}
	}
}

func TestBitOffsetToByteOffset(t *testing.T) {
	t.Parallel()
	// EBSP: 1 plain byte, a 00 00 03 emulation-prevention escape, then 2 more bytes.
	ebsp := []byte{0xAA, 0x00, 0x00, 0x03, 0x01, 0xBB}
	rbsp, removed := Strip(ebsp)
	if removed != 1 {
		t.Fatalf("expected 1 removed byte, got %d", removed)
	}
	if !bytes.Equal(rbsp, []byte{0xAA, 0x00, 0x00, 0x01, 0xBB}) {
		t.Fatalf("unexpected rbsp % x", rbsp)
	}
	// rbsp = AA 00 00 01 BB; bit offset at start of the last byte (0xBB) is 32.
	gotByte := BitOffsetToByteOffset(32, ebsp) / 8
	// In the original EBSP, 0xBB sits at index 5 (after the 00 00 03 escape).
	if gotByte != 5 {
		t.Fatalf("expected ebsp byte offset 5, got %d", gotByte)
	}
}
