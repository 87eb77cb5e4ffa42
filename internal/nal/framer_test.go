package nal

import "testing"

func h264Header(raw []byte) (uint8, uint8, uint8, int) {
	return raw[0] & 0x1F, 0, 0, 1
}

func TestFramerBasicAnnexB(t *testing.T) {
	t.Parallel()
	f := NewFramer(CodecH264, h264Header)
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0xAA, 0xBB,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCC,
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88,
	}
	if err := f.Feed(data); err != nil {
		t.Fatal(err)
	}
	units, err := f.Units()
	if err != nil {
		t.Fatal(err)
	}
	// The final NAL (type 5) is only delivered on Flush.
	if len(units) != 2 {
		t.Fatalf("expected 2 units before flush, got %d", len(units))
	}
	if units[0].Type != 7 || units[1].Type != 8 {
		t.Fatalf("unexpected types: %d, %d", units[0].Type, units[1].Type)
	}

	flushed, err := f.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if len(flushed) != 1 || flushed[0].Type != 5 {
		t.Fatalf("expected final IDR NAL on flush, got %+v", flushed)
	}
}

func TestFramer3ByteStartCode(t *testing.T) {
	t.Parallel()
	f := NewFramer(CodecH264, h264Header)
	data := []byte{
		0x00, 0x00, 0x01, 0x67, 0xAA,
		0x00, 0x00, 0x01, 0x65, 0xBB,
	}
	if err := f.Feed(data); err != nil {
		t.Fatal(err)
	}
	units, _ := f.Units()
	if len(units) != 1 || units[0].Type != 7 {
		t.Fatalf("expected 1 SPS unit before flush, got %+v", units)
	}
	flushed, _ := f.Flush()
	if len(flushed) != 1 || flushed[0].Type != 5 {
		t.Fatalf("expected IDR on flush, got %+v", flushed)
	}
}

func TestFramerIncrementalFeed(t *testing.T) {
	t.Parallel()
	f := NewFramer(CodecH264, h264Header)
	f.Feed([]byte{0x00, 0x00, 0x00, 0x01, 0x67, 0xAA})
	f.Feed([]byte{0x00, 0x00, 0x00, 0x01, 0x65, 0xBB})
	units, _ := f.Units()
	if len(units) != 1 || units[0].Type != 7 {
		t.Fatalf("expected 1 unit, got %+v", units)
	}
	f.Feed([]byte{0x00, 0x00, 0x00, 0x01, 0x09, 0x10})
	units, _ = f.Units()
	if len(units) != 1 || units[0].Type != 5 {
		t.Fatalf("expected IDR unit, got %+v", units)
	}
}

func TestFramerLengthPrefixed(t *testing.T) {
	t.Parallel()
	f := NewFramer(CodecH264, h264Header)
	f.SetLengthPrefixed(4)
	data := []byte{
		0x00, 0x00, 0x00, 0x02, 0x67, 0xAA,
		0x00, 0x00, 0x00, 0x02, 0x65, 0xBB,
	}
	if err := f.Feed(data); err != nil {
		t.Fatal(err)
	}
	units, err := f.Units()
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].Type != 7 || units[1].Type != 5 {
		t.Fatalf("unexpected types: %+v", units)
	}
}

func TestFramerEmulationPreventionStripped(t *testing.T) {
	t.Parallel()
	f := NewFramer(CodecH264, h264Header)
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x65, 0x01, 0x00, 0x00, 0x03, 0x02,
	}
	f.Feed(data)
	units, err := f.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	if units[0].EmulationBytes != 1 {
		t.Fatalf("expected 1 emulation byte removed, got %d", units[0].EmulationBytes)
	}
	want := []byte{0x01, 0x00, 0x00, 0x02}
	if len(units[0].RBSP) != len(want) {
		t.Fatalf("RBSP length: got %d want %d (%x)", len(units[0].RBSP), len(want), units[0].RBSP)
	}
}
