package bits

// Strip removes emulation-prevention-three bytes from an EBSP NAL payload,
// turning it into RBSP: any 0x00 0x00 0x03 sequence has its trailing 0x03
// dropped (Annex-B / HEVC Annex B use the same 00 00 03 escape). It returns
// the RBSP bytes and the count of bytes removed, which callers need to
// translate a bit offset parsed from the RBSP back into an offset inside the
// original EBSP bytes (§4.5's slice-data-offset adjustment, exercised by
// E3 in the testable-properties table).
func Strip(ebsp []byte) (rbsp []byte, removed int) {
	out := make([]byte, 0, len(ebsp))
	zeros := 0
	for i := 0; i < len(ebsp); i++ {
		b := ebsp[i]
		if zeros >= 2 && b == 0x03 {
			removed++
			zeros = 0
			continue
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out, removed
}

// Unstrip re-inserts emulation-prevention-three bytes into rbsp, producing
// valid EBSP. It is the inverse of Strip for the RBSP round-trip property
// (§8.1): for any rbsp with no literal 0x000003 already present,
// Strip(Unstrip(rbsp)) == rbsp.
func Unstrip(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+len(rbsp)/100+2)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 0x03 {
			out = append(out, 0x03)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

// BitOffsetToByteOffset translates a bit offset measured against RBSP bytes
// (as produced while parsing slice_header()) into the matching bit offset
// inside the original EBSP buffer the accelerator backend consumes, by
// walking the RBSP byte-by-byte and re-counting emulation-prevention bytes
// as they would have appeared before the offset. The result is the EBSP
// byte index times 8 plus the bit position within that byte; divide by 8
// for the EBSP byte index. This is the computation E3 exercises.
func BitOffsetToByteOffset(rbspBitOffset int, ebsp []byte) int {
	rbspByteOffset := rbspBitOffset / 8
	zeros := 0
	ebspIdx := 0
	rbspConsumed := 0
	for ebspIdx < len(ebsp) && rbspConsumed < rbspByteOffset {
		b := ebsp[ebspIdx]
		if zeros >= 2 && b == 0x03 {
			zeros = 0
			ebspIdx++
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		ebspIdx++
		rbspConsumed++
	}
	return ebspIdx*8 + rbspBitOffset%8
}
