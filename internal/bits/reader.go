// Package bits implements the bit cursor shared by every codec header
// parser: byte/bit granularity reads, Exp-Golomb (ue/se) decoding, and
// emulation-prevention-byte stripping (RBSP extraction).
package bits

import "github.com/vdpu/vdpu/internal/verrors"

// Reader is a bit cursor over an RBSP-extracted byte buffer. It never
// advances past the end of the buffer; reads beyond it return
// BitstreamTruncated.
type Reader struct {
	data []byte
	pos  int // byte index
	bit  int // 0..7, bit offset within data[pos], MSB-first
}

// NewReader creates a Reader over data. data is expected to already be RBSP
// (emulation-prevention bytes removed) — see Strip.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// BitPosition returns the current cursor position in bits from the start of
// the buffer, used to report slice_data() offsets (§4.5).
func (r *Reader) BitPosition() int {
	return r.pos*8 + r.bit
}

// BytePosition returns the current cursor position rounded down to a byte
// boundary.
func (r *Reader) BytePosition() int {
	return r.pos
}

// BitsRemaining returns how many bits remain before the end of the buffer.
func (r *Reader) BitsRemaining() int {
	total := len(r.data) * 8
	return total - r.BitPosition()
}

// ByteAligned reports whether the cursor currently sits on a byte boundary.
func (r *Reader) ByteAligned() bool { return r.bit == 0 }

// GetBit reads a single bit and advances the cursor.
func (r *Reader) GetBit() (bool, error) {
	if r.pos >= len(r.data) {
		return false, verrors.New(verrors.KindBitstreamTruncated, "get_bit", nil)
	}
	v := (r.data[r.pos] >> (7 - uint(r.bit))) & 1
	r.bit++
	if r.bit == 8 {
		r.bit = 0
		r.pos++
	}
	return v == 1, nil
}

// ReadBits reads n (0 <= n <= 32) bits MSB-first and returns them as a
// right-aligned uint32.
func (r *Reader) ReadBits(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, verrors.New(verrors.KindInvalidParameter, "read_bits", nil)
	}
	var v uint32
	for i := 0; i < n; i++ {
		b, err := r.GetBit()
		if err != nil {
			return 0, err
		}
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v, nil
}

// ReadFlag reads a single bit as a bool (a thin ReadBits(1) convenience).
func (r *Reader) ReadFlag() (bool, error) {
	return r.GetBit()
}

// ReadUE reads an unsigned Exp-Golomb (ue(v)) code.
func (r *Reader) ReadUE() (uint32, error) {
	leadingZeros := 0
	for {
		b, err := r.GetBit()
		if err != nil {
			return 0, err
		}
		if b {
			break
		}
		leadingZeros++
		if leadingZeros > 31 {
			return 0, verrors.New(verrors.KindInvalidFormat, "read_ue", nil)
		}
	}
	if leadingZeros == 0 {
		return 0, nil
	}
	suffix, err := r.ReadBits(leadingZeros)
	if err != nil {
		return 0, err
	}
	return (uint32(1) << uint(leadingZeros)) - 1 + suffix, nil
}

// ReadSE reads a signed Exp-Golomb (se(v)) code, per the standard mapping
// from ue(v): codeNum even -> -(codeNum/2), odd -> (codeNum+1)/2.
func (r *Reader) ReadSE() (int32, error) {
	codeNum, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	if codeNum%2 == 0 {
		return -int32(codeNum / 2), nil
	}
	return int32((codeNum + 1) / 2), nil
}

// SkipBits advances the cursor by n bits without retaining the value.
func (r *Reader) SkipBits(n int) error {
	for n > 0 {
		take := minInt(n, 32)
		if _, err := r.ReadBits(take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

// ByteAlign advances the cursor to the next byte boundary, discarding any
// remaining bits in the current byte.
func (r *Reader) ByteAlign() {
	if r.bit != 0 {
		r.bit = 0
		r.pos++
	}
}

// MoreRBSPData reports whether slice_data()-style parsing has more
// meaningful bits left: the rbsp_trailing_bits() pattern (a single '1' bit
// followed by zero bits to the byte boundary) hasn't been reached yet.
func (r *Reader) MoreRBSPData() bool {
	if r.pos >= len(r.data) {
		return false
	}
	// Find the last set bit in the buffer; if the cursor is already there
	// or past it, only trailing bits remain.
	lastBytePos, lastBitPos := len(r.data)-1, -1
	for lastBytePos >= 0 {
		b := r.data[lastBytePos]
		if b != 0 {
			for bit := 0; bit < 8; bit++ {
				if (b>>uint(bit))&1 == 1 {
					lastBitPos = 7 - bit
					break
				}
			}
			break
		}
		lastBytePos--
	}
	if lastBitPos < 0 {
		return false
	}
	curAbs := r.pos*8 + r.bit
	lastAbs := lastBytePos*8 + lastBitPos
	return curAbs < lastAbs
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
