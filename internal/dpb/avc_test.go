package dpb

import (
	"testing"

	"github.com/vdpu/vdpu/internal/h264"
)

func TestApplyMMCOsOp1MarksShortTermPictureUnused(t *testing.T) {
	t.Parallel()
	d := New(8)
	d.Insert(&Record{OrderHint: 0, FrameNum: 0, Flags: ShortTermRef})
	d.Insert(&Record{OrderHint: 2, FrameNum: 1, Flags: ShortTermRef})

	ops := []h264.MMCOOp{{Op: 1, DifferenceOfPicNumsMinus1: 1}}
	applyMMCOs(d, ops, 2, 16, 4)

	r0, _ := d.FindByOrderHint(0)
	if r0.Flags.Has(ShortTermRef) {
		t.Fatalf("expected order hint 0 to lose ShortTermRef under MMCO op 1")
	}
	r2, _ := d.FindByOrderHint(2)
	if !r2.Flags.Has(ShortTermRef) {
		t.Fatalf("expected order hint 2 to remain a short-term reference")
	}
}

func TestApplyMMCOsOp2MarksLongTermPictureUnused(t *testing.T) {
	t.Parallel()
	d := New(8)
	d.Insert(&Record{OrderHint: 0, Flags: LongTermRef, LongTermFrameIdx: 3})
	d.Insert(&Record{OrderHint: 2, Flags: LongTermRef, LongTermFrameIdx: 1})

	ops := []h264.MMCOOp{{Op: 2, LongTermPicNum: 3}}
	applyMMCOs(d, ops, 4, 16, 6)

	r0, _ := d.FindByOrderHint(0)
	if r0.Flags.Has(LongTermRef) {
		t.Fatalf("expected long_term_frame_idx 3 to lose LongTermRef under MMCO op 2")
	}
	r2, _ := d.FindByOrderHint(2)
	if !r2.Flags.Has(LongTermRef) {
		t.Fatalf("expected long_term_frame_idx 1 to remain a long-term reference")
	}
}

func TestApplyMMCOsOp5ResetsAllButCurrent(t *testing.T) {
	t.Parallel()
	d := New(8)
	d.Insert(&Record{OrderHint: 0, Flags: ShortTermRef})
	d.Insert(&Record{OrderHint: 4, Flags: ShortTermRef})

	applyMMCOs(d, []h264.MMCOOp{{Op: 5}}, 0, 16, 4)

	r0, _ := d.FindByOrderHint(0)
	if r0.Flags.Has(ShortTermRef) || r0.Flags.Has(LongTermRef) {
		t.Fatalf("expected order hint 0 to be cleared by MMCO op 5")
	}
	r4, _ := d.FindByOrderHint(4)
	if !r4.Flags.Has(ShortTermRef) {
		t.Fatalf("expected the current picture (order hint 4) to keep its reference flag across op 5's sweep")
	}
}

func TestFramePicNumWrap(t *testing.T) {
	t.Parallel()
	if got := framePicNum(14, 2, 16); got != -2 {
		t.Fatalf("framePicNum wraparound: got %d, want -2", got)
	}
	if got := framePicNum(1, 4, 16); got != 1 {
		t.Fatalf("framePicNum no-wrap: got %d, want 1", got)
	}
}
