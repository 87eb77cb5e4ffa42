package dpb

import (
	"testing"

	"github.com/vdpu/vdpu/internal/hevc"
)

func TestUpdateHEVCBuildsLongTermCurrentSet(t *testing.T) {
	t.Parallel()
	d := New(8)
	d.Insert(&Record{OrderHint: 100, Flags: ShortTermRef})

	sps := hevc.SPS{Log2MaxPicOrderCntLsbMinus4: 4} // MaxPicOrderCntLsb = 256
	state := &HEVCState{}
	longTerm := []hevc.LongTermRefPic{{PocLsb: 100, UsedByCurrPic: true}}

	poc, sets, err := UpdateHEVC(d, state, sps, hevc.ShortTermRPS{}, longTerm, 104, false, true)
	if err != nil {
		t.Fatalf("UpdateHEVC: %v", err)
	}
	if poc != 104 {
		t.Fatalf("expected poc 104, got %d", poc)
	}
	if len(sets.LtCurr) != 1 || sets.LtCurr[0] != 100 {
		t.Fatalf("expected LtCurr=[100], got %v", sets.LtCurr)
	}
	r, ok := d.FindByOrderHint(100)
	if !ok || !r.Flags.Has(LongTermRef) {
		t.Fatalf("expected order hint 100 marked LongTermRef")
	}
}

func TestUpdateHEVCBuildsLongTermFollSet(t *testing.T) {
	t.Parallel()
	d := New(8)
	d.Insert(&Record{OrderHint: 50, Flags: ShortTermRef})

	sps := hevc.SPS{Log2MaxPicOrderCntLsbMinus4: 4}
	state := &HEVCState{}
	longTerm := []hevc.LongTermRefPic{{PocLsb: 50, UsedByCurrPic: false}}

	_, sets, err := UpdateHEVC(d, state, sps, hevc.ShortTermRPS{}, longTerm, 60, false, true)
	if err != nil {
		t.Fatalf("UpdateHEVC: %v", err)
	}
	if len(sets.LtCurr) != 0 {
		t.Fatalf("expected no LtCurr entries, got %v", sets.LtCurr)
	}
	if len(sets.LtFoll) != 1 || sets.LtFoll[0] != 50 {
		t.Fatalf("expected LtFoll=[50], got %v", sets.LtFoll)
	}
}

func TestResolveLongTermPOCWithDeltaMsbPresent(t *testing.T) {
	t.Parallel()
	d := New(8)
	d.Insert(&Record{OrderHint: 50})

	lt := hevc.LongTermRefPic{PocLsb: 50, DeltaPocMsbPresent: true, DeltaPocMsbCycle: 0}
	got, ok := resolveLongTermPOC(d, lt, 100, 100, 256)
	if !ok || got != 50 {
		t.Fatalf("resolveLongTermPOC with delta msb: got (%d,%v), want (50,true)", got, ok)
	}
}

func TestResolveLongTermPOCWithoutDeltaMsbMatchesLowBits(t *testing.T) {
	t.Parallel()
	d := New(8)
	d.Insert(&Record{OrderHint: 306}) // 306 % 256 == 50

	lt := hevc.LongTermRefPic{PocLsb: 50}
	got, ok := resolveLongTermPOC(d, lt, 400, 400%256, 256)
	if !ok || got != 306 {
		t.Fatalf("resolveLongTermPOC without delta msb: got (%d,%v), want (306,true)", got, ok)
	}
}

func TestResolveLongTermPOCNoMatch(t *testing.T) {
	t.Parallel()
	d := New(8)
	d.Insert(&Record{OrderHint: 10})

	lt := hevc.LongTermRefPic{PocLsb: 99}
	if _, ok := resolveLongTermPOC(d, lt, 100, 100, 256); ok {
		t.Fatalf("expected no match for an absent long-term picture")
	}
}
