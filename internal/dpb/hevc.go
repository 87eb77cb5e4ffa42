package dpb

import (
	"github.com/vdpu/vdpu/internal/hevc"
	"github.com/vdpu/vdpu/internal/verrors"
)

// HEVCState carries the cross-picture state the HEVC reference manager
// needs: POC derivation's prevTid0Pic tracking, per §4.4 step 1.
type HEVCState struct {
	POC hevc.POCState
}

// HEVCRefSets is the result of §4.4 step 3: the five reference picture
// sets built from POC comparisons against the current picture's RPS.
type HEVCRefSets struct {
	StCurrBefore []int64
	StCurrAfter  []int64
	LtCurr       []int64
	StFoll       []int64
	LtFoll       []int64
}

// Total returns the combined size of the "currently used" sets, which must
// not exceed 8 per §4.4 step 3.
func (s HEVCRefSets) Total() int {
	return len(s.StCurrBefore) + len(s.StCurrAfter) + len(s.LtCurr)
}

// UpdateHEVC applies one HEVC picture's reference picture set to d: it
// derives POC, builds the five reference sets (including long-term, per
// std 8.3.2), marks/clears DPB flags, and bumps out pictures beyond
// sps_max_dec_pic_buffering, per §4.4.
func UpdateHEVC(d *DPB, state *HEVCState, sps hevc.SPS, rps hevc.ShortTermRPS, longTermRefPics []hevc.LongTermRefPic, picOrderCntLsb uint32, isIRAPNoRaslOutput bool, tid0 bool) (int64, HEVCRefSets, error) {
	poc := int64(hevc.DerivePOC(sps, picOrderCntLsb, isIRAPNoRaslOutput, state.POC))
	if tid0 {
		state.POC = hevc.POCState{PrevPicOrderCntMsb: int32(poc - int64(picOrderCntLsb)), PrevPicOrderCntLsb: picOrderCntLsb}
	}

	sets := HEVCRefSets{}
	for _, delta := range rps.DeltaPocS0 {
		target := poc + int64(delta)
		if _, ok := d.FindByOrderHint(target); ok {
			if used := usedS0(rps, delta); used {
				sets.StCurrBefore = append(sets.StCurrBefore, target)
			} else {
				sets.StFoll = append(sets.StFoll, target)
			}
		}
	}
	for _, delta := range rps.DeltaPocS1 {
		target := poc + int64(delta)
		if _, ok := d.FindByOrderHint(target); ok {
			if used := usedS1(rps, delta); used {
				sets.StCurrAfter = append(sets.StCurrAfter, target)
			} else {
				sets.StFoll = append(sets.StFoll, target)
			}
		}
	}

	maxLsb := int64(sps.MaxPicOrderCntLsb())
	for _, lt := range longTermRefPics {
		target, ok := resolveLongTermPOC(d, lt, poc, int64(picOrderCntLsb), maxLsb)
		if !ok {
			continue
		}
		if lt.UsedByCurrPic {
			sets.LtCurr = append(sets.LtCurr, target)
		} else {
			sets.LtFoll = append(sets.LtFoll, target)
		}
	}

	if sets.Total() > 8 {
		return poc, sets, verrors.New(verrors.KindInvalidFormat, "hevc_rps", nil)
	}

	keep := make(map[int64]bool, sets.Total()+len(sets.StFoll)+len(sets.LtFoll))
	longTerm := make(map[int64]bool, len(sets.LtCurr)+len(sets.LtFoll))
	for _, h := range sets.StCurrBefore {
		keep[h] = true
	}
	for _, h := range sets.StCurrAfter {
		keep[h] = true
	}
	for _, h := range sets.LtCurr {
		keep[h] = true
		longTerm[h] = true
	}
	for _, h := range sets.StFoll {
		keep[h] = true
	}
	for _, h := range sets.LtFoll {
		keep[h] = true
		longTerm[h] = true
	}
	d.ClearAllReferenceFlags(keep)

	for _, r := range d.records {
		if !keep[r.OrderHint] {
			continue
		}
		if longTerm[r.OrderHint] {
			r.Flags |= LongTermRef
		} else {
			r.Flags |= ShortTermRef
		}
	}

	bumpOutHEVC(d, sps)
	return poc, sets, nil
}

// resolveLongTermPOC derives a long-term reference picture's full POC per
// std 8.3.2 and resolves it against d's live records. When
// DeltaPocMsbPresent is set, the full POC is computed from the current
// picture's POC minus the MSB-cycle delta; otherwise the entry only carries
// POC LSB bits, and the matching record is found by comparing low bits
// against every candidate (the long-term picture is assumed unique modulo
// MaxPicOrderCntLsb).
func resolveLongTermPOC(d *DPB, lt hevc.LongTermRefPic, currentPOC, currentLsb, maxLsb int64) (int64, bool) {
	if lt.DeltaPocMsbPresent {
		target := currentPOC - int64(lt.DeltaPocMsbCycle)*maxLsb - currentLsb + int64(lt.PocLsb)
		if _, ok := d.FindByOrderHint(target); ok {
			return target, true
		}
		return 0, false
	}
	for _, r := range d.records {
		lsb := r.OrderHint % maxLsb
		if lsb < 0 {
			lsb += maxLsb
		}
		if lsb == int64(lt.PocLsb) {
			return r.OrderHint, true
		}
	}
	return 0, false
}

func usedS0(rps hevc.ShortTermRPS, delta int32) bool {
	for i, d := range rps.DeltaPocS0 {
		if d == delta {
			return rps.UsedByCurrS0[i]
		}
	}
	return false
}

func usedS1(rps hevc.ShortTermRPS, delta int32) bool {
	for i, d := range rps.DeltaPocS1 {
		if d == delta {
			return rps.UsedByCurrS1[i]
		}
	}
	return false
}

// bumpOutHEVC evicts, in insertion order, pictures that carry none of
// ShortTermRef, LongTermRef or UsedForDisplay while the DPB holds more
// records than the last (highest sub-layer) sps_max_dec_pic_buffering
// entry, or 16 when the SPS lists none. sps_max_num_reorder_pics is not
// consulted.
func bumpOutHEVC(d *DPB, sps hevc.SPS) {
	maxDPB := 16
	if len(sps.MaxDecPicBuffering) > 0 {
		maxDPB = int(sps.MaxDecPicBuffering[len(sps.MaxDecPicBuffering)-1])
	}
	for len(d.records) > maxDPB {
		evicted := false
		for i, r := range d.records {
			if !r.Flags.Has(ShortTermRef) && !r.Flags.Has(LongTermRef) && !r.Flags.Has(UsedForDisplay) {
				d.records = append(d.records[:i], d.records[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			break
		}
	}
}
