package hevc

import "github.com/vdpu/vdpu/internal/bits"

// parseShortTermRPS parses one st_ref_pic_set(stRpsIdx), including the
// inter_ref_pic_set_prediction_flag delta-coding path against an
// already-parsed predecessor, per §4.4.2. prior holds the RPS entries
// parsed so far in this SPS (stRpsIdx indexes into it when predicting).
func parseShortTermRPS(r *bits.Reader, prior []ShortTermRPS, stRpsIdx int) (ShortTermRPS, error) {
	var rps ShortTermRPS

	interPred := false
	var err error
	if stRpsIdx != 0 {
		if interPred, err = r.ReadFlag(); err != nil {
			return rps, err
		}
	}
	if interPred {
		// delta_idx_minus1 is only coded when this set is parsed from a
		// slice header (stRpsIdx == num_short_term_ref_pic_sets); within
		// the SPS loop it is always inferred 0, so the reference is always
		// the immediately preceding set.
		deltaRpsSign, err := r.ReadFlag()
		if err != nil {
			return rps, err
		}
		absDeltaRpsMinus1, err := r.ReadUE()
		if err != nil {
			return rps, err
		}
		deltaRps := int32(absDeltaRpsMinus1 + 1)
		if deltaRpsSign {
			deltaRps = -deltaRps
		}

		refIdx := stRpsIdx - 1
		ref := prior[refIdx]
		numDeltaPocsRef := ref.NumNegativePics + ref.NumPositivePics

		usedByCurrPicFlag := make([]bool, numDeltaPocsRef+1)
		useDeltaFlag := make([]bool, numDeltaPocsRef+1)
		for j := 0; j <= numDeltaPocsRef; j++ {
			used, err := r.ReadFlag()
			if err != nil {
				return rps, err
			}
			usedByCurrPicFlag[j] = used
			useDeltaFlag[j] = true
			if !used {
				if useDelta, err := r.ReadFlag(); err != nil {
					return rps, err
				} else {
					useDeltaFlag[j] = useDelta
				}
			}
		}

		deriveFromReference(&rps, ref, deltaRps, usedByCurrPicFlag, useDeltaFlag)
		return rps, nil
	}

	numNeg, err := r.ReadUE()
	if err != nil {
		return rps, err
	}
	numPos, err := r.ReadUE()
	if err != nil {
		return rps, err
	}
	rps.NumNegativePics = int(numNeg)
	rps.NumPositivePics = int(numPos)
	rps.DeltaPocS0 = make([]int32, numNeg)
	rps.UsedByCurrS0 = make([]bool, numNeg)
	rps.DeltaPocS1 = make([]int32, numPos)
	rps.UsedByCurrS1 = make([]bool, numPos)

	acc := int32(0)
	for i := uint32(0); i < numNeg; i++ {
		deltaMinus1, err := r.ReadUE()
		if err != nil {
			return rps, err
		}
		used, err := r.ReadFlag()
		if err != nil {
			return rps, err
		}
		acc -= int32(deltaMinus1) + 1
		rps.DeltaPocS0[i] = acc
		rps.UsedByCurrS0[i] = used
	}
	acc = 0
	for i := uint32(0); i < numPos; i++ {
		deltaMinus1, err := r.ReadUE()
		if err != nil {
			return rps, err
		}
		used, err := r.ReadFlag()
		if err != nil {
			return rps, err
		}
		acc += int32(deltaMinus1) + 1
		rps.DeltaPocS1[i] = acc
		rps.UsedByCurrS1[i] = used
	}
	return rps, nil
}

// deriveFromReference builds an RPS by the inter-RPS prediction rule of
// §4.4.2: every delta POC of the reference set, shifted by deltaRps, is a
// candidate member of the new set; membership and sign determine whether it
// lands in the negative (S0) or positive (S1) direction list.
func deriveFromReference(rps *ShortTermRPS, ref ShortTermRPS, deltaRps int32, usedByCurrPicFlag, useDeltaFlag []bool) {
	refNeg := ref.NumNegativePics
	refPos := ref.NumPositivePics

	var s0Deltas []int32
	var s0Used []bool
	for j := refPos - 1; j >= 0; j-- {
		dPoc := ref.DeltaPocS1[j] + deltaRps
		idx := refNeg + j
		if dPoc < 0 && useDeltaFlag[idx] {
			s0Deltas = append(s0Deltas, dPoc)
			s0Used = append(s0Used, usedByCurrPicFlag[idx])
		}
	}
	if deltaRps < 0 && useDeltaFlag[refNeg+refPos] {
		s0Deltas = append(s0Deltas, deltaRps)
		s0Used = append(s0Used, usedByCurrPicFlag[refNeg+refPos])
	}
	for j := 0; j < refNeg; j++ {
		dPoc := ref.DeltaPocS0[j] + deltaRps
		if dPoc < 0 && useDeltaFlag[j] {
			s0Deltas = append(s0Deltas, dPoc)
			s0Used = append(s0Used, usedByCurrPicFlag[j])
		}
	}

	var s1Deltas []int32
	var s1Used []bool
	for j := refNeg - 1; j >= 0; j-- {
		dPoc := ref.DeltaPocS0[j] + deltaRps
		if dPoc > 0 && useDeltaFlag[j] {
			s1Deltas = append(s1Deltas, dPoc)
			s1Used = append(s1Used, usedByCurrPicFlag[j])
		}
	}
	if deltaRps > 0 && useDeltaFlag[refNeg+refPos] {
		s1Deltas = append(s1Deltas, deltaRps)
		s1Used = append(s1Used, usedByCurrPicFlag[refNeg+refPos])
	}
	for j := 0; j < refPos; j++ {
		dPoc := ref.DeltaPocS1[j] + deltaRps
		if dPoc > 0 && useDeltaFlag[refNeg+j] {
			s1Deltas = append(s1Deltas, dPoc)
			s1Used = append(s1Used, usedByCurrPicFlag[refNeg+j])
		}
	}

	rps.DeltaPocS0 = s0Deltas
	rps.UsedByCurrS0 = s0Used
	rps.NumNegativePics = len(s0Deltas)
	rps.DeltaPocS1 = s1Deltas
	rps.UsedByCurrS1 = s1Used
	rps.NumPositivePics = len(s1Deltas)
}

// POCState carries the PicOrderCntMsb and slice_pic_order_cnt_lsb of the
// previous TemporalId-0 picture (prevTid0Pic) from one DerivePOC call to
// the next.
type POCState struct {
	PrevPicOrderCntMsb int32
	PrevPicOrderCntLsb uint32
}

// DerivePOC computes PicOrderCntVal for a non-IDR picture per the HEVC POC
// type 0 derivation (8.3.1), tracking state only across pictures with
// TemporalID == 0 and sub-layer non-reference false, per prevTid0Pic rule.
func DerivePOC(sps SPS, picOrderCntLsb uint32, isIRAPWithNoRaslOutput bool, state POCState) int32 {
	if isIRAPWithNoRaslOutput {
		return int32(picOrderCntLsb)
	}
	maxLsb := int32(sps.MaxPicOrderCntLsb())
	prevMsb := state.PrevPicOrderCntMsb
	prevLsb := int32(state.PrevPicOrderCntLsb)
	lsb := int32(picOrderCntLsb)

	var msb int32
	switch {
	case lsb < prevLsb && (prevLsb-lsb) >= maxLsb/2:
		msb = prevMsb + maxLsb
	case lsb > prevLsb && (lsb-prevLsb) > maxLsb/2:
		msb = prevMsb - maxLsb
	default:
		msb = prevMsb
	}
	return msb + lsb
}
