package parser

import (
	"encoding/binary"

	"github.com/vdpu/vdpu/internal/dpb"
	"github.com/vdpu/vdpu/internal/h264"
	"github.com/vdpu/vdpu/internal/hevc"
	"github.com/vdpu/vdpu/internal/submit"
)

// boolByte packs a bool into the single-byte flag fields the pic/slice
// param buffers use throughout this file.
func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// buildH264Submission packs the parsed SPS/PPS/slice-header state for one
// H.264 picture into the pic/slice parameter buffers §4.5 hands to the
// backend. refs is the set of DPB order hints (POCs) the picture may
// reference, substituted for live surface handles via builder before being
// written into picParams; a concrete backend integration still has to
// reinterpret these bytes into its own wire layout, but the reference
// substitution and parameter selection themselves are real, not
// placeholders.
func buildH264Submission(sps h264.SPS, pps h264.PPS, sh h264.SliceHeader, refs []int64, builder *submit.Builder, ebsp []byte) (picParams, sliceParams []byte) {
	refIdx := make([]int, len(refs))
	for i, r := range refs {
		refIdx[i] = int(r)
	}
	surfaces := builder.SubstituteReferences(refIdx)

	pic := make([]byte, 0, 24+8*len(surfaces))
	pic = binary.LittleEndian.AppendUint32(pic, uint32(sps.Width))
	pic = binary.LittleEndian.AppendUint32(pic, uint32(sps.Height))
	pic = append(pic, byte(sps.ChromaFormatIDC), byte(8+sps.BitDepthLumaMinus8), byte(8+sps.BitDepthChromaMinus8))
	pic = append(pic, boolByte(pps.EntropyCodingMode), boolByte(pps.WeightedPredFlag), byte(pps.WeightedBipredIdc))
	pic = binary.LittleEndian.AppendUint32(pic, uint32(int32(pps.PicInitQpMinus26)+26))
	pic = binary.LittleEndian.AppendUint32(pic, uint32(len(surfaces)))
	for _, s := range surfaces {
		pic = binary.LittleEndian.AppendUint64(pic, s)
	}

	slice := make([]byte, 0, 17)
	slice = append(slice, byte(sh.SliceType))
	slice = binary.LittleEndian.AppendUint32(slice, sh.FrameNum)
	slice = binary.LittleEndian.AppendUint32(slice, sh.PicOrderCntLsb)
	// The slice header's bit offset is measured after the 1-byte NAL header.
	slice = binary.LittleEndian.AppendUint32(slice, uint32(1+submit.SliceDataByteOffset(sh.SliceDataBitOffset, ebsp[1:])))
	return pic, slice
}

// buildHEVCSubmission does the HEVC equivalent of buildH264Submission: it
// flattens refSets (§4.4 step 3's StCurrBefore/StCurrAfter/LtCurr, in that
// order, matching the standard's RefPicList construction order) into the
// reference indices builder substitutes with surface handles, and attaches
// the standard default scaling-list tables when the sequence has scaling
// lists enabled but this module does not retain the explicit list data
// (skipScalingListData in internal/hevc/sps.go discards it, so the default
// tables are the only scaling lists this module can ever submit).
func buildHEVCSubmission(sps hevc.SPS, pps hevc.PPS, sh hevc.SliceHeader, refSets dpb.HEVCRefSets, builder *submit.Builder, ebsp []byte) (picParams, sliceParams, scalingList []byte) {
	refs := make([]int64, 0, refSets.Total())
	refs = append(refs, refSets.StCurrBefore...)
	refs = append(refs, refSets.StCurrAfter...)
	refs = append(refs, refSets.LtCurr...)
	refIdx := make([]int, len(refs))
	for i, r := range refs {
		refIdx[i] = int(r)
	}
	surfaces := builder.SubstituteReferences(refIdx)

	pic := make([]byte, 0, 24+8*len(surfaces))
	pic = binary.LittleEndian.AppendUint32(pic, uint32(sps.Width))
	pic = binary.LittleEndian.AppendUint32(pic, uint32(sps.Height))
	pic = append(pic, byte(sps.ChromaFormatIDC), byte(8+sps.BitDepthLumaMinus8), byte(8+sps.BitDepthChromaMinus8))
	pic = append(pic, boolByte(pps.WeightedPred), boolByte(pps.WeightedBipred), boolByte(pps.TransquantBypassEnabled))
	pic = binary.LittleEndian.AppendUint32(pic, uint32(int32(pps.InitQPMinus26)+26))
	pic = binary.LittleEndian.AppendUint32(pic, uint32(len(surfaces)))
	for _, s := range surfaces {
		pic = binary.LittleEndian.AppendUint64(pic, s)
	}

	slice := make([]byte, 0, 21)
	slice = append(slice, byte(sh.SliceType))
	slice = binary.LittleEndian.AppendUint32(slice, sh.PicOrderCntLsb)
	slice = binary.LittleEndian.AppendUint32(slice, uint32(len(refSets.StCurrBefore)))
	slice = binary.LittleEndian.AppendUint32(slice, uint32(len(refSets.StCurrAfter)))
	slice = binary.LittleEndian.AppendUint32(slice, uint32(len(refSets.LtCurr)))
	// The slice header's bit offset is measured after the 2-byte NAL header.
	slice = binary.LittleEndian.AppendUint32(slice, uint32(2+submit.SliceDataByteOffset(sh.SliceSegmentDataBitOffset, ebsp[2:])))

	if sps.ScalingListEnabled {
		isIntra := sh.SliceType == hevc.SliceI
		scalingList = append(scalingList, submit.DefaultHEVCScalingList(submit.ScalingList4x4, isIntra)...)
		scalingList = append(scalingList, submit.DefaultHEVCScalingList(submit.ScalingList8x8, isIntra)...)
	}
	return pic, slice, scalingList
}
