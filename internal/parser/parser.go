// Package parser implements create_parser/feed (§6.1): the top-level
// pipeline wiring NAL framing, codec parameter sets, the picture boundary
// detector, and the DPB reference manager into the callbacks the frame
// dispatcher fires. This is the parser half of the pipeline described by
// §4's dependency order: "Bit reader -> NAL framer -> Codec parameter sets
// -> Picture boundary detector -> DPB -> Decode parameter builder ->
// Decoder session -> Surface exporter -> Frame dispatcher".
package parser

import (
	"context"
	"log/slog"

	"github.com/vdpu/vdpu/internal/backend"
	"github.com/vdpu/vdpu/internal/captions"
	"github.com/vdpu/vdpu/internal/dispatch"
	"github.com/vdpu/vdpu/internal/dpb"
	"github.com/vdpu/vdpu/internal/h264"
	"github.com/vdpu/vdpu/internal/hevc"
	"github.com/vdpu/vdpu/internal/nal"
	"github.com/vdpu/vdpu/internal/paramset"
	"github.com/vdpu/vdpu/internal/picture"
	"github.com/vdpu/vdpu/internal/session"
	"github.com/vdpu/vdpu/internal/submit"
	"github.com/vdpu/vdpu/internal/surfacepool"
	"github.com/vdpu/vdpu/internal/verrors"
)

// Config configures a Parser for one bitstream.
type Config struct {
	Codec nal.Codec

	// LengthPrefixSize switches the framer into AVCC mode when non-zero
	// (1, 2, or 4 bytes), per §6.2.
	LengthPrefixSize int
}

// Parser drives one bitstream's worth of NAL units through parameter-set
// resolution, picture assembly, and reference management, submitting
// completed pictures to a Session and firing Callbacks through a
// Dispatcher.
type Parser struct {
	log    *slog.Logger
	codec  nal.Codec
	framer *nal.Framer
	det    *picture.Detector
	store  *paramset.Store
	dpb    *dpb.DPB
	hevcState dpb.HEVCState
	avcState  dpb.AVCState

	sess       *session.Session
	dispatcher *dispatch.Dispatcher
	captionExt *captions.Extractor

	nextPictureID uint64
}

// New constructs a Parser bound to sess for submission and dispatcher for
// callbacks. dpbCapacity should be derived from the stream's
// sps_max_dec_pic_buffering plus display delay plus safety margin (§3).
func New(logger *slog.Logger, cfg Config, sess *session.Session, dispatcher *dispatch.Dispatcher, dpbCapacity int) (*Parser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{
		log:        logger.With("component", "parser"),
		codec:      cfg.Codec,
		store:      paramset.New(),
		dpb:        dpb.New(dpbCapacity),
		sess:       sess,
		dispatcher: dispatcher,
		captionExt: captions.NewExtractor(),
	}

	var header nal.HeaderFunc
	switch cfg.Codec {
	case nal.CodecH264:
		header = h264HeaderFunc
		p.det = picture.NewDetector(h264.Classify)
	case nal.CodecHEVC:
		header = hevcHeaderFunc
		p.det = picture.NewDetector(hevc.Classify)
	default:
		return nil, verrors.New(verrors.KindNotSupported, "create_parser", nil)
	}

	p.framer = nal.NewFramer(cfg.Codec, header)
	if cfg.LengthPrefixSize > 0 {
		p.framer.SetLengthPrefixed(cfg.LengthPrefixSize)
	}
	return p, nil
}

// h264HeaderFunc extracts nal_unit_type into Type and repurposes the
// generic Unit.LayerID field to carry nal_ref_idc, since H.264 has no
// layer id of its own and the slice header parser needs nal_ref_idc for
// POC type 2 / MMCO reference marking.
func h264HeaderFunc(raw []byte) (nalType, layerID, temporalID uint8, headerLen int) {
	return raw[0] & 0x1F, (raw[0] >> 5) & 0x3, 0, 1
}

func hevcHeaderFunc(raw []byte) (nalType, layerID, temporalID uint8, headerLen int) {
	if len(raw) < 2 {
		return 0, 0, 0, len(raw)
	}
	nalType = (raw[0] >> 1) & 0x3F
	layerID = ((raw[0] & 0x1) << 5) | (raw[1] >> 3)
	temporalID = (raw[1] & 0x7) - 1
	return nalType, layerID, temporalID, 2
}

// Feed appends data to the bitstream scan buffer and processes every fully
// delimited NAL unit, per §4.1/§4.3.
func (p *Parser) Feed(ctx context.Context, data []byte) error {
	if err := p.framer.Feed(data); err != nil {
		return err
	}
	units, err := p.framer.Units()
	if err != nil {
		return err
	}
	return p.processUnits(ctx, units)
}

// EndOfStream flushes any buffered NAL unit and the reorder queue, per
// §4.1/§4.8's "a feed with EndOfStream drains the reorder queue" rule.
func (p *Parser) EndOfStream(ctx context.Context) error {
	units, err := p.framer.Flush()
	if err != nil {
		return err
	}
	if err := p.processUnits(ctx, units); err != nil {
		return err
	}
	if pic, ok := p.det.Flush(); ok {
		if err := p.handlePicture(ctx, pic); err != nil {
			p.log.Warn("final picture failed", "error", err)
		}
	}
	p.dispatcher.Drain()
	return nil
}

// Destroy aborts any buffered pictures without running their display
// callbacks and releases the session, per §5's cancellation rule.
func (p *Parser) Destroy(ctx context.Context) error {
	p.dispatcher.Abort()
	return p.sess.Destroy(ctx)
}

func (p *Parser) processUnits(ctx context.Context, units []nal.Unit) error {
	for _, u := range units {
		p.observeParameterSet(u)

		pic, ok := p.det.Feed(u)
		if !ok {
			continue
		}
		if err := p.handlePicture(ctx, pic); err != nil {
			p.log.Warn("picture decode failed, continuing", "error", err)
		}
	}
	return nil
}

// observeParameterSet upserts any SPS/PPS/VPS carried by u into the
// parameter-set store and notifies the dispatcher of a sequence change,
// per §4.2/§4.8.
func (p *Parser) observeParameterSet(u nal.Unit) {
	switch p.codec {
	case nal.CodecH264:
		switch u.Type {
		case h264.NALSPS:
			sps, err := h264.ParseSPS(u.RBSP)
			if err != nil {
				p.log.Warn("sps parse failed", "error", err)
				return
			}
			if p.store.UpsertH264SPS(sps) {
				p.dispatcher.Sequence(dispatch.SequenceInfo{
					Width: sps.Width, Height: sps.Height,
					ChromaFormat: int(sps.ChromaFormatIDC),
					BitDepth:     8 + int(sps.BitDepthLumaMinus8),
				})
			}
		case h264.NALPPS:
			pps, err := h264.ParsePPS(u.RBSP)
			if err != nil {
				p.log.Warn("pps parse failed", "error", err)
				return
			}
			p.store.UpsertH264PPS(pps)
		}
	case nal.CodecHEVC:
		switch u.Type {
		case hevc.NALVps:
			vps, err := hevc.ParseVPS(u.RBSP)
			if err != nil {
				p.log.Warn("vps parse failed", "error", err)
				return
			}
			p.store.UpsertHEVCVPS(vps)
		case hevc.NALSps:
			sps, err := hevc.ParseSPS(u.RBSP)
			if err != nil {
				p.log.Warn("sps parse failed", "error", err)
				return
			}
			if p.store.UpsertHEVCSPS(sps) {
				p.dispatcher.Sequence(dispatch.SequenceInfo{
					Width: sps.Width, Height: sps.Height,
					ChromaFormat: int(sps.ChromaFormatIDC),
					BitDepth:     8 + int(sps.BitDepthLumaMinus8),
				})
			}
		case hevc.NALPps:
			pps, err := hevc.ParsePPS(u.RBSP)
			if err != nil {
				p.log.Warn("pps parse failed", "error", err)
				return
			}
			p.store.UpsertHEVCPPS(pps)
		}
	}
}

// handlePicture resolves parameter sets for pic's first slice, updates the
// DPB, builds a submission, allocates a surface slot, submits to the
// session, and enqueues the result with the dispatcher, per §4.4/§4.5/§4.6.
func (p *Parser) handlePicture(ctx context.Context, pic picture.Picture) error {
	switch p.codec {
	case nal.CodecH264:
		return p.handleH264Picture(ctx, pic)
	case nal.CodecHEVC:
		return p.handleHEVCPicture(ctx, pic)
	default:
		return verrors.New(verrors.KindNotSupported, "feed", nil)
	}
}

func (p *Parser) handleH264Picture(ctx context.Context, pic picture.Picture) error {
	var firstSlice *h264.SliceHeader
	var sps h264.SPS
	var pps h264.PPS
	var firstSliceEBSP []byte
	var seiMessages []captions.SEIMessage

	for _, u := range pic.NALUnits {
		switch u.Type {
		case h264.NALSliceNonIDR, h264.NALSliceIDR:
			if firstSlice != nil {
				continue
			}
			peekPPSID, err := peekH264PPSID(u.RBSP)
			if err != nil {
				return verrors.New(verrors.KindBitstreamTruncated, "feed", err)
			}
			s, pp, err := p.store.ActiveH264(peekPPSID)
			if err != nil {
				return err
			}
			sh, err := h264.ParseSliceHeader(u.RBSP, s, pp, u.Type, u.LayerID)
			if err != nil {
				return verrors.New(verrors.KindBitstreamTruncated, "feed", err)
			}
			firstSlice = &sh
			sps, pps = s, pp
			firstSliceEBSP = u.EBSP
		case h264.NALSEI:
			seiMessages = append(seiMessages, captions.SEIMessage{Type: 4, Payload: u.RBSP})
		}
	}
	if firstSlice == nil {
		return nil // AUD/parameter-set-only access unit; nothing to decode
	}

	poc := dpb.DerivePOC(sps, *firstSlice, &p.avcState)
	dpb.UpdateAVC(p.dpb, sps, *firstSlice, poc)

	// The sliding-window/MMCO marking above only flips Short-/LongTermRef
	// flags on existing records; this module builds no explicit AVC
	// RefPicList0/1 (no ref_pic_list_modification reordering, no B-slice
	// L0/L1 split), so every currently-marked reference is offered to the
	// backend and it is left to reorder/trim per its own RefPicList needs.
	refs := p.currentReferenceHints()
	builder := p.sess.Builder(p.surfaceForOrderHint)
	picParams, sliceParams := buildH264Submission(sps, pps, *firstSlice, refs, builder, firstSliceEBSP)

	return p.submitPicture(ctx, poc, firstSlice.FrameNum, picParams, sliceParams, nil, firstSliceEBSP, seiMessages)
}

func (p *Parser) handleHEVCPicture(ctx context.Context, pic picture.Picture) error {
	var firstSlice *hevc.SliceHeader
	var sps hevc.SPS
	var pps hevc.PPS
	var nalType uint8
	var firstSliceEBSP []byte
	var seiMessages []captions.SEIMessage

	for _, u := range pic.NALUnits {
		if u.Type <= hevc.NALRaslR || (u.Type >= hevc.NALBlaWLp && u.Type <= hevc.NALCra) {
			if firstSlice != nil {
				continue
			}
			peekPPSID, err := peekHEVCPPSID(u.RBSP, u.Type)
			if err != nil {
				return verrors.New(verrors.KindBitstreamTruncated, "feed", err)
			}
			s, pp, err := p.store.ActiveHEVC(peekPPSID)
			if err != nil {
				return err
			}
			sh, err := hevc.ParseSliceHeader(u.RBSP, s, pp, u.Type)
			if err != nil {
				return verrors.New(verrors.KindBitstreamTruncated, "feed", err)
			}
			firstSlice = &sh
			sps = s
			pps = pp
			nalType = u.Type
			firstSliceEBSP = u.EBSP
		} else if u.Type == hevc.NALPrefixSei || u.Type == hevc.NALSuffixSei {
			seiMessages = append(seiMessages, captions.SEIMessage{Type: 4, Payload: u.RBSP})
		}
	}
	if firstSlice == nil {
		return nil
	}

	isIRAPNoRasl := hevc.IsIRAP(nalType) && !hevc.IsRASL(nalType)
	poc, refSets, err := dpb.UpdateHEVC(p.dpb, &p.hevcState, sps, firstSlice.ShortTermRPS, firstSlice.LongTermRefPics, firstSlice.PicOrderCntLsb, isIRAPNoRasl, true)
	if err != nil {
		return err
	}

	builder := p.sess.Builder(p.surfaceForOrderHint)
	picParams, sliceParams, scalingList := buildHEVCSubmission(sps, pps, *firstSlice, refSets, builder, firstSliceEBSP)

	return p.submitPicture(ctx, poc, 0, picParams, sliceParams, scalingList, firstSliceEBSP, seiMessages)
}

// currentReferenceHints returns the order hints (POC) of every DPB record
// currently flagged as a short- or long-term reference, for codecs (AVC)
// where this module does not build an explicit per-picture reference list.
func (p *Parser) currentReferenceHints() []int64 {
	var hints []int64
	for _, r := range p.dpb.Records() {
		if r.Flags.Has(dpb.ShortTermRef) || r.Flags.Has(dpb.LongTermRef) {
			hints = append(hints, r.OrderHint)
		}
	}
	return hints
}

// surfaceForOrderHint resolves a DPB order hint (POC) to the backend
// surface currently holding that picture, for submit.Builder's reference
// substitution.
func (p *Parser) surfaceForOrderHint(hint int) (backend.SurfaceID, bool) {
	r, ok := p.dpb.FindByOrderHint(int64(hint))
	if !ok {
		return 0, false
	}
	surf, err := p.sess.Pool().Surface(surfacepool.Handle{Index: r.SurfaceSlot, Generation: r.Generation})
	if err != nil {
		return 0, false
	}
	return surf, true
}

// submitPicture allocates a surface slot, builds the submission from
// already-serialized pic/slice/scaling-list buffers (§4.5), submits it to
// the session, and enqueues the result with the dispatcher. frameNum is
// the AVC frame_num the picture was decoded with (0 for HEVC/unused),
// recorded on the DPB entry for MMCO's picture-number-based marking.
func (p *Parser) submitPicture(ctx context.Context, poc int64, frameNum uint32, picParams, sliceParams, scalingList, bitstreamData []byte, seiMessages []captions.SEIMessage) error {
	p.nextPictureID++
	pictureID := p.nextPictureID

	h, _, err := p.sess.AllocateSlot(ctx, poc)
	if err != nil {
		return err
	}

	dpbRecord := &dpb.Record{
		PictureID:        pictureID,
		OrderHint:        poc,
		SurfaceSlot:      h.Index,
		Generation:       h.Generation,
		DecodeStatus:     dpb.StatusInProgress,
		Flags:            dpb.UsedForDecode,
		FrameNum:         frameNum,
		LongTermFrameIdx: -1,
	}
	p.dpb.Insert(dpbRecord)

	sub, err := submit.Build(picParams, sliceParams, scalingList, bitstreamData, h.Index)
	if err != nil {
		p.sess.ReleaseDecode(h)
		dpbRecord.DecodeStatus = dpb.StatusError
		dpbRecord.Flags &^= dpb.UsedForDecode
		return err
	}

	picForCallback := dispatch.Picture{PictureID: pictureID, OrderHint: poc, SurfaceSlot: h.Index}
	if !p.dispatcher.DecodeSubmit(picForCallback) {
		p.sess.ReleaseDecode(h)
		return nil
	}

	if err := p.sess.SubmitDecode(ctx, h, sub); err != nil {
		dpbRecord.DecodeStatus = dpb.StatusError
		dpbRecord.ErrorConcealed = true
		p.sess.ReleaseDecode(h)
		return err
	}
	dpbRecord.DecodeStatus = dpb.StatusSuccess

	if len(seiMessages) > 0 {
		frames := p.captionExt.Extract(seiMessages)
		if len(frames) > 0 {
			p.dispatcher.BufferSEI(pictureID, frames)
		}
	}

	p.dispatcher.Ready(picForCallback)
	return nil
}

func peekH264PPSID(rbsp []byte) (uint32, error) {
	return h264.PeekPPSID(rbsp)
}

func peekHEVCPPSID(rbsp []byte, nalType uint8) (uint32, error) {
	return hevc.PeekPPSID(rbsp, nalType)
}
