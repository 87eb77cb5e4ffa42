// Package paramset is the in-memory store of active SPS/PPS/VPS records
// keyed by id, per §4.2. It never parses bitstream itself; callers upsert
// already-parsed codec structs and resolve the active chain for a slice.
package paramset

import (
	"sync"

	"github.com/vdpu/vdpu/internal/h264"
	"github.com/vdpu/vdpu/internal/hevc"
	"github.com/vdpu/vdpu/internal/verrors"
)

// Store holds parameter sets for exactly one codec at a time; the picture
// boundary detector and DPB are constructed per-codec so there is no need
// to discriminate codec inside the store itself.
type Store struct {
	mu sync.Mutex

	h264SPS map[uint32]h264.SPS
	h264PPS map[uint32]h264.PPS

	hevcVPS map[uint32]hevc.VPS
	hevcSPS map[uint32]hevc.SPS
	hevcPPS map[uint32]hevc.PPS
}

// New returns an empty parameter set store.
func New() *Store {
	return &Store{
		h264SPS: make(map[uint32]h264.SPS),
		h264PPS: make(map[uint32]h264.PPS),
		hevcVPS: make(map[uint32]hevc.VPS),
		hevcSPS: make(map[uint32]hevc.SPS),
		hevcPPS: make(map[uint32]hevc.PPS),
	}
}

// UpsertH264SPS stores sps and reports whether this replaces a materially
// different prior value for the same id — a potential sequence change per
// §4.2 and §3.
func (s *Store) UpsertH264SPS(sps h264.SPS) (sequenceChanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.h264SPS[sps.ID]
	s.h264SPS[sps.ID] = sps
	return existed && h264SPSMaterialChange(prev, sps)
}

// UpsertH264PPS stores pps.
func (s *Store) UpsertH264PPS(pps h264.PPS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h264PPS[pps.ID] = pps
}

// ActiveH264 resolves the SPS/PPS referenced by a slice header's pps_id.
func (s *Store) ActiveH264(ppsID uint32) (h264.SPS, h264.PPS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pps, ok := s.h264PPS[ppsID]
	if !ok {
		return h264.SPS{}, h264.PPS{}, verrors.New(verrors.KindMissingParameterSet, "active_h264", nil)
	}
	sps, ok := s.h264SPS[pps.SPSID]
	if !ok {
		return h264.SPS{}, h264.PPS{}, verrors.New(verrors.KindMissingParameterSet, "active_h264", nil)
	}
	return sps, pps, nil
}

// UpsertHEVCVPS stores vps.
func (s *Store) UpsertHEVCVPS(vps hevc.VPS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hevcVPS[vps.ID] = vps
}

// UpsertHEVCSPS stores sps and reports a potential sequence change.
func (s *Store) UpsertHEVCSPS(sps hevc.SPS) (sequenceChanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.hevcSPS[sps.ID]
	s.hevcSPS[sps.ID] = sps
	return existed && hevcSPSMaterialChange(prev, sps)
}

// UpsertHEVCPPS stores pps.
func (s *Store) UpsertHEVCPPS(pps hevc.PPS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hevcPPS[pps.ID] = pps
}

// ActiveHEVC resolves the SPS/PPS referenced by a slice header's pps_id.
func (s *Store) ActiveHEVC(ppsID uint32) (hevc.SPS, hevc.PPS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pps, ok := s.hevcPPS[ppsID]
	if !ok {
		return hevc.SPS{}, hevc.PPS{}, verrors.New(verrors.KindMissingParameterSet, "active_hevc", nil)
	}
	sps, ok := s.hevcSPS[pps.SPSID]
	if !ok {
		return hevc.SPS{}, hevc.PPS{}, verrors.New(verrors.KindMissingParameterSet, "active_hevc", nil)
	}
	return sps, pps, nil
}

// h264SPSMaterialChange reports whether the fields that drive decoder
// (re)configuration differ between two SPS versions sharing an id.
func h264SPSMaterialChange(prev, next h264.SPS) bool {
	return prev.Width != next.Width ||
		prev.Height != next.Height ||
		prev.ChromaFormatIDC != next.ChromaFormatIDC ||
		prev.ProfileIDC != next.ProfileIDC ||
		prev.BitDepthLumaMinus8 != next.BitDepthLumaMinus8 ||
		prev.BitDepthChromaMinus8 != next.BitDepthChromaMinus8
}

func hevcSPSMaterialChange(prev, next hevc.SPS) bool {
	return prev.Width != next.Width ||
		prev.Height != next.Height ||
		prev.ChromaFormatIDC != next.ChromaFormatIDC ||
		prev.ProfileIDC != next.ProfileIDC ||
		prev.BitDepthLumaMinus8 != next.BitDepthLumaMinus8 ||
		prev.BitDepthChromaMinus8 != next.BitDepthChromaMinus8
}
