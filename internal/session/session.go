// Package session implements the decoder session and surface pool of §4.6:
// the state machine wrapping the accelerator backend (create/reconfigure/
// submit/query/destroy) and the slot-assignment rule it enforces around
// internal/surfacepool.
package session

import (
	"context"
	"sync"

	"github.com/vdpu/vdpu/internal/backend"
	"github.com/vdpu/vdpu/internal/geometry"
	"github.com/vdpu/vdpu/internal/submit"
	"github.com/vdpu/vdpu/internal/surfacepool"
	"github.com/vdpu/vdpu/internal/verrors"

	"log/slog"
)

// State is the session's place in §4.6's Uninit/Ready state diagram.
type State int

const (
	StateUninit State = iota
	StateReady
	StateDestroyed
)

// Config configures a new decoder session, mirroring create_decoder's cfg
// argument (§6.1): `{codec, chroma_format, bit_depth, width, height,
// max_width, max_height, num_surfaces, target_rect, output_format,
// device_id}`.
type Config struct {
	Codec         backend.Codec
	ChromaFormat  backend.ChromaFormat
	BitDepth      int
	Width, Height int
	MaxWidth, MaxHeight int
	NumSurfaces   int
	TargetRect    geometry.Rect

	// DisplayRect is the cropped/visible region within the coded surface,
	// distinct from TargetRect (the scaled output region), per the
	// display-rect-vs-target-rect supplemented feature.
	DisplayRect geometry.Rect

	OutputFormat backend.OutputFormat
	Profile      int

	// IntraDecodeOnly records the supplemented intra-decode-only hint. It
	// is stored on Config only; the session does not pass it to the backend.
	IntraDecodeOnly bool

	// Blocking selects AllocateSlot's behavior on pool exhaustion: block
	// until a slot frees (true) or return PoolExhausted immediately
	// (false), per §4.6 / §5.
	Blocking bool
}

// Session wraps one accelerator context plus its surface pool, enforcing
// §4.6's reconfiguration and slot-assignment rules.
type Session struct {
	be  backend.Backend
	log *slog.Logger

	mu    sync.Mutex
	cond  *sync.Cond
	state State
	cfg   Config

	config   backend.ConfigID
	context  backend.ContextID
	surfaces []backend.SurfaceID
	pool     *surfacepool.Pool

	inFlight int // number of slots currently UsedForDecode
}

// Builder exposes a submit.Builder bound to this session's DPB-index ->
// surface resolution, for callers assembling a Submission.
func (s *Session) Builder(surfaceForDPBIndex func(int) (backend.SurfaceID, bool)) *submit.Builder {
	return &submit.Builder{SurfaceForDPBIndex: surfaceForDPBIndex}
}

// New creates a decoder session: create_config, create_surfaces,
// create_context, entering StateReady, per §4.6's create transition.
func New(ctx context.Context, logger *slog.Logger, be backend.Backend, cfg Config) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NumSurfaces <= 0 {
		return nil, verrors.New(verrors.KindInvalidParameter, "create_decoder", nil)
	}

	config, err := be.CreateConfig(ctx, cfg.Codec, cfg.Profile, cfg.OutputFormat)
	if err != nil {
		return nil, verrors.New(verrors.KindDeviceInvalid, "create_decoder", err)
	}
	surfaces, err := be.CreateSurfaces(ctx, cfg.OutputFormat, cfg.Width, cfg.Height, cfg.NumSurfaces)
	if err != nil {
		be.DestroyConfig(ctx, config)
		return nil, verrors.New(verrors.KindOutOfMemory, "create_decoder", err)
	}
	context, err := be.CreateContext(ctx, config, surfaces)
	if err != nil {
		be.DestroySurfaces(ctx, surfaces)
		be.DestroyConfig(ctx, config)
		return nil, verrors.New(verrors.KindDeviceInvalid, "create_decoder", err)
	}

	s := &Session{
		be:       be,
		log:      logger.With("component", "session"),
		state:    StateReady,
		cfg:      cfg,
		config:   config,
		context:  context,
		surfaces: surfaces,
		pool:     surfacepool.New(logger, surfaces),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Config returns the session's current configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Pool returns the session's surface pool, for components (the exporter,
// the DPB reference resolver) that need slot state directly.
func (s *Session) Pool() *surfacepool.Pool { return s.pool }

// Surfaces returns the backend surface ids backing this session's pool,
// indexed the same way as Pool handles.
func (s *Session) Surfaces() []backend.SurfaceID { return s.surfaces }

// Reconfigure applies cfg in place, permitted only when StateReady with no
// picture in flight and only for fields §4.6 allows to change (resolution
// within max_width x max_height, crop/target rect, surface count). Codec,
// bit depth, or chroma format changing is rejected — the client must
// destroy and recreate.
func (s *Session) Reconfigure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return verrors.New(verrors.KindNotInitialized, "reconfigure", nil)
	}
	if s.inFlight != 0 {
		return verrors.New(verrors.KindInvalidParameter, "reconfigure", nil)
	}
	if cfg.Codec != s.cfg.Codec || cfg.BitDepth != s.cfg.BitDepth || cfg.ChromaFormat != s.cfg.ChromaFormat {
		return verrors.New(verrors.KindNotSupported, "reconfigure", nil)
	}
	if cfg.Width > cfg.MaxWidth || cfg.Height > cfg.MaxHeight {
		return verrors.New(verrors.KindOutOfRange, "reconfigure", nil)
	}

	if cfg.NumSurfaces != s.cfg.NumSurfaces {
		surfaces, err := s.be.CreateSurfaces(ctx, cfg.OutputFormat, cfg.Width, cfg.Height, cfg.NumSurfaces)
		if err != nil {
			return verrors.New(verrors.KindOutOfMemory, "reconfigure", err)
		}
		s.be.DestroySurfaces(ctx, s.surfaces)
		s.surfaces = surfaces
		s.pool = surfacepool.New(s.log, surfaces)
	}

	s.cfg = cfg
	return nil
}

// AllocateSlot picks the lowest-indexed Free slot, per §4.6. If none is
// free it blocks until one is released when cfg.Blocking is set, otherwise
// it returns PoolExhausted immediately, matching §4.6's non-blocking mode.
func (s *Session) AllocateSlot(ctx context.Context, pts int64) (surfacepool.Handle, backend.SurfaceID, error) {
	s.mu.Lock()
	for {
		h, surf, err := s.pool.Allocate(pts)
		if err == nil {
			s.inFlight++
			s.mu.Unlock()
			return h, surf, nil
		}
		if !s.cfg.Blocking {
			s.mu.Unlock()
			return surfacepool.Handle{}, 0, err
		}
		if ctx.Err() != nil {
			s.mu.Unlock()
			return surfacepool.Handle{}, 0, ctx.Err()
		}
		s.cond.Wait()
	}
}

// SubmitDecode forwards sub to the backend for the picture occupying h's
// slot. On a backend failure the slot is released immediately and
// DecodeSubmitFailed is returned, per §4.5's atomic-submission rule.
func (s *Session) SubmitDecode(ctx context.Context, h surfacepool.Handle, sub submit.Submission) error {
	s.mu.Lock()
	surf, err := s.pool.Surface(h)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	buffers := backend.SubmitBuffers{
		PicParams:   sub.PicParams,
		IQMatrix:    sub.ScalingList,
		SliceParams: sub.SliceParams,
		SliceData:   sub.BitstreamData,
	}
	if err := s.be.Submit(ctx, s.context, surf, buffers); err != nil {
		s.mu.Lock()
		s.releaseDecodeLocked(h)
		s.mu.Unlock()
		return verrors.New(verrors.KindDecodeSubmitFailed, "submit_decode", err)
	}
	return nil
}

// QueryStatus reports h's slot status, translating the backend's
// SurfaceStatus into the per-slot enum of §4.6. An Error status does not
// corrupt the DPB: the caller is expected to free the slot (ReleaseDecode)
// and flag referencing pictures ErrorConcealed.
func (s *Session) QueryStatus(ctx context.Context, h surfacepool.Handle) (backend.SurfaceStatus, error) {
	s.mu.Lock()
	surf, err := s.pool.Surface(h)
	s.mu.Unlock()
	if err != nil {
		return backend.StatusInvalid, err
	}
	return s.be.QuerySurfaceStatus(ctx, surf)
}

// ReleaseDecode clears a slot's decode-in-flight flag once its picture has
// left the DPB's reference set, waking any AllocateSlot callers blocked on
// exhaustion.
func (s *Session) ReleaseDecode(h surfacepool.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseDecodeLocked(h)
}

func (s *Session) releaseDecodeLocked(h surfacepool.Handle) error {
	if err := s.pool.ReleaseDecode(h); err != nil {
		return err
	}
	s.inFlight--
	s.cond.Broadcast()
	return nil
}

// ReleaseDisplay clears a slot's UsedForDisplay flag once the exporter has
// unmapped it, per §4.7. The slot returns to Free only if it is also no
// longer UsedForDecode.
func (s *Session) ReleaseDisplay(h surfacepool.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pool.ReleaseDisplay(h); err != nil {
		return err
	}
	s.cond.Broadcast()
	return nil
}

// Destroy tears down the context, config, and surfaces, in that order, and
// transitions to StateDestroyed. Any not-yet-displayed pictures are the
// caller's responsibility to abort (internal/dispatch.Abort) before
// calling Destroy, per §5's cancellation rule.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDestroyed {
		return nil
	}
	var firstErr error
	if err := s.be.DestroyContext(ctx, s.context); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.be.DestroyConfig(ctx, s.config); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.be.DestroySurfaces(ctx, s.surfaces); err != nil && firstErr == nil {
		firstErr = err
	}
	s.state = StateDestroyed
	s.cond.Broadcast()
	if firstErr != nil {
		return verrors.New(verrors.KindRuntimeError, "destroy_decoder", firstErr)
	}
	return nil
}
