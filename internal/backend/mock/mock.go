// Package mock provides an in-memory backend.Backend good enough to drive
// every operation in §6.3 and satisfy the testable properties of §8. It is
// hand-maintained in the style `mockgen` would produce (§10 Test tooling),
// since the backend has no idiomatic pure-Go binding to generate from.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/vdpu/vdpu/internal/backend"
)

// Backend is a deterministic, synchronous stand-in for a real accelerator.
// Submissions complete immediately (status becomes Success on the next
// QuerySurfaceStatus call) unless FailNextSubmit is set;
// TimeoutsBeforeSuccess only makes SyncSurface report timeouts first.
type Backend struct {
	mu sync.Mutex

	nextID uint64

	configs  map[backend.ConfigID]bool
	surfaces map[backend.SurfaceID]*surfaceState
	contexts map[backend.ContextID]*contextState

	caps []backend.Caps

	// FailNextSubmit, when true, makes the next Submit call return
	// DecodeSubmitFailed-worthy error and is then reset to false.
	FailNextSubmit bool

	// TimeoutsBeforeSuccess, keyed by surface, is decremented on every
	// SyncSurface call before it returns nil, modeling scenario E6.
	TimeoutsBeforeSuccess map[backend.SurfaceID]int
}

type surfaceState struct {
	format backend.OutputFormat
	width, height int
	status backend.SurfaceStatus
	exported bool
}

type contextState struct {
	config   backend.ConfigID
	surfaces []backend.SurfaceID
}

// New returns an empty mock backend advertising support for every codec
// this module handles.
func New() *Backend {
	return &Backend{
		configs:  make(map[backend.ConfigID]bool),
		surfaces: make(map[backend.SurfaceID]*surfaceState),
		contexts: make(map[backend.ContextID]*contextState),
		TimeoutsBeforeSuccess: make(map[backend.SurfaceID]int),
		caps: []backend.Caps{
			{Codec: backend.CodecH264, Chroma: backend.Chroma420, MaxBitDepth: 8, OutputFormats: []backend.OutputFormat{backend.OutputNV12}, MinWidth: 16, MinHeight: 16, MaxWidth: 8192, MaxHeight: 8192},
			{Codec: backend.CodecHEVC, Chroma: backend.Chroma420, MaxBitDepth: 10, OutputFormats: []backend.OutputFormat{backend.OutputNV12, backend.OutputP010}, MinWidth: 16, MinHeight: 16, MaxWidth: 8192, MaxHeight: 8192},
			{Codec: backend.CodecVP9, Chroma: backend.Chroma420, MaxBitDepth: 10, OutputFormats: []backend.OutputFormat{backend.OutputNV12, backend.OutputP010}, MinWidth: 16, MinHeight: 16, MaxWidth: 8192, MaxHeight: 8192},
		},
	}
}

func (b *Backend) ProbeCaps(ctx context.Context) ([]backend.Caps, error) {
	return b.caps, nil
}

func (b *Backend) CreateConfig(ctx context.Context, codec backend.Codec, profile int, rtFormat backend.OutputFormat) (backend.ConfigID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := backend.ConfigID(b.nextID)
	b.configs[id] = true
	return id, nil
}

func (b *Backend) CreateSurfaces(ctx context.Context, format backend.OutputFormat, width, height, count int) ([]backend.SurfaceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]backend.SurfaceID, 0, count)
	for i := 0; i < count; i++ {
		b.nextID++
		id := backend.SurfaceID(b.nextID)
		b.surfaces[id] = &surfaceState{format: format, width: width, height: height, status: backend.StatusInvalid}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *Backend) CreateContext(ctx context.Context, config backend.ConfigID, surfaces []backend.SurfaceID) (backend.ContextID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.configs[config] {
		return 0, fmt.Errorf("mock backend: unknown config %d", config)
	}
	b.nextID++
	id := backend.ContextID(b.nextID)
	b.contexts[id] = &contextState{config: config, surfaces: surfaces}
	return id, nil
}

func (b *Backend) Submit(ctx context.Context, ctxID backend.ContextID, currentSurface backend.SurfaceID, buffers backend.SubmitBuffers) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailNextSubmit {
		b.FailNextSubmit = false
		return fmt.Errorf("mock backend: submit failed")
	}
	s, ok := b.surfaces[currentSurface]
	if !ok {
		return fmt.Errorf("mock backend: unknown surface %d", currentSurface)
	}
	s.status = backend.StatusSuccess
	return nil
}

func (b *Backend) QuerySurfaceStatus(ctx context.Context, surface backend.SurfaceID) (backend.SurfaceStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.surfaces[surface]
	if !ok {
		return backend.StatusInvalid, fmt.Errorf("mock backend: unknown surface %d", surface)
	}
	return s.status, nil
}

func (b *Backend) SyncSurface(ctx context.Context, surface backend.SurfaceID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := b.TimeoutsBeforeSuccess[surface]; ok && n > 0 {
		b.TimeoutsBeforeSuccess[surface] = n - 1
		return backend.ErrTimeout
	}
	return nil
}

func (b *Backend) ExportSurface(ctx context.Context, surface backend.SurfaceID) (backend.DMADescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.surfaces[surface]
	if !ok {
		return backend.DMADescriptor{}, fmt.Errorf("mock backend: unknown surface %d", surface)
	}
	if s.exported {
		return backend.DMADescriptor{}, fmt.Errorf("mock backend: surface %d already exported", surface)
	}
	s.exported = true
	return backend.DMADescriptor{
		FD:         -1, // the mock never hands out a real fd; surface.Exporter treats -1 as "no-op import"
		NumObjects: 1,
		Layers: []backend.Layer{
			{Offset: 0, Pitch: int64(s.width)},
			{Offset: int64(s.width * s.height), Pitch: int64(s.width)},
		},
	}, nil
}

func (b *Backend) DestroyContext(ctx context.Context, id backend.ContextID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.contexts, id)
	return nil
}

func (b *Backend) DestroyConfig(ctx context.Context, id backend.ConfigID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.configs, id)
	return nil
}

func (b *Backend) DestroySurfaces(ctx context.Context, surfaces []backend.SurfaceID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range surfaces {
		delete(b.surfaces, id)
	}
	return nil
}

var _ backend.Backend = (*Backend)(nil)
