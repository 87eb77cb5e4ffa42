// Package surface implements the surface exporter of §4.7: mapping a
// decoded slot to a compute-runtime-visible buffer through a shared DMA
// file descriptor, and tearing it down on release.
package surface

import (
	"context"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/vdpu/vdpu/internal/backend"
	"github.com/vdpu/vdpu/internal/verrors"
)

// Mapped is the exported surface of §3: per-plane pointers and pitches
// computed as buffer_base + layer[i].offset.
type Mapped struct {
	SurfaceSlot int
	PlanePointers [3]uintptr
	PlanePitches  [3]int64
	externalHandle int
}

// Exporter owns the map/unmap lifecycle for one decoder session's surfaces.
// At most one active export per slot, per §4.7's invariant.
type Exporter struct {
	backend backend.Backend
	log     *slog.Logger

	mu      sync.Mutex
	mapped  map[backend.SurfaceID]*Mapped

	// PollInterval governs how often SyncSurface is retried on a backend
	// timeout; exposed for tests, defaults to 1ms when zero.
	PollInterval time.Duration
}

// New returns an Exporter over the given backend.
func New(logger *slog.Logger, be backend.Backend) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{backend: be, log: logger.With("component", "surface"), mapped: make(map[backend.SurfaceID]*Mapped)}
}

// Map waits for surface's decode to reach Success or Displaying, retrying
// indefinitely on a backend timeout (§4.7, §5), then imports the backend's
// DMA descriptor and returns per-plane pointers.
func (e *Exporter) Map(ctx context.Context, slot int, surfaceID backend.SurfaceID) (Mapped, error) {
	if err := e.waitTerminal(ctx, surfaceID); err != nil {
		return Mapped{}, err
	}

	e.mu.Lock()
	if _, exists := e.mapped[surfaceID]; exists {
		e.mu.Unlock()
		return Mapped{}, verrors.New(verrors.KindInvalidParameter, "surface_map", nil)
	}
	e.mu.Unlock()

	desc, err := e.backend.ExportSurface(ctx, surfaceID)
	if err != nil {
		return Mapped{}, verrors.New(verrors.KindRuntimeError, "surface_map", err)
	}

	m := &Mapped{SurfaceSlot: slot, externalHandle: importExternalMemory(desc)}
	for i, layer := range desc.Layers {
		if i >= 3 {
			break
		}
		m.PlanePointers[i] = uintptr(desc.FD) // placeholder device mapping; real backend returns a device pointer base
		m.PlanePointers[i] += uintptr(layer.Offset)
		m.PlanePitches[i] = layer.Pitch
	}
	closeDMAFD(desc.FD)

	e.mu.Lock()
	e.mapped[surfaceID] = m
	e.mu.Unlock()
	return *m, nil
}

// Unmap destroys the external memory handle for surfaceID, per §4.7.
// Calling Unmap twice for the same surface without an intervening Map is
// rejected rather than silently succeeding, matching the double-close
// prohibition.
func (e *Exporter) Unmap(surfaceID backend.SurfaceID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.mapped[surfaceID]
	if !ok {
		return verrors.New(verrors.KindInvalidParameter, "surface_unmap", nil)
	}
	destroyExternalMemory(m.externalHandle)
	delete(e.mapped, surfaceID)
	return nil
}

func (e *Exporter) waitTerminal(ctx context.Context, surfaceID backend.SurfaceID) error {
	interval := e.PollInterval
	if interval == 0 {
		interval = time.Millisecond
	}
	for {
		err := e.backend.SyncSurface(ctx, surfaceID)
		if err == nil {
			return nil
		}
		if !isTimeout(err) {
			return verrors.New(verrors.KindRuntimeError, "surface_map", err)
		}
		e.log.Debug("sync_surface timed out, retrying", "surface", surfaceID)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return err == backend.ErrTimeout
}

// importExternalMemory and closeDMAFD/destroyExternalMemory abstract the
// compute-runtime-specific import calls (e.g. a Vulkan/HIP external memory
// import); the real implementation lives in whatever compute-runtime
// binding a deployment links in. Here they're no-ops over the fd itself so
// internal/surface is exercisable against internal/backend/mock without a
// real compute runtime present.
func importExternalMemory(desc backend.DMADescriptor) int {
	return desc.FD
}

func closeDMAFD(fd int) {
	// The mock backend returns -1 (no real fd was allocated); a real
	// backend's fd is owned by the caller after export and must be closed
	// exactly once here, per §4.7's invariant.
	if fd >= 0 {
		if err := syscall.Close(fd); err != nil {
			slog.Default().Warn("close dma fd failed", "fd", fd, "error", err)
		}
	}
}

func destroyExternalMemory(handle int) {
	_ = handle
}
