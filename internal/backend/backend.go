// Package backend defines the abstract accelerator interface the core
// decode path submits work through (§6.3). The core never reaches around
// this interface; any codec a concrete backend does not advertise is
// rejected at decoder-create time.
package backend

import "context"

// Codec enumerates the bitstream codecs a backend may support.
type Codec int

const (
	CodecH264 Codec = iota
	CodecHEVC
	CodecVP9
	CodecAV1
)

// ChromaFormat mirrors the chroma subsampling a backend surface may hold.
type ChromaFormat int

const (
	Chroma420 ChromaFormat = iota
	Chroma422
	Chroma444
)

// Caps is one entry of probe_caps()'s result list.
type Caps struct {
	Codec        Codec
	Chroma       ChromaFormat
	MaxBitDepth  int
	OutputFormats []OutputFormat
	MinWidth, MinHeight int
	MaxWidth, MaxHeight int
}

// OutputFormat enumerates the pixel layouts a backend can export surfaces
// in (NV12, P010, etc. — named abstractly since the concrete set is
// hardware-defined).
type OutputFormat int

const (
	OutputNV12 OutputFormat = iota
	OutputP010
	Output444
)

// SurfaceStatus mirrors query_surface_status()'s result, per §4.6.
type SurfaceStatus int

const (
	StatusInvalid SurfaceStatus = iota
	StatusInProgress
	StatusSuccess
	StatusDisplaying
	StatusError
	StatusErrorConcealed
)

// DMADescriptor is the platform-neutral export handle of §4.7: a shared fd
// plus per-layer offset/pitch layout.
type DMADescriptor struct {
	FD         int
	NumObjects int
	Layers     []Layer
}

// Layer is one plane's offset/pitch within a DMA descriptor's backing
// allocation.
type Layer struct {
	Offset int64
	Pitch  int64
}

// SubmitBuffers bundles the per-picture buffers submit() forwards to the
// backend, per §6.3.
type SubmitBuffers struct {
	PicParams   []byte
	IQMatrix    []byte // optional; nil when the backend uses implicit defaults
	SliceParams []byte
	SliceData   []byte
}

// Backend is the abstract accelerator interface of §6.3. Implementations
// are expected to be safe for concurrent use by one decoder session and
// one surface exporter, per §5's shared-handle ownership rule.
type Backend interface {
	ProbeCaps(ctx context.Context) ([]Caps, error)
	CreateConfig(ctx context.Context, codec Codec, profile int, rtFormat OutputFormat) (ConfigID, error)
	CreateSurfaces(ctx context.Context, format OutputFormat, width, height, count int) ([]SurfaceID, error)
	CreateContext(ctx context.Context, config ConfigID, surfaces []SurfaceID) (ContextID, error)
	Submit(ctx context.Context, context ContextID, currentSurface SurfaceID, buffers SubmitBuffers) error
	QuerySurfaceStatus(ctx context.Context, surface SurfaceID) (SurfaceStatus, error)
	SyncSurface(ctx context.Context, surface SurfaceID) error
	ExportSurface(ctx context.Context, surface SurfaceID) (DMADescriptor, error)
	DestroyContext(ctx context.Context, context ContextID) error
	DestroyConfig(ctx context.Context, config ConfigID) error
	DestroySurfaces(ctx context.Context, surfaces []SurfaceID) error
}

// ConfigID, SurfaceID, and ContextID are opaque backend-assigned handles.
type (
	ConfigID  uint64
	SurfaceID uint64
	ContextID uint64
)

// ErrTimeout is returned by SyncSurface when the backend has not yet
// finished a submission; callers (map_frame, per §4.7/§5) retry rather than
// treat it as fatal.
var ErrTimeout = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string { return "backend: sync_surface timed out" }
func (timeoutError) Timeout() bool { return true }
