// Package decoder implements the client-facing decoder handle of §6.1:
// create_decoder, get_caps, map_frame/unmap_frame, reconfigure, and
// destroy, composing internal/session and internal/surface behind one
// type so a caller never touches the lower layers directly.
package decoder

import (
	"context"
	"log/slog"

	"github.com/vdpu/vdpu/internal/backend"
	"github.com/vdpu/vdpu/internal/session"
	"github.com/vdpu/vdpu/internal/surface"
	"github.com/vdpu/vdpu/internal/surfacepool"
)

// Caps mirrors get_caps's result, per §6.1: `{is_supported,
// output_format_mask, max/min w x h}`.
type Caps struct {
	IsSupported       bool
	OutputFormatMask  []backend.OutputFormat
	MinWidth, MinHeight int
	MaxWidth, MaxHeight int
}

// GetCaps reports whether be supports decoding codec at chroma/bitDepth,
// and the output formats/resolution range it advertises, per §6.1.
func GetCaps(ctx context.Context, be backend.Backend, codec backend.Codec, chroma backend.ChromaFormat, bitDepth int) (Caps, error) {
	all, err := be.ProbeCaps(ctx)
	if err != nil {
		return Caps{}, err
	}
	for _, c := range all {
		if c.Codec == codec && c.Chroma == chroma && bitDepth <= c.MaxBitDepth {
			return Caps{
				IsSupported:      true,
				OutputFormatMask: c.OutputFormats,
				MinWidth:         c.MinWidth, MinHeight: c.MinHeight,
				MaxWidth: c.MaxWidth, MaxHeight: c.MaxHeight,
			}, nil
		}
	}
	return Caps{IsSupported: false}, nil
}

// Decoder is the client-facing handle of §6.1: create_decoder's return
// value, wrapping a session and its surface exporter.
type Decoder struct {
	sess     *session.Session
	exporter *surface.Exporter
}

// New creates a decoder session over be and wraps it with a surface
// exporter, per create_decoder (§6.1).
func New(ctx context.Context, logger *slog.Logger, be backend.Backend, cfg session.Config) (*Decoder, error) {
	sess, err := session.New(ctx, logger, be, cfg)
	if err != nil {
		return nil, err
	}
	return &Decoder{sess: sess, exporter: surface.New(logger, be)}, nil
}

// Session returns the underlying decoder session, for a parser to drive.
func (d *Decoder) Session() *session.Session { return d.sess }

// Reconfigure forwards to the underlying session, per §4.6.
func (d *Decoder) Reconfigure(ctx context.Context, cfg session.Config) error {
	return d.sess.Reconfigure(ctx, cfg)
}

// MapFrame exports slot's surface as a compute-runtime-visible buffer,
// marking it UsedForDisplay for the duration of the mapping, per §4.7.
func (d *Decoder) MapFrame(ctx context.Context, h surfacepool.Handle) (surface.Mapped, error) {
	if err := d.sess.Pool().SetDisplaying(h); err != nil {
		return surface.Mapped{}, err
	}
	surfaceID, err := d.sess.Pool().Surface(h)
	if err != nil {
		return surface.Mapped{}, err
	}
	return d.exporter.Map(ctx, h.Index, surfaceID)
}

// UnmapFrame destroys the external memory handle and clears the slot's
// UsedForDisplay flag, returning it to Free if it is no longer referenced,
// per §4.7.
func (d *Decoder) UnmapFrame(h surfacepool.Handle) error {
	surfaceID, err := d.sess.Pool().Surface(h)
	if err != nil {
		return err
	}
	if err := d.exporter.Unmap(surfaceID); err != nil {
		return err
	}
	return d.sess.ReleaseDisplay(h)
}

// Destroy tears down the decoder session. Any exported surfaces must be
// unmapped first.
func (d *Decoder) Destroy(ctx context.Context) error {
	return d.sess.Destroy(ctx)
}
