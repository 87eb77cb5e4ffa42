package decoder

import (
	"context"
	"testing"

	"github.com/vdpu/vdpu/internal/backend"
	"github.com/vdpu/vdpu/internal/backend/mock"
	"github.com/vdpu/vdpu/internal/session"
)

func testConfig() session.Config {
	return session.Config{
		Codec:        backend.CodecH264,
		ChromaFormat: backend.Chroma420,
		BitDepth:     8,
		Width:        64, Height: 64,
		MaxWidth: 64, MaxHeight: 64,
		NumSurfaces:  2,
		OutputFormat: backend.OutputNV12,
	}
}

func TestGetCapsReportsSupportedCodec(t *testing.T) {
	ctx := context.Background()
	be := mock.New()
	caps, err := GetCaps(ctx, be, backend.CodecH264, backend.Chroma420, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !caps.IsSupported {
		t.Fatal("expected H264/420/8bit to be supported by the mock backend")
	}
}

func TestMapFrameThenUnmapFrame(t *testing.T) {
	ctx := context.Background()
	be := mock.New()
	d, err := New(ctx, nil, be, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Destroy(ctx)

	h, _, err := d.Session().AllocateSlot(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}

	mapped, err := d.MapFrame(ctx, h)
	if err != nil {
		t.Fatalf("MapFrame: %v", err)
	}
	if mapped.SurfaceSlot != h.Index {
		t.Errorf("expected mapped slot %d, got %d", h.Index, mapped.SurfaceSlot)
	}

	if err := d.UnmapFrame(h); err != nil {
		t.Fatalf("UnmapFrame: %v", err)
	}
}

func TestReconfigureThroughDecoder(t *testing.T) {
	ctx := context.Background()
	be := mock.New()
	d, err := New(ctx, nil, be, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Destroy(ctx)

	cfg := testConfig()
	cfg.NumSurfaces = 4
	if err := d.Reconfigure(ctx, cfg); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if got := len(d.Session().Surfaces()); got != 4 {
		t.Errorf("expected 4 surfaces after reconfigure, got %d", got)
	}
}
