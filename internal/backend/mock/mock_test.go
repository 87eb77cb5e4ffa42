package mock

import (
	"context"
	"testing"

	"github.com/vdpu/vdpu/internal/backend"
)

func TestSubmitThenQueryStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := New()

	cfg, err := b.CreateConfig(ctx, backend.CodecHEVC, 1, backend.OutputNV12)
	if err != nil {
		t.Fatal(err)
	}
	surfaces, err := b.CreateSurfaces(ctx, backend.OutputNV12, 640, 480, 4)
	if err != nil {
		t.Fatal(err)
	}
	c, err := b.CreateContext(ctx, cfg, surfaces)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Submit(ctx, c, surfaces[0], backend.SubmitBuffers{PicParams: []byte{1}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	status, err := b.QuerySurfaceStatus(ctx, surfaces[0])
	if err != nil {
		t.Fatal(err)
	}
	if status != backend.StatusSuccess {
		t.Errorf("status: got %v want Success", status)
	}
}

// TestSyncSurfaceRetriesOnTimeout models scenario E6: sync_surface returns
// TIMEDOUT three times before succeeding, and map_frame (here, the caller
// retry loop) must not treat that as fatal.
func TestSyncSurfaceRetriesOnTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := New()
	surfaces, err := b.CreateSurfaces(ctx, backend.OutputNV12, 640, 480, 1)
	if err != nil {
		t.Fatal(err)
	}
	b.TimeoutsBeforeSuccess[surfaces[0]] = 3

	attempts := 0
	for {
		attempts++
		err := b.SyncSurface(ctx, surfaces[0])
		if err == nil {
			break
		}
		if err != backend.ErrTimeout {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts > 10 {
			t.Fatal("did not converge")
		}
	}
	if attempts != 4 {
		t.Errorf("attempts: got %d want 4", attempts)
	}
}

func TestExportSurfaceDoubleExportRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := New()
	surfaces, err := b.CreateSurfaces(ctx, backend.OutputNV12, 64, 64, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.ExportSurface(ctx, surfaces[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ExportSurface(ctx, surfaces[0]); err == nil {
		t.Error("expected second export to fail")
	}
}
