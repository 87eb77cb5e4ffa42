package surface

import (
	"context"
	"testing"
	"time"

	"github.com/vdpu/vdpu/internal/backend"
	"github.com/vdpu/vdpu/internal/backend/mock"
)

func TestMapUnmapIdempotence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	surfaces, err := be.CreateSurfaces(ctx, backend.OutputNV12, 64, 64, 1)
	if err != nil {
		t.Fatal(err)
	}

	e := New(nil, be)
	e.PollInterval = time.Microsecond
	m, err := e.Map(ctx, 0, surfaces[0])
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if m.PlanePitches[0] != 64 {
		t.Errorf("PlanePitches[0]: got %d want 64", m.PlanePitches[0])
	}
	if err := e.Unmap(surfaces[0]); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if err := e.Unmap(surfaces[0]); err == nil {
		t.Error("expected second Unmap to fail (double-close guard)")
	}
}

func TestMapRetriesOnTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	surfaces, err := be.CreateSurfaces(ctx, backend.OutputNV12, 32, 32, 1)
	if err != nil {
		t.Fatal(err)
	}
	be.TimeoutsBeforeSuccess[surfaces[0]] = 2

	e := New(nil, be)
	e.PollInterval = time.Microsecond
	if _, err := e.Map(ctx, 0, surfaces[0]); err != nil {
		t.Fatalf("Map: %v", err)
	}
}

func TestDoubleMapRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	surfaces, _ := be.CreateSurfaces(ctx, backend.OutputNV12, 32, 32, 1)
	e := New(nil, be)
	e.PollInterval = time.Microsecond
	if _, err := e.Map(ctx, 0, surfaces[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Map(ctx, 0, surfaces[0]); err == nil {
		t.Error("expected second Map without intervening Unmap to fail")
	}
}
