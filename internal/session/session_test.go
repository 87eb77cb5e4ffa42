package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vdpu/vdpu/internal/backend"
	"github.com/vdpu/vdpu/internal/backend/mock"
	"github.com/vdpu/vdpu/internal/submit"
	"github.com/vdpu/vdpu/internal/verrors"
)

func testConfig() Config {
	return Config{
		Codec:        backend.CodecH264,
		ChromaFormat: backend.Chroma420,
		BitDepth:     8,
		Width:        64, Height: 64,
		MaxWidth: 64, MaxHeight: 64,
		NumSurfaces:  2,
		OutputFormat: backend.OutputNV12,
	}
}

func TestNewSessionCreatesSurfaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	s, err := New(ctx, nil, be, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if s.Pool().NumSurfaces() != 2 {
		t.Errorf("NumSurfaces: got %d want 2", s.Pool().NumSurfaces())
	}
}

func TestAllocateSlotNonBlockingExhaustion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	cfg := testConfig()
	cfg.NumSurfaces = 1
	s, err := New(ctx, nil, be, cfg)
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = s.AllocateSlot(ctx, 0)
	if err != nil {
		t.Fatalf("first allocate: %v", err)
	}
	_, _, err = s.AllocateSlot(ctx, 1)
	if !errors.Is(err, verrors.Sentinel(verrors.KindPoolExhausted)) {
		t.Fatalf("expected PoolExhausted, got %v", err)
	}
}

func TestAllocateSlotBlocksUntilReleased(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	cfg := testConfig()
	cfg.NumSurfaces = 1
	cfg.Blocking = true
	s, err := New(ctx, nil, be, cfg)
	if err != nil {
		t.Fatal(err)
	}

	h, _, err := s.AllocateSlot(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		if _, _, err := s.AllocateSlot(ctx, 1); err != nil {
			t.Error(err)
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("AllocateSlot returned before the slot was released")
	case <-time.After(20 * time.Millisecond):
	}

	if err := s.ReleaseDecode(h); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AllocateSlot never unblocked after release")
	}
}

func TestReconfigureRejectsCodecChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	s, err := New(ctx, nil, be, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	cfg := s.Config()
	cfg.Codec = backend.CodecHEVC
	if err := s.Reconfigure(ctx, cfg); err == nil {
		t.Error("expected Reconfigure to reject a codec change")
	}
}

func TestReconfigureRejectsWhileInFlight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	s, err := New(ctx, nil, be, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.AllocateSlot(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Reconfigure(ctx, s.Config()); err == nil {
		t.Error("expected Reconfigure to reject while a picture is in flight")
	}
}

func TestSubmitDecodeFailureReleasesSlot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	cfg := testConfig()
	cfg.NumSurfaces = 1
	s, err := New(ctx, nil, be, cfg)
	if err != nil {
		t.Fatal(err)
	}
	h, _, err := s.AllocateSlot(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}

	be.FailNextSubmit = true
	sub, err := submit.Build([]byte{1}, []byte{2}, nil, []byte{3}, h.Index)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SubmitDecode(ctx, h, sub); err == nil {
		t.Fatal("expected SubmitDecode to fail")
	}

	// The slot should be free again, so a new allocation must succeed.
	if _, _, err := s.AllocateSlot(ctx, 1); err != nil {
		t.Fatalf("slot was not released after submit failure: %v", err)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	s, err := New(ctx, nil, be, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Destroy(ctx); err != nil {
		t.Fatalf("second Destroy should be a no-op, got %v", err)
	}
}
