package session

import (
	"context"
	"errors"
	"testing"

	"github.com/vdpu/vdpu/internal/backend/mock"
)

func TestPoolAddGetRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	s, err := New(ctx, nil, be, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	p := NewPool(nil, 0)
	if !p.Add("stream-a", s) {
		t.Fatal("Add should succeed for a new key")
	}
	if p.Add("stream-a", s) {
		t.Error("Add should reject a duplicate key")
	}
	if _, ok := p.Get("stream-a"); !ok {
		t.Error("Get should find the registered session")
	}
	if got := p.List(); len(got) != 1 || got[0] != "stream-a" {
		t.Errorf("List: got %v", got)
	}
	if _, ok := p.Remove("stream-a"); !ok {
		t.Error("Remove should find the registered session")
	}
	if _, ok := p.Get("stream-a"); ok {
		t.Error("Get should fail after Remove")
	}
}

func TestPoolRunPropagatesFirstError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := mock.New()
	p := NewPool(nil, 0)
	for _, key := range []string{"a", "b", "c"} {
		s, err := New(ctx, nil, be, testConfig())
		if err != nil {
			t.Fatal(err)
		}
		p.Add(key, s)
	}

	wantErr := errors.New("boom")
	err := p.Run(ctx, func(ctx context.Context, key string, s *Session) error {
		if key == "b" {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Run error = %v, want %v", err, wantErr)
	}
}

func TestAcquireMapSlotBounds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewPool(nil, 1)

	release1, err := p.AcquireMapSlot(ctx)
	if err != nil {
		t.Fatal(err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := p.AcquireMapSlot(cctx); err == nil {
		t.Error("expected AcquireMapSlot to fail on an already-canceled context when the slot is held")
	}

	release1()
	release2, err := p.AcquireMapSlot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	release2()
}
