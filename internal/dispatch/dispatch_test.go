package dispatch

import (
	"sync"
	"testing"

	"github.com/zsiec/ccx"
)

type recordingCallbacks struct {
	mu        sync.Mutex
	sequences []SequenceInfo
	submitted []Picture
	displayed []Picture
	sei       map[uint64][]*ccx.CaptionFrame
}

func newRecordingCallbacks() *recordingCallbacks {
	return &recordingCallbacks{sei: make(map[uint64][]*ccx.CaptionFrame)}
}

func (r *recordingCallbacks) OnSequence(info SequenceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequences = append(r.sequences, info)
}

func (r *recordingCallbacks) OnDecodeSubmit(pic Picture) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, pic)
	return true
}

func (r *recordingCallbacks) OnDisplay(pic Picture) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.displayed = append(r.displayed, pic)
}

func (r *recordingCallbacks) OnSEI(pic Picture, frames []*ccx.CaptionFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sei[pic.PictureID] = frames
}

func TestReadyEmitsInDisplayOrder(t *testing.T) {
	t.Parallel()
	cb := newRecordingCallbacks()
	d := New(nil, cb, Config{MaxDisplayDelay: 2})

	// Decode order 0,2,1,3 with OrderHint matching display order 0,1,2,3.
	d.Ready(Picture{PictureID: 1, OrderHint: 0})
	d.Ready(Picture{PictureID: 2, OrderHint: 2})
	d.Ready(Picture{PictureID: 3, OrderHint: 1})
	d.Ready(Picture{PictureID: 4, OrderHint: 3})
	d.Drain()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.displayed) != 4 {
		t.Fatalf("expected 4 displayed pictures, got %d", len(cb.displayed))
	}
	for i, pic := range cb.displayed {
		if pic.OrderHint != int64(i) {
			t.Errorf("displayed[%d].OrderHint = %d, want %d", i, pic.OrderHint, i)
		}
	}
}

func TestZeroLatencyBypassesReorder(t *testing.T) {
	t.Parallel()
	cb := newRecordingCallbacks()
	d := New(nil, cb, Config{ZeroLatency: true})

	d.Ready(Picture{PictureID: 1, OrderHint: 5})
	d.Ready(Picture{PictureID: 2, OrderHint: 0})

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.displayed) != 2 {
		t.Fatalf("expected 2 displayed pictures, got %d", len(cb.displayed))
	}
	if cb.displayed[0].PictureID != 1 || cb.displayed[1].PictureID != 2 {
		t.Error("zero-latency mode should emit in arrival order, not display order")
	}
}

func TestAbortDiscardsWithoutDisplay(t *testing.T) {
	t.Parallel()
	cb := newRecordingCallbacks()
	d := New(nil, cb, Config{MaxDisplayDelay: 2})

	d.Ready(Picture{PictureID: 1, OrderHint: 0})
	d.BufferSEI(1, []*ccx.CaptionFrame{{Text: "hello"}})
	d.Abort()
	d.Drain()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.displayed) != 0 {
		t.Errorf("expected no displayed pictures after Abort, got %d", len(cb.displayed))
	}
	if len(cb.sei) != 0 {
		t.Errorf("expected no SEI callbacks after Abort, got %d", len(cb.sei))
	}
}

func TestSEIFiresExactlyOnceAlongsideDisplay(t *testing.T) {
	t.Parallel()
	cb := newRecordingCallbacks()
	d := New(nil, cb, Config{ZeroLatency: true})

	d.BufferSEI(1, []*ccx.CaptionFrame{{Text: "hi"}})
	d.Ready(Picture{PictureID: 1, OrderHint: 0})

	cb.mu.Lock()
	defer cb.mu.Unlock()
	frames, ok := cb.sei[1]
	if !ok || len(frames) != 1 || frames[0].Text != "hi" {
		t.Fatalf("expected SEI frames buffered for picture 1, got %v", frames)
	}
}

func TestDecodeSubmitRejection(t *testing.T) {
	t.Parallel()
	d := New(nil, &rejectingCallbacks{}, Config{})
	if proceed := d.DecodeSubmit(Picture{PictureID: 1}); proceed {
		t.Error("expected DecodeSubmit to return false when callback rejects")
	}
}

type rejectingCallbacks struct{}

func (rejectingCallbacks) OnSequence(SequenceInfo)                   {}
func (rejectingCallbacks) OnDecodeSubmit(Picture) bool                { return false }
func (rejectingCallbacks) OnDisplay(Picture)                          {}
func (rejectingCallbacks) OnSEI(Picture, []*ccx.CaptionFrame)         {}
