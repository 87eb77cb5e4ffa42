// Package dispatch implements the frame dispatcher of §4.8: four callback
// slots, a display-order reorder queue with configurable delay, and
// force-zero-latency mode.
package dispatch

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/zsiec/ccx"
)

// SequenceInfo is passed to OnSequence when a potential sequence change is
// flagged by the parameter-set store (§4.2, §4.8).
type SequenceInfo struct {
	Width, Height int
	ChromaFormat  int
	BitDepth      int
}

// Picture is one decoded picture ready for the decode-submit or display
// callback.
type Picture struct {
	PictureID      uint64
	OrderHint      int64
	SurfaceSlot    int
	PTS            int64
	ErrorConcealed bool
}

// Callbacks is the user-implemented interface the dispatcher fires into,
// replacing the original's void*-user-data callback soup per §9's design
// note.
type Callbacks interface {
	OnSequence(info SequenceInfo)
	OnDecodeSubmit(pic Picture) (proceed bool)
	OnDisplay(pic Picture)
	OnSEI(pic Picture, frames []*ccx.CaptionFrame)
}

// Dispatcher orders completed pictures into display order and invokes
// Callbacks, per §4.8.
type Dispatcher struct {
	cb  Callbacks
	log *slog.Logger

	mu              sync.Mutex
	maxDisplayDelay int
	zeroLatency     bool

	pending []Picture // pictures awaiting display, sorted by OrderHint on insert

	seiByPicture map[uint64][]*ccx.CaptionFrame
}

// Config configures a Dispatcher.
type Config struct {
	MaxDisplayDelay int // default 2, per §4.8
	ZeroLatency     bool
}

// New returns a Dispatcher wired to cb.
func New(logger *slog.Logger, cb Callbacks, cfg Config) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.MaxDisplayDelay
	if delay <= 0 {
		delay = 2
	}
	return &Dispatcher{
		cb:              cb,
		log:             logger.With("component", "dispatch"),
		maxDisplayDelay: delay,
		zeroLatency:     cfg.ZeroLatency,
		seiByPicture:    make(map[uint64][]*ccx.CaptionFrame),
	}
}

// Sequence fires OnSequence.
func (d *Dispatcher) Sequence(info SequenceInfo) {
	d.cb.OnSequence(info)
}

// BufferSEI buffers caption frames for a picture, fired later alongside
// its display callback per §4.8's "exactly once when displayed" rule.
func (d *Dispatcher) BufferSEI(pictureID uint64, frames []*ccx.CaptionFrame) {
	if len(frames) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seiByPicture[pictureID] = append(d.seiByPicture[pictureID], frames...)
}

// DecodeSubmit fires OnDecodeSubmit; a false return cancels the picture
// per §4.8 (the caller should release its surface slot immediately).
func (d *Dispatcher) DecodeSubmit(pic Picture) bool {
	return d.cb.OnDecodeSubmit(pic)
}

// Ready enqueues a completed picture for display-order emission. In
// zero-latency mode it displays immediately instead of buffering, per
// §4.8's force-zero-latency mode.
func (d *Dispatcher) Ready(pic Picture) {
	if d.zeroLatency {
		d.emit(pic)
		return
	}
	d.mu.Lock()
	d.pending = append(d.pending, pic)
	sort.Slice(d.pending, func(i, j int) bool { return d.pending[i].OrderHint < d.pending[j].OrderHint })
	var toEmit []Picture
	for len(d.pending) > d.maxDisplayDelay {
		toEmit = append(toEmit, d.pending[0])
		d.pending = d.pending[1:]
	}
	d.mu.Unlock()
	for _, p := range toEmit {
		d.emit(p)
	}
}

// Drain emits every remaining buffered picture in display order, per §5's
// "a feed with EndOfStream drains the reorder queue."
func (d *Dispatcher) Drain() {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()
	for _, p := range pending {
		d.emit(p)
	}
}

// Abort discards every buffered picture without calling their display
// callbacks, per §5's destroy-without-consuming-display-callbacks rule
// (scenario E4).
func (d *Dispatcher) Abort() {
	d.mu.Lock()
	d.pending = nil
	d.seiByPicture = make(map[uint64][]*ccx.CaptionFrame)
	d.mu.Unlock()
}

func (d *Dispatcher) emit(pic Picture) {
	d.mu.Lock()
	frames := d.seiByPicture[pic.PictureID]
	delete(d.seiByPicture, pic.PictureID)
	d.mu.Unlock()
	if len(frames) > 0 {
		d.cb.OnSEI(pic, frames)
	}
	d.cb.OnDisplay(pic)
}
