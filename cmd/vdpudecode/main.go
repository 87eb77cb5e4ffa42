// Command vdpudecode is a minimal driver for the decoder pipeline: it
// feeds one or more Annex-B H.264 or HEVC files (HEVC for the .265 and
// .hevc suffixes) through a parser session each, using the in-memory mock
// backend, and reports the pictures each
// session displays.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vdpu/vdpu/internal/backend"
	"github.com/vdpu/vdpu/internal/backend/mock"
	"github.com/vdpu/vdpu/internal/dispatch"
	"github.com/vdpu/vdpu/internal/nal"
	"github.com/vdpu/vdpu/internal/parser"
	"github.com/vdpu/vdpu/internal/session"
	"github.com/zsiec/ccx"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	paths := os.Args[1:]
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: vdpudecode file.264 [file2.264 ...]")
		os.Exit(2)
	}

	maxConcurrent := envOrInt("MAX_CONCURRENT_MAPS", 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	pool := session.NewPool(logger, int64(maxConcurrent))
	be := mock.New()

	slog.Info("vdpudecode starting", "version", version, "inputs", len(paths))

	for _, p := range paths {
		key := p
		sess, err := newSessionFor(ctx, logger, be)
		if err != nil {
			slog.Error("failed to create session", "path", key, "error", err)
			os.Exit(1)
		}
		pool.Add(key, sess)
	}

	err := pool.Run(ctx, func(ctx context.Context, key string, sess *session.Session) error {
		return decodeFile(ctx, logger, key, sess)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("decode error", "error", err)
		os.Exit(1)
	}
}

func newSessionFor(ctx context.Context, logger *slog.Logger, be backend.Backend) (*session.Session, error) {
	return session.New(ctx, logger, be, session.Config{
		Codec:        backend.CodecH264,
		ChromaFormat: backend.Chroma420,
		BitDepth:     8,
		Width:        1920, Height: 1080,
		MaxWidth: 1920, MaxHeight: 1080,
		NumSurfaces:  envOrInt("NUM_SURFACES", 8),
		OutputFormat: backend.OutputNV12,
		Blocking:     true,
	})
}

func decodeFile(ctx context.Context, logger *slog.Logger, path string, sess *session.Session) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	cb := &loggingCallbacks{log: logger.With("stream", path)}
	d := dispatch.New(logger, cb, dispatch.Config{MaxDisplayDelay: 4})

	codec := nal.CodecH264
	if strings.HasSuffix(path, ".265") || strings.HasSuffix(path, ".hevc") {
		codec = nal.CodecHEVC
	}

	p, err := parser.New(logger, parser.Config{Codec: codec}, sess, d, 16)
	if err != nil {
		return fmt.Errorf("create parser for %s: %w", path, err)
	}
	defer p.Destroy(ctx)

	if err := p.Feed(ctx, data); err != nil {
		return fmt.Errorf("feed %s: %w", path, err)
	}
	if err := p.EndOfStream(ctx); err != nil {
		return fmt.Errorf("end of stream %s: %w", path, err)
	}

	logger.Info("decode complete", "stream", path, "pictures_displayed", cb.count)
	return nil
}

// loggingCallbacks implements dispatch.Callbacks for the CLI, logging
// each lifecycle event at the appropriate level.
type loggingCallbacks struct {
	log   *slog.Logger
	count int
}

func (c *loggingCallbacks) OnSequence(info dispatch.SequenceInfo) {
	c.log.Info("sequence", "width", info.Width, "height", info.Height, "chroma", info.ChromaFormat)
}

func (c *loggingCallbacks) OnDecodeSubmit(pic dispatch.Picture) bool {
	c.log.Debug("decode submit", "picture_id", pic.PictureID, "pts", pic.PTS)
	return true
}

func (c *loggingCallbacks) OnDisplay(pic dispatch.Picture) {
	c.count++
	c.log.Info("display", "picture_id", pic.PictureID, "order_hint", pic.OrderHint)
}

func (c *loggingCallbacks) OnSEI(pic dispatch.Picture, frames []*ccx.CaptionFrame) {
	if len(frames) > 0 {
		c.log.Info("caption frames", "picture_id", pic.PictureID, "count", len(frames))
	}
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	return n
}
