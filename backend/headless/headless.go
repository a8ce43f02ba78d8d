// Package headless implements a Backend for automated testing and
// batch processing: no window, no keyboard, periodic PNG snapshots of
// the composited LCD surface. Grounded on
// jeebie/backend/headless/headless.go, generalized from a single
// Game Boy framebuffer to the board's two-screen ARGB surface.
package headless

import (
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/arm9board/core/backend"
)

// SnapshotConfig configures periodic frame snapshots.
type SnapshotConfig struct {
	Enabled   bool
	Interval  int    // save a snapshot every N frames
	Directory string // destination directory
	Prefix    string // filename prefix, e.g. derived from the loaded ITCM image name
}

// Backend implements backend.Backend with no rendering or input.
type Backend struct {
	config         backend.BackendConfig
	frameCount     int
	maxFrames      int
	snapshotConfig SnapshotConfig
}

// New creates a headless backend that signals completion through Done
// (not through a quit InputEvent) after maxFrames calls to Update.
// maxFrames <= 0 means run forever.
func New(maxFrames int, snapshotConfig SnapshotConfig) *Backend {
	return &Backend{maxFrames: maxFrames, snapshotConfig: snapshotConfig}
}

func (h *Backend) Init(config backend.BackendConfig) error {
	h.config = config
	slog.Info("running headless",
		"frames", h.maxFrames,
		"snapshot_interval", h.snapshotConfig.Interval,
		"snapshot_dir", h.snapshotConfig.Directory)
	return nil
}

// Done reports whether maxFrames have elapsed, for cmd/arm9board's
// driving loop to check after each Update instead of relying on a
// synthesized quit event.
func (h *Backend) Done() bool {
	return h.maxFrames > 0 && h.frameCount >= h.maxFrames
}

func (h *Backend) Update(surface []uint32, width, height int) ([]backend.InputEvent, error) {
	h.frameCount++

	if h.snapshotConfig.Enabled && h.frameCount%h.snapshotConfig.Interval == 0 {
		h.saveSnapshot(surface, width, height)
	}

	if h.frameCount%60 == 0 {
		slog.Info("frame progress", "completed", h.frameCount, "total", h.maxFrames)
	}

	if h.Done() {
		if h.snapshotConfig.Enabled && h.frameCount%h.snapshotConfig.Interval != 0 {
			h.saveSnapshot(surface, width, height)
		}
		slog.Info("headless run complete", "frames", h.frameCount)
	}

	return nil, nil
}

func (h *Backend) Cleanup() error { return nil }

// CreateSnapshotConfig builds a SnapshotConfig from CLI parameters,
// creating the destination directory (a temp one if none was given).
func CreateSnapshotConfig(interval int, directory, prefix string) (SnapshotConfig, error) {
	cfg := SnapshotConfig{Enabled: interval > 0, Interval: interval, Prefix: prefix}
	if !cfg.Enabled {
		return cfg, nil
	}

	if directory == "" {
		dir, err := os.MkdirTemp("", "arm9board-snapshots-*")
		if err != nil {
			return cfg, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		cfg.Directory = dir
	} else {
		if err := os.MkdirAll(directory, 0755); err != nil {
			return cfg, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		cfg.Directory = directory
	}
	return cfg, nil
}

func (h *Backend) saveSnapshot(surface []uint32, width, height int) {
	name := fmt.Sprintf("%s_frame_%d.png", h.snapshotConfig.Prefix, h.frameCount)
	path := filepath.Join(h.snapshotConfig.Directory, name)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, px := range surface {
		a := byte(px >> 24)
		r := byte(px >> 16)
		g := byte(px >> 8)
		b := byte(px)
		idx := i * 4
		img.Pix[idx], img.Pix[idx+1], img.Pix[idx+2], img.Pix[idx+3] = r, g, b, a
	}

	file, err := os.Create(path)
	if err != nil {
		slog.Error("failed to create snapshot file", "path", path, "error", err)
		return
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		slog.Error("failed to encode snapshot PNG", "path", path, "error", err)
		return
	}
	slog.Info("snapshot saved", "path", path)
}
