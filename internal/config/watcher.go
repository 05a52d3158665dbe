package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// snapshot is one successfully parsed version of the file.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// Watcher polls a config file for edits. Only a changed modification time
// triggers a read, and only changed content that parses and validates is
// published; a broken edit is logged and ignored.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	last atomic.Pointer[snapshot]
}

type WatcherOption func(*Watcher)

// WithInterval sets the poll period, 5s by default.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher reads path once; it fails if that first read does. onChange
// may be nil and is called from [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: 5 * time.Second, onChange: onChange}
	for _, o := range opts {
		o(w)
	}
	snap, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.last.Store(snap)
	return w, nil
}

// Current is the most recently published config.
func (w *Watcher) Current() *Config { return w.last.Load().cfg }

// Run polls until ctx ends. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	prev := w.last.Load()
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return
	}
	if info.ModTime().Equal(prev.mtime) {
		return
	}

	next, err := w.load()
	if err != nil {
		slog.Warn("config: edit rejected, previous config stays active", "path", w.path, "err", err)
		return
	}
	if next.sum == prev.sum {
		// Touched only; remember the mtime so the file is not re-read.
		w.last.Store(&snapshot{cfg: prev.cfg, sum: prev.sum, mtime: next.mtime})
		return
	}
	w.last.Store(next)
	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(prev.cfg, next.cfg)
	}
}

func (w *Watcher) load() (*snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
