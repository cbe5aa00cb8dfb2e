package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls the config file and invokes a callback when its content
// changes and parses to a valid config. Polling keeps the dependency set
// small; a few seconds of reload latency is fine for operator edits. An
// invalid edit is logged and the previous config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	sum     [sha256.Size]byte

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for reload and failure messages.
func WithWatcherLogger(log *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// NewWatcher loads the config at path, then polls it in a background
// goroutine until [Watcher.Stop] is called.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.reload(false); err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}

	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				w.tick()
			}
		}
	}()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// tick checks the file's mtime and reloads on change. Errors keep the
// previous config.
func (w *Watcher) tick() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config watcher: stat failed", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}
	if err := w.reload(true); err != nil {
		w.log.Warn("config watcher: reload failed, keeping previous config",
			"path", w.path, "err", err)
	}
}

// reload reads, parses and validates the file. When notify is set and the
// content hash actually changed, onChange runs outside the lock with the
// old and new configs.
func (w *Watcher) reload(notify bool) error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}

	sum := sha256.Sum256(data)
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return err
	}

	w.mu.Lock()
	sameContent := sum == w.sum
	old := w.current
	if !sameContent {
		w.current = cfg
	}
	w.sum = sum
	w.mtime = info.ModTime()
	w.mu.Unlock()

	if sameContent || !notify {
		return nil
	}
	w.log.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return nil
}
