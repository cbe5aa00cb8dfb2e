package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/config"
)

const watcherYAMLv1 = `
server:
  port: 8080
  debug: true
providers:
  llm:
    name: ollama
voice:
  tts_voice: p225
`

const watcherYAMLv2 = `
server:
  port: 8080
  debug: true
providers:
  llm:
    name: ollama
voice:
  tts_voice: p330
`

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	// Force a visible mtime change even on coarse filesystem clocks.
	now := time.Now()
	if err := os.Chtimes(path, now, now.Add(time.Second)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, watcherYAMLv1)

	var mu sync.Mutex
	var gotOld, gotNew *config.Config
	changed := make(chan struct{}, 1)

	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		mu.Lock()
		gotOld, gotNew = old, new
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Voice.TTSVoice; got != "p225" {
		t.Fatalf("initial voice = %q", got)
	}

	writeConfig(t, path, watcherYAMLv2)

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never reported the change")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld.Voice.TTSVoice != "p225" || gotNew.Voice.TTSVoice != "p330" {
		t.Errorf("onChange old = %q, new = %q", gotOld.Voice.TTSVoice, gotNew.Voice.TTSVoice)
	}
	if w.Current().Voice.TTSVoice != "p330" {
		t.Errorf("Current not swapped: %q", w.Current().Voice.TTSVoice)
	}
}

func TestWatcherKeepsConfigOnInvalidEdit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, watcherYAMLv1)

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "providers:\n  llm:\n    name: ''\n")
	time.Sleep(100 * time.Millisecond)

	if got := w.Current().Voice.TTSVoice; got != "p225" {
		t.Errorf("invalid edit replaced config: voice = %q", got)
	}
}

func TestWatcherInitialLoadFailure(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("NewWatcher succeeded on missing file")
	}
}
