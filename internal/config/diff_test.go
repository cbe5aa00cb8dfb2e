package config_test

import (
	"testing"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/config"
)

func TestDiff(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Server.LogLevel = config.LogInfo
	old.Admin.APIKey = "token-a"
	old.Search.ServiceURL = "http://localhost:9000"

	t.Run("no changes", func(t *testing.T) {
		t.Parallel()
		cp := *old
		d := config.Diff(old, &cp)
		if d.Changed() {
			t.Errorf("diff of identical configs = %+v", d)
		}
	})

	t.Run("log level", func(t *testing.T) {
		t.Parallel()
		cp := *old
		cp.Server.LogLevel = config.LogDebug
		d := config.Diff(old, &cp)
		if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
			t.Errorf("diff = %+v", d)
		}
	})

	t.Run("voice settings", func(t *testing.T) {
		t.Parallel()
		cp := *old
		cp.Voice.TTSVoice = "p330"
		if d := config.Diff(old, &cp); !d.VoiceChanged {
			t.Errorf("diff = %+v", d)
		}
	})

	t.Run("barge-in pointer", func(t *testing.T) {
		t.Parallel()
		off := false
		cp := *old
		cp.Voice.BargeInEnabled = &off
		if d := config.Diff(old, &cp); !d.VoiceChanged {
			t.Errorf("diff = %+v", d)
		}

		on := true
		a, b := *old, *old
		a.Voice.BargeInEnabled = &on
		onAgain := true
		b.Voice.BargeInEnabled = &onAgain
		if d := config.Diff(&a, &b); d.VoiceChanged {
			t.Errorf("equal pointer values reported changed: %+v", d)
		}
	})

	t.Run("admin key", func(t *testing.T) {
		t.Parallel()
		cp := *old
		cp.Admin.APIKey = "token-b"
		if d := config.Diff(old, &cp); !d.AdminKeyChanged {
			t.Errorf("diff = %+v", d)
		}
	})

	t.Run("search url", func(t *testing.T) {
		t.Parallel()
		cp := *old
		cp.Search.ServiceURL = "http://search.internal:9000"
		if d := config.Diff(old, &cp); !d.SearchURLChanged {
			t.Errorf("diff = %+v", d)
		}
	})
}
