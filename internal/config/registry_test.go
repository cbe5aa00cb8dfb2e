package config_test

import (
	"errors"
	"testing"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/config"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/llm"
	llmmock "github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/llm/mock"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/tts"
	ttsmock "github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/tts/mock"
)

func TestRegistryUnregisteredProvider(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	_, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("CreateLLM error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper-native"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("CreateSTT error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	reg.RegisterLLM("mock", func(entry config.ProviderEntry) (llm.Provider, error) {
		gotEntry = entry
		return &llmmock.Provider{}, nil
	})
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	entry := config.ProviderEntry{Name: "mock", Model: "test-model", BaseURL: "http://localhost:1234"}
	p, err := reg.CreateLLM(entry)
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM returned nil provider")
	}
	if gotEntry.Model != "test-model" || gotEntry.BaseURL != "http://localhost:1234" {
		t.Errorf("factory received entry %+v", gotEntry)
	}

	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Fatalf("CreateTTS: %v", err)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	calls := 0
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		calls++
		return &llmmock.Provider{}, nil
	})
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if calls != 0 {
		t.Error("re-registration did not replace the original factory")
	}
}
