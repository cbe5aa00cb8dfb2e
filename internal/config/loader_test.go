package config_test

import (
	"strings"
	"testing"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/config"
)

const validYAML = `
server:
  host: 0.0.0.0
  port: 8080
  public_host: scheduler.example.com
  log_level: info
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  stt:
    name: whisper-native
    model: /opt/models/ggml-base.en.bin
  tts:
    name: coqui
    base_url: http://localhost:5002
  embeddings:
    name: openai
    api_key: sk-test
telephony:
  account_sid: AC123
  auth_token: secret
calendar:
  provider: google
  credentials_file: /etc/scheduler/calendar.json
  calendar_id: bookings@example.com
  timezone: America/Chicago
search:
  service_url: http://localhost:9000
listings:
  postgres_dsn: postgres://scheduler@localhost:5432/listings
  embedding_dimensions: 1536
admin:
  api_key: operator-token
voice:
  tts_voice: p225
  vad_energy_threshold: 350
workflows:
  dir: data/workflows
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm entry = %+v", cfg.Providers.LLM)
	}
	if cfg.Calendar.Timezone != "America/Chicago" {
		t.Errorf("timezone = %q", cfg.Calendar.Timezone)
	}
	if cfg.Voice.VADEnergyThreshold != 350 {
		t.Errorf("vad threshold = %v", cfg.Voice.VADEnergyThreshold)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  port: 8080
  not_a_field: true
`))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing llm provider",
			mutate:  func(c *config.Config) { c.Providers.LLM.Name = "" },
			wantErr: "providers.llm.name is required",
		},
		{
			name:    "missing llm key",
			mutate:  func(c *config.Config) { c.Providers.LLM.APIKey = "" },
			wantErr: "providers.llm.api_key is required",
		},
		{
			name: "ollama needs no key",
			mutate: func(c *config.Config) {
				c.Providers.LLM.Name = "ollama"
				c.Providers.LLM.APIKey = ""
			},
		},
		{
			name:    "missing admin key",
			mutate:  func(c *config.Config) { c.Admin.APIKey = "" },
			wantErr: "admin.api_key is required",
		},
		{
			name: "debug bypasses admin key",
			mutate: func(c *config.Config) {
				c.Admin.APIKey = ""
				c.Server.Debug = true
			},
		},
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "verbose" },
			wantErr: "server.log_level",
		},
		{
			name:    "bad port",
			mutate:  func(c *config.Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "bad calendar provider",
			mutate:  func(c *config.Config) { c.Calendar.Provider = "outlook" },
			wantErr: "calendar.provider",
		},
		{
			name: "google calendar needs credentials",
			mutate: func(c *config.Config) {
				c.Calendar.Provider = "google"
				c.Calendar.CredentialsFile = ""
			},
			wantErr: "credentials_file",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *config.Config) { c.Calendar.Timezone = "Middle/Nowhere" },
			wantErr: "calendar.timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
			if err != nil {
				t.Fatalf("base config invalid: %v", err)
			}
			tt.mutate(cfg)
			err = config.Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	cfg.Providers.LLM.Name = ""
	cfg.Admin.APIKey = ""
	cfg.Server.Port = -1

	verr := config.Validate(cfg)
	if verr == nil {
		t.Fatal("Validate accepted broken config")
	}
	for _, want := range []string{"providers.llm.name", "admin.api_key", "server.port"} {
		if !strings.Contains(verr.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, verr)
		}
	}
}
