package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"stt":        {"whisper-native", "whisper"},
	"tts":        {"coqui", "coqui-xtts"},
	"embeddings": {"openai", "ollama"},
}

// keylessLLMProviders run locally and need no API key.
var keylessLLMProviders = []string{"ollama"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Hard failures
// (a missing LLM provider or admin key) are returned as a joined error;
// missing optional integrations only produce startup warnings.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [0, 65535]", cfg.Server.Port))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// The conversation core cannot run without a language model.
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	} else if cfg.Providers.LLM.APIKey == "" && !slices.Contains(keylessLLMProviders, cfg.Providers.LLM.Name) {
		errs = append(errs, fmt.Errorf("providers.llm.api_key is required for provider %q", cfg.Providers.LLM.Name))
	}

	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; callers cannot be transcribed")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; replies will not be spoken")
	}

	// The admin surface must never run open outside debug mode.
	if cfg.Admin.APIKey == "" && !cfg.Server.Debug {
		errs = append(errs, errors.New("admin.api_key is required unless server.debug is set"))
	}

	if cfg.Telephony.AccountSID == "" || cfg.Telephony.AuthToken == "" {
		slog.Warn("telephony credentials are incomplete; phone calls and TURN credential fetch are disabled")
	}

	switch cfg.Calendar.Provider {
	case "", "memory":
		slog.Warn("calendar.provider is not configured; bookings use the in-memory calendar and are lost on restart")
	case "google":
		if cfg.Calendar.CredentialsFile == "" || cfg.Calendar.CalendarID == "" {
			errs = append(errs, errors.New("calendar.provider \"google\" requires credentials_file and calendar_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("calendar.provider %q is invalid; valid values: google, memory", cfg.Calendar.Provider))
	}
	if cfg.Calendar.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Calendar.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("calendar.timezone %q is not a valid IANA zone", cfg.Calendar.Timezone))
		}
	}

	if cfg.Search.ServiceURL == "" && cfg.Listings.PostgresDSN == "" {
		slog.Warn("neither search.service_url nor listings.postgres_dsn is configured; apartment search is unavailable")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Listings.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but listings.embedding_dimensions is not set; defaulting to 1536")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
