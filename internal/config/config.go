// Package config provides the configuration schema, loader, provider
// registry, and live-adjustable runtime settings for the scheduling server.
package config

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the scheduling server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Telephony TelephonyConfig `yaml:"telephony"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Search    SearchConfig    `yaml:"search"`
	Listings  ListingsConfig  `yaml:"listings"`
	Admin     AdminConfig     `yaml:"admin"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
	Voice     VoiceConfig     `yaml:"voice"`
	Workflows WorkflowsConfig `yaml:"workflows"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// Host is the interface the server binds to. Empty means all interfaces.
	Host string `yaml:"host"`

	// Port is the TCP port the server listens on.
	Port int `yaml:"port"`

	// PublicHost is the externally reachable hostname used to build the
	// media-stream WebSocket URL handed to the telephony provider.
	PublicHost string `yaml:"public_host"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Debug enables diagnostic features: admin auth bypass and barge-in
	// trigger transcription. Never enable outside local development.
	Debug bool `yaml:"debug"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM        ProviderEntry `yaml:"llm"`
	STT        ProviderEntry `yaml:"stt"`
	TTS        ProviderEntry `yaml:"tts"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "whisper-native", "coqui").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini")
	// or, for local STT, the path to the model file.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// TelephonyConfig holds the telephony provider credentials and webhook
// settings. All fields empty disables the telephony surface; browser calls
// still work.
type TelephonyConfig struct {
	// AccountSID identifies the telephony account.
	AccountSID string `yaml:"account_sid"`

	// AuthToken authenticates API requests (TURN credential fetch).
	AuthToken string `yaml:"auth_token"`
}

// CalendarConfig selects and configures the booking calendar backend.
type CalendarConfig struct {
	// Provider is the backend name: "google" or "memory". Empty means
	// "memory" (bookings are lost on restart).
	Provider string `yaml:"provider"`

	// CredentialsFile is the path to the service-account credentials JSON.
	CredentialsFile string `yaml:"credentials_file"`

	// CalendarID is the calendar that receives viewing events.
	CalendarID string `yaml:"calendar_id"`

	// Timezone is the IANA zone viewing slots are offered in
	// (e.g., "America/Chicago").
	Timezone string `yaml:"timezone"`
}

// SearchConfig points at the apartment-search retrieval service.
type SearchConfig struct {
	// ServiceURL is the base URL of the search service. Empty disables
	// apartment search; the workflow's search tool will report an error.
	ServiceURL string `yaml:"service_url"`
}

// ListingsConfig holds settings for the local listings store used when the
// server indexes listings itself instead of calling a remote search service.
type ListingsConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the pgvector
	// listings store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector dimension of the embeddings column.
	// Must match the model configured in Providers.Embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// AdminConfig secures the operator surface.
type AdminConfig struct {
	// APIKey is the bearer token required on every admin request. Required
	// unless server.debug is set.
	APIKey string `yaml:"api_key"`
}

// WebRTCConfig holds NAT-traversal settings for browser calls.
type WebRTCConfig struct {
	// ICEServersFallback is served to browsers when fetching ephemeral TURN
	// credentials from the telephony provider fails or is not configured.
	ICEServersFallback []ICEServer `yaml:"ice_servers_fallback"`
}

// ICEServer is one STUN/TURN server entry in the shape browsers expect.
type ICEServer struct {
	URLs       []string `yaml:"urls" json:"urls"`
	Username   string   `yaml:"username,omitempty" json:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty" json:"credential,omitempty"`
}

// VoiceConfig seeds the live-adjustable voice settings ([Runtime]). Zero
// values fall back to the shipped defaults; BargeInEnabled is a pointer so
// "explicitly off" and "unset" stay distinguishable.
type VoiceConfig struct {
	BargeInEnabled         *bool   `yaml:"barge_in_enabled"`
	BargeInEnergyThreshold float64 `yaml:"barge_in_energy_threshold"`
	BargeInConfirmFrames   int     `yaml:"barge_in_confirm_frames"`
	VADEnergyThreshold     float64 `yaml:"vad_energy_threshold"`
	VADSpeechConfirmFrames int     `yaml:"vad_speech_confirm_frames"`
	VADSilenceGapFrames    int     `yaml:"vad_silence_gap_frames"`
	TTSVoice               string  `yaml:"tts_voice"`
	TTSEngine              string  `yaml:"tts_engine"`
}

// WorkflowsConfig locates the workflow definitions.
type WorkflowsConfig struct {
	// Dir is the directory holding *.jsonl workflow files. Empty means the
	// embedded default workflow only.
	Dir string `yaml:"dir"`
}
