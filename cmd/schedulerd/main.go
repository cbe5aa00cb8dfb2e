// Command schedulerd is the apartment-viewing voice scheduler server. It
// answers phone calls over Twilio Media Streams and browser calls over
// WebRTC, drives each caller through the viewing workflow, and exposes the
// operator API for live tuning and debugging.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/admin"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/config"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/debugbus"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/gateway"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/health"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/listings"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/observe"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/resilience"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/session"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/tools"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/workflow"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/calendar"
	calgoogle "github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/calendar/google"
	calmemory "github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/calendar/memory"
	webrtcchan "github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel/webrtc"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/embeddings"
	oaembed "github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/embeddings/openai"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/llm"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/llm/anyllm"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/stt"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/stt/whisper"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/tts"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/tts/coqui"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/search"
)

// version is stamped by the build via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "schedulerd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "schedulerd: %v\n", err)
		}
		return 1
	}

	// The level var lets the watcher raise or lower verbosity without a
	// restart.
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("schedulerd starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"debug", cfg.Server.Debug,
	)

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voice-scheduler",
		ServiceVersion: version,
	})
	if err != nil {
		logger.Error("metrics init failed", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg, logger)
	if err != nil {
		logger.Error("failed to build providers", "err", err)
		return 1
	}

	cal, err := buildCalendar(ctx, cfg)
	if err != nil {
		logger.Error("failed to build calendar", "err", err)
		return 1
	}

	searcher, closeSearch, err := buildSearcher(ctx, cfg, providers.Embeddings, logger)
	if err != nil {
		logger.Error("failed to build listing search", "err", err)
		return 1
	}
	if closeSearch != nil {
		defer closeSearch()
	}

	toolReg, err := buildTools(cfg, cal, searcher)
	if err != nil {
		logger.Error("failed to build tools", "err", err)
		return 1
	}

	workflows, err := workflow.NewRegistry(cfg.Workflows.Dir)
	if err != nil {
		logger.Error("failed to load workflows", "err", err)
		return 1
	}
	logger.Info("workflows loaded", "ids", workflows.IDs())

	sessions := session.NewRegistry()
	buses := debugbus.NewRegistry()
	runtime := config.NewRuntime(cfg)

	turnClient := gateway.NewTURNClient(cfg.Telephony.AccountSID, cfg.Telephony.AuthToken, logger)
	if turnClient == nil {
		logger.Info("telephony credentials not configured, TURN fetch disabled")
	}

	gw := gateway.New(gateway.Config{
		Runtime:          runtime,
		Workflows:        workflows,
		Sessions:         sessions,
		Buses:            buses,
		Tools:            toolReg,
		LLM:              providers.LLM,
		STT:              providers.STT,
		TTS:              providers.TTS,
		TTSEngines:       providers.TTSEngines,
		TURN:             turnClient,
		ICEFallback:      cfg.WebRTC.ICEServersFallback,
		PublicHost:       cfg.Server.PublicHost,
		Debug:            cfg.Server.Debug,
		NewPeerTransport: peerTransportFactory(cfg.WebRTC.ICEServersFallback),
		Metrics:          metrics,
		Logger:           logger,
	})

	adm := admin.New(admin.Config{
		Auth:      admin.NewAuth(cfg.Admin.APIKey, cfg.Server.Debug),
		Settings:  runtime,
		Sessions:  sessions,
		Workflows: workflows,
		Buses:     buses,
		Logger:    logger,
	})

	checks := []health.Checker{
		{Name: "tts", Check: func(ctx context.Context) error {
			_, err := providers.TTS.Voices(ctx)
			return err
		}},
	}
	healthH := health.New(checks...)

	mux := http.NewServeMux()
	healthH.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	gw.Register(mux)
	adm.Register(mux)
	handler := observe.Middleware(metrics)(mux)

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if !d.Changed() {
			return
		}
		if d.LogLevelChanged {
			levelVar.Set(slogLevel(d.NewLogLevel))
			logger.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.VoiceChanged {
			runtime.Reseed(new)
			logger.Info("voice settings reloaded from config file")
		}
		if d.AdminKeyChanged {
			logger.Warn("admin API key changed in config file; restart to apply")
		}
		if d.SearchURLChanged {
			logger.Warn("search service URL changed in config file; restart to apply")
		}
	})
	if err != nil {
		logger.Error("config watcher failed", "err", err)
		return 1
	}
	defer watcher.Stop()

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("listen failed", "addr", addr, "err", err)
		return 1
	}
	if cfg.Server.TLS != nil {
		cert, err := tls.LoadX509KeyPair(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		if err != nil {
			logger.Error("loading TLS key pair failed", "err", err)
			return 1
		}
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}})
		logger.Info("TLS enabled", "cert", cfg.Server.TLS.CertFile)
	}

	logger.Info("server ready", "addr", ln.Addr().String(), "public_host", cfg.Server.PublicHost)
	if err := gw.Run(ctx, ln, handler); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "err", err)
		return 1
	}
	logger.Info("goodbye")
	return 0
}

// providerSet holds the instantiated pipeline providers, each wrapped in a
// circuit breaker so a wedged backend cannot stall every call.
type providerSet struct {
	LLM        llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider

	// TTSEngines maps engine names to synthesizers for the tts_engine
	// runtime setting.
	TTSEngines map[string]tts.Provider
}

// registerBuiltinProviders wires the shipped provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// Hosted LLM backends share the pattern: optional APIKey + BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; BaseURL is the address, no API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
}

// buildProviders instantiates the providers named in cfg and wraps each in a
// single-entry fallback group for circuit-breaker protection.
func buildProviders(cfg *config.Config, reg *config.Registry, log *slog.Logger) (*providerSet, error) {
	ps := &providerSet{}
	fbCfg := func(kind string) resilience.FallbackConfig {
		return resilience.FallbackConfig{Kind: kind, Logger: log}
	}

	llmP, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM = resilience.NewLLMFallback(llmP, cfg.Providers.LLM.Name, fbCfg("llm"))
	log.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	sttP, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.STT = resilience.NewSTTFallback(sttP, cfg.Providers.STT.Name, fbCfg("stt"))
	log.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	ttsP, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTS = resilience.NewTTSFallback(ttsP, cfg.Providers.TTS.Name, fbCfg("tts"))
	ps.TTSEngines = map[string]tts.Provider{cfg.Providers.TTS.Name: ps.TTS}
	log.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	// Embeddings are only needed when the server hosts its own listings
	// index, so the entry is optional.
	if name := cfg.Providers.Embeddings.Name; name != "" {
		embP, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = resilience.NewEmbeddingsFallback(embP, name, fbCfg("embeddings"))
		log.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model)
	}

	return ps, nil
}

// peerTransportFactory returns a factory producing pion-backed peer
// transports using the configured fallback ICE servers. TURN credentials
// fetched per call are handed to the browser over signaling, not to the
// server-side peer connection.
func peerTransportFactory(ice []config.ICEServer) func() (webrtcchan.PeerTransport, error) {
	servers := make([]webrtcchan.ICEServer, 0, len(ice))
	for _, s := range ice {
		servers = append(servers, webrtcchan.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return func() (webrtcchan.PeerTransport, error) {
		return webrtcchan.NewPionTransport(servers)
	}
}

// buildCalendar constructs the booking calendar backend.
func buildCalendar(ctx context.Context, cfg *config.Config) (calendar.Provider, error) {
	switch cfg.Calendar.Provider {
	case "", "memory":
		return calmemory.New(), nil
	case "google":
		return calgoogle.New(ctx, cfg.Calendar.CredentialsFile)
	default:
		return nil, fmt.Errorf("calendar provider %q is not supported", cfg.Calendar.Provider)
	}
}

// buildSearcher picks the listing search backend: a remote search service
// when one is configured, otherwise the local pgvector store when a DSN and
// an embeddings provider are available. Returns a nil Searcher when neither
// is configured; the search tool is then not registered.
func buildSearcher(ctx context.Context, cfg *config.Config, embedder embeddings.Provider, log *slog.Logger) (search.Searcher, func(), error) {
	if url := cfg.Search.ServiceURL; url != "" {
		c, err := search.NewClient(url)
		if err != nil {
			return nil, nil, fmt.Errorf("search client: %w", err)
		}
		log.Info("listing search via remote service", "url", url)
		return c, nil, nil
	}

	if dsn := cfg.Listings.PostgresDSN; dsn != "" {
		if embedder == nil {
			return nil, nil, errors.New("listings.postgres_dsn is set but no embeddings provider is configured")
		}
		store, err := listings.NewStore(ctx, dsn, embedder)
		if err != nil {
			return nil, nil, fmt.Errorf("listings store: %w", err)
		}
		log.Info("listing search via local store", "dimensions", embedder.Dimensions())
		return store, store.Close, nil
	}

	log.Warn("no search service or listings store configured; apartment search disabled")
	return nil, nil, nil
}

// buildTools registers the workflow tools against the calendar and searcher.
func buildTools(cfg *config.Config, cal calendar.Provider, searcher search.Searcher) (*tools.Registry, error) {
	loc := time.Local
	if tz := cfg.Calendar.Timezone; tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("calendar timezone %q: %w", tz, err)
		}
	}

	reg := tools.NewRegistry()
	if searcher != nil {
		reg.Register(tools.NewApartmentSearch(searcher, 3))
	}
	reg.Register(tools.NewCheckAvailability(cal, cfg.Calendar.CalendarID, loc))
	reg.Register(tools.NewCreateBooking(cal, cfg.Calendar.CalendarID, loc))
	return reg, nil
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string from a provider Options map. Returns "" if the
// map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
