package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/observe"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or
// has an open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the per-entry breaker configuration. The Name field
	// is overwritten with each entry's own name.
	CircuitBreaker CircuitBreakerConfig

	// Kind labels the provider category ("llm", "stt", "tts", "embeddings")
	// on request metrics. Empty disables metric recording.
	Kind string

	// Logger receives failover log lines. Default: slog.Default().
	Logger *slog.Logger
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same provider type. When the primary fails (or its circuit breaker is
// open), the next healthy fallback is tried in registration order.
//
// The entry list is fixed once call handling starts; AddFallback is not safe
// to race with Execute.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
	log     *slog.Logger
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first
// entry. Additional fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cbCfg := cfg.CircuitBreaker
	cbCfg.Name = primaryName
	if cbCfg.Logger == nil {
		cbCfg.Logger = cfg.Logger
	}
	return &FallbackGroup[T]{
		entries: []fallbackEntry[T]{
			{
				name:    primaryName,
				value:   primary,
				breaker: NewCircuitBreaker(cbCfg),
			},
		},
		cfg: cfg,
		log: cfg.Logger,
	}
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order
// they are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	if cbCfg.Logger == nil {
		cbCfg.Logger = fg.log
	}
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Execute tries fn against each entry in order until one succeeds.
// Circuit-breaker-open entries are skipped. Returns [ErrAllFailed] wrapped
// with the last error if every entry fails.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	var lastErr error
	for i := range fg.entries {
		entry := &fg.entries[i]
		err := entry.breaker.Execute(func() error {
			return fn(entry.value)
		})
		fg.recordAttempt(entry.name, err)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			fg.log.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			fg.log.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// recordAttempt counts one provider attempt when the group carries a kind
// label. Circuit-open rejections are not counted as requests.
func (fg *FallbackGroup[T]) recordAttempt(name string, err error) {
	if fg.cfg.Kind == "" || errors.Is(err, ErrCircuitOpen) {
		return
	}
	m := observe.DefaultMetrics()
	ctx := context.Background()
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, name, fg.cfg.Kind)
	}
	m.RecordProviderRequest(ctx, name, fg.cfg.Kind, status)
}

// ExecuteWithResult tries fn against each entry in the group until one
// succeeds, returning both the result value and error. This is a
// package-level function because Go does not support method-level type
// parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		fg.recordAttempt(entry.name, err)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			fg.log.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			fg.log.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
