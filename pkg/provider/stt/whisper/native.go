// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/audio"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared across all calls; each Transcribe gets a fresh
// whisper context, so concurrent calls are safe.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	closeMu  sync.Mutex
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *NativeProvider) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.model != nil {
		err := p.model.Close()
		p.model = nil
		return err
	}
	return nil
}

// Transcribe converts the PCM to float32 samples, runs whisper.cpp inference
// using a fresh context, and derives the confidence signals from per-token
// probabilities.
func (p *NativeProvider) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	// whisper.cpp expects 16 kHz input.
	if sampleRate != audio.SampleRate {
		pcm = audio.ResampleMono16(pcm, sampleRate, audio.SampleRate)
	}
	samples := pcmToFloat32(pcm)

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts      []string
		logProbSum float64
		tokenCount int
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range segment.Tokens {
			if tok.P > 0 {
				logProbSum += math.Log(float64(tok.P))
				tokenCount++
			}
		}
	}

	result := stt.Result{Text: strings.Join(parts, " ")}
	if tokenCount > 0 {
		result.AvgLogProb = logProbSum / float64(tokenCount)
		// The bindings do not surface the model's no-speech probability, so
		// derive a proxy from decode confidence.
		result.NoSpeechProb = 1 - math.Exp(result.AvgLogProb)
	}
	if result.Text == "" {
		result.NoSpeechProb = 1
	}
	return result, nil
}
