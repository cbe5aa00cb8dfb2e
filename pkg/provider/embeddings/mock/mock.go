// Package mock provides a canned embeddings.Provider for tests.
//
// The zero value is usable: Embed returns an empty vector and EmbedBatch
// returns one nil vector per input. Set the result fields to control what
// callers receive and inspect the recorded calls afterwards.
package mock

import (
	"context"
	"sync"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// EmbedCall records one Embed invocation.
type EmbedCall struct {
	Text string
}

// EmbedBatchCall records one EmbedBatch invocation. Texts is a copy.
type EmbedBatchCall struct {
	Texts []string
}

// Provider is a configurable embeddings.Provider double. Safe for
// concurrent use.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is returned from every Embed call.
	EmbedResult []float32
	// EmbedErr, when set, fails Embed.
	EmbedErr error

	// EmbedBatchResult is returned from every EmbedBatch call. When nil,
	// EmbedBatch returns len(texts) nil vectors.
	EmbedBatchResult [][]float32
	// EmbedBatchErr, when set, fails EmbedBatch.
	EmbedBatchErr error

	// DimensionsValue and ModelIDValue back the static metadata methods.
	DimensionsValue int
	ModelIDValue    string

	EmbedCalls      []EmbedCall
	EmbedBatchCalls []EmbedBatchCall
}

// Embed records the call and returns the configured result.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Text: text})
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return p.EmbedResult, nil
}

// EmbedBatch records the call and returns the configured result.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Texts: cp})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	return make([][]float32, len(texts)), nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string { return p.ModelIDValue }

// Calls returns how many Embed calls were recorded.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedCalls)
}

// Reset clears the recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
}
