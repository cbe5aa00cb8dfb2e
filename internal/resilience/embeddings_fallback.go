package resilience

import (
	"context"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/embeddings"
)

// EmbeddingsFallback implements [embeddings.Provider] with automatic
// failover across multiple embedding backends.
//
// All entries must use the same model and vector space: mixing embeddings
// from different models in one similarity computation produces garbage
// rankings, so failover here only makes sense between replicas of the same
// model (a local instance and a hosted one, say).
type EmbeddingsFallback struct {
	group *FallbackGroup[embeddings.Provider]
}

var _ embeddings.Provider = (*EmbeddingsFallback)(nil)

// NewEmbeddingsFallback creates an [EmbeddingsFallback] with primary as the
// preferred backend.
func NewEmbeddingsFallback(primary embeddings.Provider, primaryName string, cfg FallbackConfig) *EmbeddingsFallback {
	return &EmbeddingsFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional embeddings provider as a fallback.
func (f *EmbeddingsFallback) AddFallback(name string, provider embeddings.Provider) {
	f.group.AddFallback(name, provider)
}

// Embed computes the embedding with the first healthy provider.
func (f *EmbeddingsFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	return ExecuteWithResult(f.group, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

// EmbedBatch computes the batch with the first healthy provider.
func (f *EmbeddingsFallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return ExecuteWithResult(f.group, func(p embeddings.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the primary's vector length. This does not participate
// in failover because all entries must share a model anyway.
func (f *EmbeddingsFallback) Dimensions() int {
	return f.group.entries[0].value.Dimensions()
}

// ModelID returns the primary's model identifier.
func (f *EmbeddingsFallback) ModelID() string {
	return f.group.entries[0].value.ModelID()
}
