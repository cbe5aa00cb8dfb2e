// Package openai provides an embeddings.Provider backed by the OpenAI
// embeddings API. It powers semantic search over apartment listings; the
// vector length reported by Dimensions must match the listings store's
// column width.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// DefaultModel is used when no model is configured.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// Provider calls the OpenAI embeddings endpoint.
type Provider struct {
	client oai.Client
	model  string
}

// Option configures a [Provider].
type Option func(*settings)

type settings struct {
	reqOpts []option.RequestOption
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.reqOpts = append(s.reqOpts, option.WithBaseURL(url))
	}
}

// WithOrganization attaches an organization ID to every request.
func WithOrganization(org string) Option {
	return func(s *settings) {
		s.reqOpts = append(s.reqOpts, option.WithOrganization(org))
	}
}

// WithTimeout bounds each embedding request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.reqOpts = append(s.reqOpts, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// New creates an OpenAI embeddings provider. An empty model selects
// [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embeddings openai: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	s := settings{reqOpts: []option.RequestOption{option.WithAPIKey(apiKey)}}
	for _, o := range opts {
		o(&s)
	}
	return &Provider{client: oai.NewClient(s.reqOpts...), model: model}, nil
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings openai: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings openai: no embedding in response")
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

// EmbedBatch implements embeddings.Provider. Results are returned in input
// order regardless of the order the API reports them in.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings openai: embed batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings openai: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, e := range resp.Data {
		if e.Index < 0 || int(e.Index) >= len(texts) {
			return nil, fmt.Errorf("embeddings openai: embedding index %d out of range", e.Index)
		}
		out[e.Index] = toFloat32(e.Embedding)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return dimensionsFor(p.model) }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.model }

// dimensionsFor maps known OpenAI embedding models to their native vector
// width. Unknown models fall back to 1536, the width shared by ada-002 and
// 3-small.
func dimensionsFor(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "text-embedding-3-large"):
		return 3072
	case strings.Contains(m, "text-embedding-3-small"),
		strings.Contains(m, "text-embedding-ada-002"):
		return 1536
	default:
		return 1536
	}
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
