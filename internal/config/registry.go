package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/embeddings"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/llm"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/stt"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// Registry maps provider names to constructors for each provider kind. Safe
// for concurrent use; registration normally happens once at startup.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]Factory[llm.Provider]
	stt        map[string]Factory[stt.Provider]
	tts        map[string]Factory[tts.Provider]
	embeddings map[string]Factory[embeddings.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        map[string]Factory[llm.Provider]{},
		stt:        map[string]Factory[stt.Provider]{},
		tts:        map[string]Factory[tts.Provider]{},
		embeddings: map[string]Factory[embeddings.Provider]{},
	}
}

// create resolves entry.Name in m and runs the factory. kind is only used
// in the not-registered error.
func create[T any](r *Registry, m map[string]Factory[T], kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

// RegisterLLM registers an LLM provider factory under name. Re-registering a
// name overwrites the previous factory.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory Factory[embeddings.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateLLM instantiates the LLM provider named by entry.Name. Returns
// [ErrProviderNotRegistered] when the name is unknown.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateSTT instantiates the STT provider named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(r, r.stt, "stt", entry)
}

// CreateTTS instantiates the TTS provider named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry)
}

// CreateEmbeddings instantiates the embeddings provider named by entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return create(r, r.embeddings, "embeddings", entry)
}
