// Package embedproviders defines the uniform embedding-provider contract
// shared by the realtime and batch drivers, and the two concrete provider
// shapes observed in practice: an OpenAI-compatible endpoint and a
// DeepInfra-shaped endpoint.
package embedproviders

import (
	"context"
	"sync/atomic"
)

// EmbedResult is the uniform response shape both driver kinds consume,
// regardless of which concrete provider produced it.
type EmbedResult struct {
	Embeddings [][]float32
	Tokens     int
	CostUSD    float64
}

// RealtimeProvider embeds a batch of texts synchronously.
type RealtimeProvider interface {
	Name() string
	EmbedRealtime(ctx context.Context, texts []string, apiKey string) (EmbedResult, error)
}

// KeyRotator round-robins across N configured API keys, one per request,
// per spec.md §4.6's multi-key support.
type KeyRotator struct {
	keys    []string
	counter atomic.Uint64
}

// NewKeyRotator builds a rotator over the given keys. A single-key (or
// empty) rotator always returns the same value.
func NewKeyRotator(keys []string) *KeyRotator {
	return &KeyRotator{keys: keys}
}

// Next returns the next key in round-robin order, or "" if no keys were
// configured (the caller falls back to an unauthenticated request or an
// environment-default key baked into the provider).
func (r *KeyRotator) Next() string {
	if len(r.keys) == 0 {
		return ""
	}
	n := r.counter.Add(1) - 1
	return r.keys[n%uint64(len(r.keys))]
}
