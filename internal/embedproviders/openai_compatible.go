package embedproviders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ternarybob/quaero-index/internal/pipeline/errtype"
)

// OpenAICompatibleConfig configures a provider that speaks the OpenAI
// embeddings wire format against a compatible base URL (Nebius, or any
// other OpenAI-compatible host).
type OpenAICompatibleConfig struct {
	BaseURL         string
	Model           string
	Dimensions      int
	Timeout         time.Duration
	PricePerMTokens float64
}

// OpenAICompatibleProvider wraps go-openai's client for providers that
// implement the standard `{model, input, dimensions}` embeddings request.
type OpenAICompatibleProvider struct {
	name       string
	model      string
	dimensions int
	pricePerM  float64
	baseURL    string
	timeout    time.Duration
}

// NewOpenAICompatibleProvider builds a provider bound to name (used for
// logging and the progress surface) and the given configuration.
func NewOpenAICompatibleProvider(name string, cfg OpenAICompatibleConfig) *OpenAICompatibleProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompatibleProvider{
		name:       name,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		pricePerM:  cfg.PricePerMTokens,
		baseURL:    cfg.BaseURL,
		timeout:    timeout,
	}
}

func (p *OpenAICompatibleProvider) Name() string { return p.name }

func (p *OpenAICompatibleProvider) client(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = p.baseURL
	cfg.HTTPClient = &http.Client{Timeout: p.timeout}
	return openai.NewClientWithConfig(cfg)
}

// EmbedRealtime embeds texts against the configured OpenAI-compatible
// endpoint, estimating cost from the provider's reported prompt token usage.
func (p *OpenAICompatibleProvider) EmbedRealtime(ctx context.Context, texts []string, apiKey string) (EmbedResult, error) {
	if len(texts) == 0 {
		return EmbedResult{}, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}
	if p.dimensions > 0 {
		req.Dimensions = p.dimensions
	}

	resp, err := p.client(apiKey).CreateEmbeddings(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && errtype.IsRetryableStatus(apiErr.HTTPStatusCode) {
			return EmbedResult{}, &errtype.Transient{StatusCode: apiErr.HTTPStatusCode, Err: err}
		}
		return EmbedResult{}, fmt.Errorf("%s: create embeddings: %w", p.name, err)
	}
	if len(resp.Data) != len(texts) {
		return EmbedResult{}, fmt.Errorf("%s: expected %d embeddings, got %d", p.name, len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(resp.Data))
	for _, row := range resp.Data {
		vec := make([]float32, len(row.Embedding))
		for j, v := range row.Embedding {
			vec[j] = float32(v)
		}
		embeddings[row.Index] = vec
	}

	cost := float64(resp.Usage.PromptTokens) / 1_000_000 * p.pricePerM
	return EmbedResult{Embeddings: embeddings, Tokens: resp.Usage.PromptTokens, CostUSD: cost}, nil
}
