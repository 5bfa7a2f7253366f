package embedproviders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/quaero-index/internal/pipeline/errtype"
)

// DeepInfraConfig configures the DeepInfra-shaped provider: request body
// `{inputs, normalize, dimensions}`, response `{embeddings, input_tokens,
// inference_status:{cost}}` (spec.md §6).
type DeepInfraConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

type deepInfraRequest struct {
	Inputs     []string `json:"inputs"`
	Normalize  bool     `json:"normalize"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type deepInfraResponse struct {
	Embeddings      [][]float32 `json:"embeddings"`
	InputTokens     int         `json:"input_tokens"`
	InferenceStatus struct {
		Cost float64 `json:"cost"`
	} `json:"inference_status"`
}

// DeepInfraProvider speaks DeepInfra's embeddings wire format directly,
// since it diverges from the OpenAI shape enough that go-openai's client
// cannot be reused for it.
type DeepInfraProvider struct {
	model   string
	dims    int
	baseURL string
	client  *http.Client
}

// NewDeepInfraProvider builds a provider bound to the given configuration.
func NewDeepInfraProvider(cfg DeepInfraConfig) *DeepInfraProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &DeepInfraProvider{
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *DeepInfraProvider) Name() string { return "deepinfra" }

// EmbedRealtime embeds texts against DeepInfra's model inference endpoint.
func (p *DeepInfraProvider) EmbedRealtime(ctx context.Context, texts []string, apiKey string) (EmbedResult, error) {
	if len(texts) == 0 {
		return EmbedResult{}, nil
	}

	body, err := json.Marshal(deepInfraRequest{Inputs: texts, Normalize: false, Dimensions: p.dims})
	if err != nil {
		return EmbedResult{}, fmt.Errorf("deepinfra: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return EmbedResult{}, fmt.Errorf("deepinfra: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return EmbedResult{}, fmt.Errorf("deepinfra: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return EmbedResult{}, fmt.Errorf("deepinfra: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("deepinfra: status %d: %s", resp.StatusCode, string(respBody))
		if errtype.IsRetryableStatus(resp.StatusCode) {
			return EmbedResult{}, &errtype.Transient{StatusCode: resp.StatusCode, Err: err}
		}
		return EmbedResult{}, &errtype.Permanent{Status: fmt.Sprintf("%d", resp.StatusCode), Err: err}
	}

	var parsed deepInfraResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return EmbedResult{}, fmt.Errorf("deepinfra: decode response: %w", err)
	}

	return EmbedResult{
		Embeddings: parsed.Embeddings,
		Tokens:     parsed.InputTokens,
		CostUSD:    parsed.InferenceStatus.Cost,
	}, nil
}
