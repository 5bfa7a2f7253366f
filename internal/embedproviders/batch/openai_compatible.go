package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ternarybob/quaero-index/internal/pipeline/errtype"
)

// OpenAICompatibleConfig configures a batch provider against an
// OpenAI-compatible `/v1/batches` surface (spec.md §4.7).
type OpenAICompatibleConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// OpenAICompatibleProvider submits and polls batches via go-openai's batch
// endpoints, the same client the realtime driver uses for its OpenAI-shaped
// provider.
type OpenAICompatibleProvider struct {
	name       string
	model      string
	dimensions int
	baseURL    string
	timeout    time.Duration
}

// NewOpenAICompatibleProvider builds a batch provider bound to name and cfg.
func NewOpenAICompatibleProvider(name string, cfg OpenAICompatibleConfig) *OpenAICompatibleProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompatibleProvider{
		name:       name,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
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

type embeddingRequestBody struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type manifestLine struct {
	CustomID string               `json:"custom_id"`
	Method   string               `json:"method"`
	URL      string               `json:"url"`
	Body     embeddingRequestBody `json:"body"`
}

// buildManifest returns the newline-delimited request manifest (spec.md
// §4.7 step 1): one line per item carrying custom_id and the embedding
// request body.
func (p *OpenAICompatibleProvider) buildManifest(items []RequestItem) ([]byte, error) {
	var buf bytes.Buffer
	for _, item := range items {
		line := manifestLine{
			CustomID: item.ID,
			Method:   http.MethodPost,
			URL:      "/v1/embeddings",
			Body: embeddingRequestBody{
				Model:      p.model,
				Input:      item.Content,
				Dimensions: p.dimensions,
			},
		}
		encoded, err := json.Marshal(line)
		if err != nil {
			return nil, fmt.Errorf("%s: encode manifest line for %s: %w", p.name, item.ID, err)
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Submit uploads the manifest and creates a batch job referencing it.
func (p *OpenAICompatibleProvider) Submit(ctx context.Context, items []RequestItem, apiKey string) (SubmitResult, error) {
	manifest, err := p.buildManifest(items)
	if err != nil {
		return SubmitResult{}, err
	}

	client := p.client(apiKey)

	file, err := client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    "batch-manifest.jsonl",
		Bytes:   manifest,
		Purpose: openai.PurposeBatch,
	})
	if err != nil {
		return SubmitResult{}, p.classify(err, "upload manifest")
	}

	created, err := client.CreateBatch(ctx, openai.CreateBatchRequest{
		InputFileID:      file.ID,
		Endpoint:         "/v1/embeddings",
		CompletionWindow: "24h",
	})
	if err != nil {
		return SubmitResult{}, p.classify(err, "create batch")
	}

	return SubmitResult{BatchID: created.ID}, nil
}

// Poll retrieves the current status of an in-flight batch.
func (p *OpenAICompatibleProvider) Poll(ctx context.Context, batchID, apiKey string) (PollResult, error) {
	b, err := p.client(apiKey).RetrieveBatch(ctx, batchID)
	if err != nil {
		return PollResult{}, p.classify(err, "retrieve batch")
	}

	result := PollResult{
		Status:       string(b.Status),
		OutputFileID: b.OutputFileID,
	}
	if b.RequestCounts != nil {
		result.Completed = b.RequestCounts.Completed
		result.Total = b.RequestCounts.Total
	}
	return result, nil
}

type resultLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		Body struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Download streams and parses the NDJSON result file (spec.md §4.7 step 4).
func (p *OpenAICompatibleProvider) Download(ctx context.Context, outputFileID, apiKey string) ([]EmbeddingResult, error) {
	content, err := p.client(apiKey).GetFileContent(ctx, outputFileID)
	if err != nil {
		return nil, p.classify(err, "download results")
	}

	var results []EmbeddingResult
	for _, raw := range bytes.Split(content, []byte("\n")) {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var line resultLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, fmt.Errorf("%s: decode result line: %w", p.name, err)
		}

		r := EmbeddingResult{ID: line.CustomID}
		switch {
		case line.Error != nil:
			r.Err = line.Error.Message
		case line.Response != nil && len(line.Response.Body.Data) > 0:
			r.Embedding = line.Response.Body.Data[0].Embedding
		default:
			r.Err = "empty response"
		}
		results = append(results, r)
	}
	return results, nil
}

func (p *OpenAICompatibleProvider) classify(err error, step string) error {
	wrapped := fmt.Errorf("%s: %s: %w", p.name, step, err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusPaymentRequired {
			return &errtype.Budget{Code: http.StatusPaymentRequired}
		}
		if errtype.IsRetryableStatus(apiErr.HTTPStatusCode) {
			return &errtype.Transient{StatusCode: apiErr.HTTPStatusCode, Err: wrapped}
		}
	}
	return wrapped
}
