package batch

import (
	"context"
)

// RequestItem is one item submitted in a batch manifest.
type RequestItem struct {
	ID      string
	Content string
}

// SubmitResult is returned once a chunk's manifest has been uploaded and a
// batch job created for it.
type SubmitResult struct {
	BatchID string
}

// PollResult is the provider's reported status for one in-flight batch.
type PollResult struct {
	Status       string // "validating", "in_progress", "completed", "failed", "expired", "cancelled"
	Completed    int
	Total        int
	OutputFileID string
	BudgetCode   int // non-zero (402) when the provider reports budget exhaustion
}

// EmbeddingResult is one parsed line of a downloaded batch result file.
type EmbeddingResult struct {
	ID        string
	Embedding []float32
	Err       string
}

// Provider speaks one vendor's asynchronous batch-embedding endpoint:
// upload manifest + create job, poll status, download results.
type Provider interface {
	Name() string
	Submit(ctx context.Context, items []RequestItem, apiKey string) (SubmitResult, error)
	Poll(ctx context.Context, batchID, apiKey string) (PollResult, error)
	Download(ctx context.Context, outputFileID, apiKey string) ([]EmbeddingResult, error)
}
