package models

import "github.com/google/uuid"

// VectorPoint is the point stored in the external vector database for one
// embedded item. Full content is never stored here — only enough payload to
// map back to the source repo and detect content changes by hash.
type VectorPoint struct {
	ID      uuid.UUID
	Vector  []float32
	Payload VectorPayload
}

// VectorPayload is the point payload; deliberately narrow per spec.md §4.9.
type VectorPayload struct {
	RepoName    string `json:"repo_name"`
	ContentHash string `json:"content_hash"`
}
