package models

import "time"

// BatchItemMeta is the crash-recoverable metadata stored for each item in a
// submitted batch. Content is intentionally not persisted (size); only
// enough is kept to re-derive vector payloads after the batch completes.
type BatchItemMeta struct {
	ID          string `json:"id"`
	Repo        string `json:"repo"`
	ContentHash string `json:"content_hash"`
}

// BatchRecord is the durable state kept for one submitted async-embedding
// batch, keyed by the provider's opaque batch ID.
type BatchRecord struct {
	BatchID   string          `json:"batch_id"`
	Items     []BatchItemMeta `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

// SmallBatchThreshold is the item count below which a batch is retained or
// deleted purely by size, regardless of success rate (spec.md §3, §4.7).
const SmallBatchThreshold = 50

// SuccessRateThreshold is the minimum success rate at or above which a
// completed batch's state entry is deleted rather than retained for
// operator investigation.
const SuccessRateThreshold = 0.99

// ShouldRetain applies the state-retention rule: keep the batch-state entry
// unless the batch is small or met the success threshold.
func ShouldRetain(totalItems, succeeded int) bool {
	if totalItems < SmallBatchThreshold {
		return false
	}
	if totalItems == 0 {
		return false
	}
	rate := float64(succeeded) / float64(totalItems)
	return rate < SuccessRateThreshold
}

// BatchStatus mirrors the provider's observed batch lifecycle state.
type BatchStatus string

const (
	BatchValidating BatchStatus = "validating"
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchExpired    BatchStatus = "expired"
	BatchCancelled  BatchStatus = "cancelled"
)

// IsTerminal reports whether a batch status will never transition further.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchCompleted, BatchFailed, BatchExpired, BatchCancelled:
		return true
	default:
		return false
	}
}

// IsTerminalFailure reports a terminal state that is not success.
func (s BatchStatus) IsTerminalFailure() bool {
	switch s {
	case BatchFailed, BatchExpired, BatchCancelled:
		return true
	default:
		return false
	}
}
