package realtime

import "github.com/ternarybob/quaero-index/internal/models"

// subBatch is a contiguous run of items sent together as one provider
// request, its texts pre-extracted (and truncated) in item order.
type subBatch struct {
	items []models.Item
	texts []string
}

func (s subBatch) charCount() int {
	total := 0
	for _, t := range s.texts {
		total += len(t)
	}
	return total
}

// packSubBatches packs items into sub-batches respecting BOTH maxItems and
// maxChars (spec.md §4.6): whichever limit fires first ends the sub-batch.
// A single item whose truncated content alone exceeds maxChars is still
// emitted alone rather than dropped.
func packSubBatches(items []models.Item, maxItems, maxChars, maxContentLen int) []subBatch {
	if maxItems <= 0 {
		maxItems = 64
	}
	if maxChars <= 0 {
		maxChars = 120000
	}

	var batches []subBatch
	var current subBatch

	for _, item := range items {
		text := item.Content
		if maxContentLen > 0 {
			text = models.Truncate(text, maxContentLen)
		}

		wouldOverflowChars := len(current.texts) > 0 && current.charCount()+len(text) > maxChars
		wouldOverflowCount := len(current.items) >= maxItems
		if wouldOverflowChars || wouldOverflowCount {
			batches = append(batches, current)
			current = subBatch{}
		}

		current.items = append(current.items, item)
		current.texts = append(current.texts, text)
	}

	if len(current.items) > 0 {
		batches = append(batches, current)
	}
	return batches
}
