// Package asyncbuffer implements a bounded producer/consumer queue with
// backpressure between the item loader and the embed drivers, so a slow
// embedding backend cannot let the file reader run the process out of
// memory.
package asyncbuffer

import (
	"sync"

	"github.com/ternarybob/quaero-index/internal/models"
)

// Buffer is a bounded FIFO of models.Item accepting pushes up to maxSize,
// and serving pulls of up to batchSize items at a time. Once Finish is
// called, no further pushes are accepted and blocked/future pulls drain
// whatever remains before returning nil.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	items     []models.Item
	maxSize   int
	batchSize int
	done      bool
}

// New builds a buffer with the given capacity and the batch size Pull
// waits to accumulate before returning.
func New(maxSize, batchSize int) *Buffer {
	b := &Buffer{maxSize: maxSize, batchSize: batchSize}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push adds one item, blocking while the buffer is at capacity. Pushing
// after Finish is a programming error and is ignored rather than panicking,
// since a producer racing its own finish signal is expected at shutdown.
func (b *Buffer) Push(item models.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) >= b.maxSize && !b.done {
		b.cond.Wait()
	}
	if b.done {
		return
	}

	b.items = append(b.items, item)
	b.cond.Broadcast()
}

// Pull blocks until at least batchSize items are available or the buffer
// has been finished, then returns up to batchSize items. After Finish,
// once the buffer has fully drained, Pull returns a nil, empty batch to
// signal termination to the caller.
func (b *Buffer) Pull() []models.Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) < b.batchSize && !b.done {
		b.cond.Wait()
	}

	if len(b.items) == 0 {
		return nil
	}

	n := b.batchSize
	if n > len(b.items) {
		n = len(b.items)
	}
	batch := make([]models.Item, n)
	copy(batch, b.items[:n])
	b.items = b.items[n:]

	b.cond.Broadcast() // wake any producer blocked on capacity
	return batch
}

// Finish flips the buffer into draining mode: no further pushes are
// accepted, and every blocked consumer wakes to observe whatever remains
// (or nil, once fully drained).
func (b *Buffer) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.done = true
	b.cond.Broadcast()
}

// Len reports the number of items currently buffered (for diagnostics).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
