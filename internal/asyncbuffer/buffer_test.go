package asyncbuffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/quaero-index/internal/models"
)

func mustItem(t *testing.T, content string) models.Item {
	t.Helper()
	item, ok := models.NewItem("foo/bar", content)
	require.True(t, ok)
	return item
}

func TestBuffer_PushPullRoundTrip(t *testing.T) {
	b := New(10, 2)
	b.Push(mustItem(t, "content one long enough to pass"))
	b.Push(mustItem(t, "content two long enough to pass"))

	batch := b.Pull()
	require.Len(t, batch, 2)
}

func TestBuffer_FinishDrainsRemainderThenNil(t *testing.T) {
	b := New(10, 5)
	b.Push(mustItem(t, "only one item before finish is called"))
	b.Finish()

	batch := b.Pull()
	assert.Len(t, batch, 1, "a partial batch must drain on finish even under batchSize")

	assert.Nil(t, b.Pull(), "pulling an already-drained, finished buffer returns nil")
}

func TestBuffer_FinishWakesBlockedConsumer(t *testing.T) {
	b := New(10, 5)

	var batch []models.Item
	done := make(chan struct{})
	go func() {
		batch = b.Pull()
		close(done)
	}()

	// Give the consumer time to block on an empty buffer.
	time.Sleep(20 * time.Millisecond)
	b.Finish()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pull did not wake up after Finish")
	}
	assert.Nil(t, batch)
}

func TestBuffer_PushBlocksAtCapacityUntilPulled(t *testing.T) {
	b := New(1, 1)
	b.Push(mustItem(t, "first item fills the buffer to capacity"))

	pushed := make(chan struct{})
	go func() {
		b.Push(mustItem(t, "second item waits for capacity to free up"))
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("push should have blocked while buffer was at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	b.Pull()

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after capacity freed")
	}
}

func TestBuffer_ConcurrentProducersConsumersNeverExceedTotal(t *testing.T) {
	b := New(20, 4)
	const totalItems = 200

	var wg sync.WaitGroup
	for i := 0; i < totalItems; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			b.Push(mustItem(t, "producer item number padded out long enough to pass minimum length "+string(rune('a'+n%26))))
		}(i)
	}

	consumed := 0
	var mu sync.Mutex
	consumerDone := make(chan struct{})
	go func() {
		for {
			batch := b.Pull()
			if batch == nil {
				close(consumerDone)
				return
			}
			mu.Lock()
			consumed += len(batch)
			mu.Unlock()
		}
	}()

	wg.Wait()
	b.Finish()

	select {
	case <-consumerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer never observed drain-to-nil")
	}

	assert.Equal(t, totalItems, consumed, "asyncbuffer never deduplicates; every pushed item must be observed exactly once")
}
