package embedproviders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/quaero-index/internal/pipeline/errtype"
)

func TestKeyRotator_RoundRobins(t *testing.T) {
	r := NewKeyRotator([]string{"a", "b", "c"})
	got := []string{r.Next(), r.Next(), r.Next(), r.Next()}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestKeyRotator_EmptyReturnsBlank(t *testing.T) {
	r := NewKeyRotator(nil)
	assert.Equal(t, "", r.Next())
}

func TestKeyRotator_ConcurrentNextNeverRepeatsWithinOneCycle(t *testing.T) {
	r := NewKeyRotator([]string{"a", "b", "c", "d"})
	var wg sync.WaitGroup
	seen := make(chan string, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- r.Next()
		}()
	}
	wg.Wait()
	close(seen)

	counts := map[string]int{}
	for k := range seen {
		counts[k]++
	}
	assert.Len(t, counts, 4, "four concurrent calls over four keys must hit each key exactly once")
}

func TestDeepInfraProvider_EmbedRealtimeParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		resp := deepInfraResponse{
			Embeddings:  [][]float32{{0.1, 0.2}, {0.3, 0.4}},
			InputTokens: 42,
		}
		resp.InferenceStatus.Cost = 0.0007
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewDeepInfraProvider(DeepInfraConfig{BaseURL: server.URL, Model: "some/model", Dimensions: 2})
	result, err := p.EmbedRealtime(context.Background(), []string{"a", "b"}, "test-key")
	require.NoError(t, err)
	assert.Len(t, result.Embeddings, 2)
	assert.Equal(t, 42, result.Tokens)
	assert.InDelta(t, 0.0007, result.CostUSD, 1e-9)
}

func TestDeepInfraProvider_RetryableStatusIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewDeepInfraProvider(DeepInfraConfig{BaseURL: server.URL, Model: "some/model"})
	_, err := p.EmbedRealtime(context.Background(), []string{"a"}, "key")
	require.Error(t, err)
	var transient *errtype.Transient
	assert.ErrorAs(t, err, &transient)
}
