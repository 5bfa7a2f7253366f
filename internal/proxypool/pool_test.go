package proxypool

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_SelectEmptyIsNil(t *testing.T) {
	p := NewPool(1000, 15000)
	assert.Nil(t, p.Select())
	assert.Equal(t, 0, p.Len())
}

func TestPool_SelectSingleProxy(t *testing.T) {
	p := NewPool(1000, 15000)
	proxy := &Proxy{Host: "10.0.0.1", Port: "8080"}
	p.Add(proxy)

	got := p.Select()
	require.NotNil(t, got)
	assert.Equal(t, proxy, got)
}

func TestPool_SelectFavorsLowerEMA(t *testing.T) {
	p := NewPool(1000, 15000)
	fast := &Proxy{Host: "fast", Port: "1"}
	slow := &Proxy{Host: "slow", Port: "2"}
	p.Add(fast)
	p.Add(slow)

	fast.setEMA(10)
	slow.setEMA(50000)

	fastWins := 0
	for i := 0; i < 200; i++ {
		if p.Select() == fast {
			fastWins++
		}
	}

	assert.Greater(t, fastWins, 150, "power-of-two-choices should favor the lower-EMA proxy")
}

func TestProxy_ObserveSuccessConvergesToward(t *testing.T) {
	proxy := &Proxy{Host: "h", Port: "1"}
	proxy.setEMA(1000)

	for i := 0; i < 50; i++ {
		proxy.ObserveSuccess(200)
	}

	assert.InDelta(t, 200, proxy.ema(), 5)
}

func TestPool_ObserveFailureNeverRemoves(t *testing.T) {
	p := NewPool(1000, 15000)
	proxy := &Proxy{Host: "h", Port: "1"}
	p.Add(proxy)

	for i := 0; i < 50; i++ {
		p.ObserveFailure(proxy)
	}

	require.Equal(t, 1, p.Len())
	assert.InDelta(t, 15000, proxy.ema(), 50)
}

func TestProxy_URL(t *testing.T) {
	plain := &Proxy{Host: "1.2.3.4", Port: "8080"}
	assert.Equal(t, "http://1.2.3.4:8080", plain.URL())

	authed := &Proxy{Host: "1.2.3.4", Port: "8080", User: "u", Pass: "p"}
	assert.Equal(t, "http://u:p@1.2.3.4:8080", authed.URL())
}

func TestPool_LoadParsesBothLineForms(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/proxies.txt"
	content := "# comment\n10.0.0.1:8080\n10.0.0.2:8081:alice:secret\n\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p := NewPool(1000, 15000)
	require.NoError(t, p.Load(path))
	assert.Equal(t, 2, p.Len())
}

func TestPool_LoadRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/proxies.txt"
	require.NoError(t, os.WriteFile(path, []byte("not-a-valid-line\n"), 0o644))

	p := NewPool(1000, 15000)
	assert.Error(t, p.Load(path))
}

func TestProxy_WaitWithoutRateLimitReturnsImmediately(t *testing.T) {
	p := NewPool(1000, 15000)
	proxy := &Proxy{Host: "h", Port: "1"}
	p.Add(proxy)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, proxy.Wait(ctx))
}

func TestPool_WithRateLimitCapsAdmittedRequests(t *testing.T) {
	p := NewPool(1000, 15000).WithRateLimit(1) // 1 req/s, burst 1
	proxy := &Proxy{Host: "h", Port: "1"}
	p.Add(proxy)

	require.NoError(t, proxy.Wait(context.Background()), "the initial burst token is always available")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, proxy.Wait(ctx), "a second immediate request should be held back by the 1/s cap")
}
