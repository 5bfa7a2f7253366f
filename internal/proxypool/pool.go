// Package proxypool implements the fetch engine's proxy rotation: a flat,
// lock-light set of proxy entries scored by exponentially-weighted moving
// average latency, selected via power-of-two-choices.
package proxypool

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Proxy is one entry in the pool: a host:port, optionally with basic auth
// credentials, and its current latency score.
type Proxy struct {
	Host string
	Port string
	User string
	Pass string

	emaMS   atomic.Uint64 // latency EMA in milliseconds, stored as bits via math.Float64bits
	limiter *rate.Limiter // nil unless the pool was built with a rate cap
}

// Wait blocks until the proxy's soft rate cap admits another request, or
// ctx is done. A proxy with no configured cap (the common case) returns
// immediately.
func (p *Proxy) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// URL renders the proxy as a URL usable by an http.Transport.
func (p *Proxy) URL() string {
	auth := ""
	if p.User != "" {
		auth = fmt.Sprintf("%s:%s@", p.User, p.Pass)
	}
	return fmt.Sprintf("http://%s%s:%s", auth, p.Host, p.Port)
}

func (p *Proxy) ema() float64 {
	return math.Float64frombits(p.emaMS.Load())
}

func (p *Proxy) setEMA(v float64) {
	p.emaMS.Store(math.Float64bits(v))
}

// Pool holds the loaded proxies and implements power-of-two-choices
// selection on EMA latency. A lost update under concurrent writers is
// tolerated by design (spec.md §5) — last writer wins, no lock required.
type Pool struct {
	mu            sync.RWMutex
	proxies       []*Proxy
	initial       float64
	penalty       float64
	ratePerSecond float64 // 0 disables the soft per-proxy rate cap
}

// NewPool constructs an empty pool. InitialEMA seeds new proxies before any
// observation; Penalty is the EMA value folded in on network failure and
// must be large enough that a consistently failing proxy sinks to the back
// of the distribution without ever being hard-removed (spec.md recommends
// >= 15000ms).
func NewPool(initialEMA, penalty float64) *Pool {
	return &Pool{initial: initialEMA, penalty: penalty}
}

// WithRateLimit attaches an optional soft per-proxy rate cap (requests per
// second, burst 1): every proxy added afterward gets its own
// golang.org/x/time/rate.Limiter so one fast-EMA proxy can't be hammered by
// every worker at once. perSecond <= 0 leaves proxies uncapped.
func (p *Pool) WithRateLimit(perSecond float64) *Pool {
	p.ratePerSecond = perSecond
	return p
}

// Load parses proxy source lines in "host:port" or "host:port:user:pass"
// form from the given files, appending to the pool.
func (p *Pool) Load(paths ...string) error {
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open proxy file %s: %w", path, err)
		}

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			proxy, err := parseProxyLine(line)
			if err != nil {
				f.Close()
				return fmt.Errorf("failed to parse proxy line %q in %s: %w", line, path, err)
			}
			p.Add(proxy)
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to read proxy file %s: %w", path, err)
		}
	}
	return nil
}

func parseProxyLine(line string) (*Proxy, error) {
	parts := strings.Split(line, ":")
	switch len(parts) {
	case 2:
		return &Proxy{Host: parts[0], Port: parts[1]}, nil
	case 4:
		return &Proxy{Host: parts[0], Port: parts[1], User: parts[2], Pass: parts[3]}, nil
	default:
		return nil, fmt.Errorf("expected host:port or host:port:user:pass, got %d fields", len(parts))
	}
}

// Add inserts a proxy with the pool's initial EMA, attaching a rate limiter
// if the pool was configured with WithRateLimit.
func (p *Pool) Add(proxy *Proxy) {
	proxy.setEMA(p.initial)
	if p.ratePerSecond > 0 {
		proxy.limiter = rate.NewLimiter(rate.Limit(p.ratePerSecond), 1)
	}
	p.mu.Lock()
	p.proxies = append(p.proxies, proxy)
	p.mu.Unlock()
}

// Len returns the number of proxies currently in the pool.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.proxies)
}

// Select picks two distinct random proxies and returns the one with lower
// EMA latency (power-of-two-choices). A single-entry pool returns that entry.
// Returns nil when the pool is empty — callers must tolerate a nil proxy by
// falling back to a direct (no-proxy) request.
func (p *Pool) Select() *Proxy {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.proxies)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return p.proxies[0]
	}

	i := rand.Intn(n)
	j := rand.Intn(n - 1)
	if j >= i {
		j++
	}

	a, b := p.proxies[i], p.proxies[j]
	if a.ema() <= b.ema() {
		return a
	}
	return b
}

// ObserveSuccess folds a completed request's latency (success or any HTTP
// response, even an error status) into the proxy's EMA.
func (p *Proxy) ObserveSuccess(latencyMS float64) {
	p.setEMA(0.8*p.ema() + 0.2*latencyMS)
}

// ObserveFailure folds the pool's network-failure penalty into the proxy's
// EMA, same formula as ObserveSuccess but with the fixed penalty value.
func (p *Pool) ObserveFailure(proxy *Proxy) {
	proxy.setEMA(0.8*proxy.ema() + 0.2*p.penalty)
}
