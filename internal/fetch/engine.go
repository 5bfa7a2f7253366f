// Package fetch implements the fetch engine: per-repo README candidate
// resolution against raw-hosting, retry with backoff and proxy rotation, and
// durable recording of the outcome as a README file or an error marker.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-index/internal/common"
	"github.com/ternarybob/quaero-index/internal/models"
	"github.com/ternarybob/quaero-index/internal/pipeline/errtype"
	"github.com/ternarybob/quaero-index/internal/proxypool"
)

// Outcome describes the durable result of fetching one origin.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeSuccess
	OutcomeErrorMarker
)

// Engine resolves README candidates for a stream of origins.
type Engine struct {
	config  common.FetchConfig
	pool    *proxypool.Pool
	markers *markerWriter
	client  *http.Client
	logger  arbor.ILogger

	candidates []candidate
	rawBaseURL string
}

// NewEngine builds a fetch engine bound to a proxy pool and an on-disk
// readmes directory.
func NewEngine(config common.FetchConfig, pool *proxypool.Pool, readmesDir string, logger arbor.ILogger) *Engine {
	return &Engine{
		config:     config,
		pool:       pool,
		markers:    newMarkerWriter(readmesDir),
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		candidates: buildCandidates(config.Filenames, config.Branches),
		rawBaseURL: defaultRawBaseURL,
	}
}

// WithRawBaseURL overrides the raw-hosting base URL (tests point this at a
// local httptest server instead of raw.githubusercontent.com).
func (e *Engine) WithRawBaseURL(baseURL string) *Engine {
	e.rawBaseURL = baseURL
	return e
}

// Skip reports whether owner/repo should be treated as already processed,
// consulting the filesystem directly — used by parallel instances that have
// no in-memory existing-work set (spec.md §4.2, §9).
func (e *Engine) Skip(owner, repo string) (bool, error) {
	done, err := e.markers.HasSuccess(owner, repo)
	if err != nil || done {
		return done, err
	}
	return e.markers.HasErrorMarker(owner, repo)
}

// Fetch resolves exactly one durable outcome for the given origin: a README
// file written to disk, an error marker, or a skip when every candidate
// filename exceeds the filename length limit. Fetch does not itself check
// whether the repo was already fetched; callers do that via Skip.
func (e *Engine) Fetch(ctx context.Context, origin models.Origin) (Outcome, error) {
	owner, repo, ok := origin.OwnerRepo()
	if !ok {
		return OutcomeErrorMarker, &errtype.Permanent{Status: "malformed", Err: fmt.Errorf("cannot parse owner/repo from %q", origin.URL)}
	}

	var lastStatus string
	allNotFound := true
	candidatesTried := 0

	for _, c := range e.candidates {
		rf, err := models.NewReadmeFile(owner, repo, c.Branch, c.Filename)
		if err != nil {
			// Filename would exceed the filesystem limit; skip this
			// candidate rather than aborting the whole repo.
			continue
		}

		candidatesTried++
		status, body, fetchErr := e.fetchCandidate(ctx, c.rawURL(e.rawBaseURL, owner, repo))

		if fetchErr != nil {
			var permanent *errtype.Permanent
			if errors.As(fetchErr, &permanent) {
				if permanent.Status == "451" {
					if writeErr := e.markers.WriteErrorMarker(owner, repo, "451"); writeErr != nil {
						return OutcomeErrorMarker, writeErr
					}
					return OutcomeErrorMarker, nil
				}
			}
			lastStatus = statusLabel(status, fetchErr)
			allNotFound = allNotFound && status == 404
			continue
		}

		if status == http.StatusOK {
			return e.finalizeSuccess(owner, repo, rf, body)
		}

		lastStatus = statusLabel(status, nil)
		allNotFound = allNotFound && status == 404
	}

	if candidatesTried == 0 {
		return OutcomeSkipped, nil
	}

	bucket := lastStatus
	if allNotFound {
		bucket = models.Status404(candidatesTried)
	}
	if err := e.markers.WriteErrorMarker(owner, repo, bucket); err != nil {
		return OutcomeErrorMarker, err
	}
	return OutcomeErrorMarker, nil
}

func (e *Engine) finalizeSuccess(owner, repo string, rf models.ReadmeFile, body []byte) (Outcome, error) {
	content := string(body)
	if len(content) < e.config.MinSizeByte {
		if err := e.markers.WriteErrorMarker(owner, repo, "tooSmall"); err != nil {
			return OutcomeErrorMarker, err
		}
		return OutcomeErrorMarker, nil
	}

	content = models.Truncate(content, e.config.MaxChars)
	if _, err := e.markers.WriteSuccess(rf, content); err != nil {
		return OutcomeErrorMarker, err
	}
	return OutcomeSuccess, nil
}

// fetchCandidate runs the retry loop for a single (branch, filename)
// candidate: up to MaxRetries attempts, a fresh proxy drawn per attempt,
// transient status codes backed off exponentially, network failures retried
// immediately. Returns (statusCode, body, error) where a non-nil error of
// type *errtype.Permanent with Status "451" signals a whole-repo
// short-circuit.
func (e *Engine) fetchCandidate(ctx context.Context, rawURL string) (int, []byte, error) {
	bo := newRequestBackOff()
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max(e.config.MaxRetries-1, 0))), ctx)

	var lastStatus int
	var lastBody []byte

	operation := func() error {
		proxy := e.pool.Select()
		if proxy != nil {
			if err := proxy.Wait(ctx); err != nil {
				bo.transient = false
				lastStatus = 0
				return backoff.Permanent(err)
			}
		}
		result := httpDo(ctx, e.client, rawURL, proxy)

		if result.NetworkErr != nil {
			if proxy != nil {
				e.pool.ObserveFailure(proxy)
			}
			bo.transient = false
			lastStatus = 0
			return result.NetworkErr
		}

		if proxy != nil {
			proxy.ObserveSuccess(result.LatencyMS)
		}
		lastStatus = result.StatusCode
		lastBody = result.Body

		switch result.StatusCode {
		case http.StatusOK, http.StatusNotFound:
			return nil
		case 451:
			return backoff.Permanent(&errtype.Permanent{Status: "451"})
		}

		if errtype.IsRetryableStatus(result.StatusCode) {
			bo.transient = true
			return &errtype.Transient{StatusCode: result.StatusCode}
		}

		// Non-retryable client error (403, etc): terminal for this candidate.
		return nil
	}

	err := backoff.Retry(operation, policy)
	if err != nil {
		var perm *errtype.Permanent
		if errors.As(err, &perm) {
			return lastStatus, nil, err
		}
		// Retries exhausted on a transient/network error: record as final
		// failure with whatever status (or 0) was last observed.
		return lastStatus, nil, err
	}

	return lastStatus, lastBody, nil
}

func statusLabel(status int, err error) string {
	if status == 0 {
		return "0"
	}
	return strconv.Itoa(status)
}
