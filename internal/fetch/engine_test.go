package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/quaero-index/internal/common"
	"github.com/ternarybob/quaero-index/internal/models"
	"github.com/ternarybob/quaero-index/internal/proxypool"
)

func testEngine(t *testing.T, handler http.HandlerFunc) (*Engine, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := common.FetchConfig{
		MaxRetries:  1,
		MinSizeByte: 10,
		MaxChars:    50000,
		Branches:    []string{"master", "main"},
		Filenames:   []string{"README.md"},
	}
	dir := t.TempDir()
	pool := proxypool.NewPool(1000, 15000)
	e := NewEngine(cfg, pool, dir, nil).WithRawBaseURL(server.URL)
	return e, dir
}

func TestEngine_FetchSuccessWritesReadme(t *testing.T) {
	e, dir := testEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/master/") {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("# bar\nsome readme content long enough"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	origin := models.Origin{RowNumber: 1, URL: "https://github.com/foo/bar"}
	outcome, err := e.Fetch(context.Background(), origin)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)

	path := filepath.Join(dir, "foo_bar_master_README.md")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "bar")
}

func TestEngine_FetchAllNotFoundWritesMarker(t *testing.T) {
	e, dir := testEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	origin := models.Origin{RowNumber: 1, URL: "https://github.com/foo/bar"}
	outcome, err := e.Fetch(context.Background(), origin)
	require.NoError(t, err)
	assert.Equal(t, OutcomeErrorMarker, outcome)

	matches, err := filepath.Glob(filepath.Join(dir, ".errors", "404_*", "foo_bar"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestEngine_FetchShortCircuitsOn451(t *testing.T) {
	calls := 0
	e, dir := testEngine(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(451)
	})

	origin := models.Origin{RowNumber: 1, URL: "https://github.com/foo/bar"}
	outcome, err := e.Fetch(context.Background(), origin)
	require.NoError(t, err)
	assert.Equal(t, OutcomeErrorMarker, outcome)
	assert.Equal(t, 1, calls, "451 must short-circuit remaining candidates")

	_, err = os.Stat(filepath.Join(dir, ".errors", "451", "foo_bar"))
	assert.NoError(t, err)
}

func TestEngine_FetchTooSmallWritesMarker(t *testing.T) {
	e, dir := testEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("short"))
	})

	origin := models.Origin{RowNumber: 1, URL: "https://github.com/foo/bar"}
	outcome, err := e.Fetch(context.Background(), origin)
	require.NoError(t, err)
	assert.Equal(t, OutcomeErrorMarker, outcome)

	_, err = os.Stat(filepath.Join(dir, ".errors", "tooSmall", "foo_bar"))
	assert.NoError(t, err)
}

func TestEngine_FetchRerunWritesNothingNew(t *testing.T) {
	e, dir := testEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	origin := models.Origin{RowNumber: 1, URL: "https://github.com/foo/bar"}
	_, err := e.Fetch(context.Background(), origin)
	require.NoError(t, err)

	owner, repo, _ := origin.OwnerRepo()
	skip, err := e.Skip(owner, repo)
	require.NoError(t, err)
	assert.True(t, skip, "a marker from the first run must be visible to the skip check")

	before, _ := filepath.Glob(filepath.Join(dir, ".errors", "*", "foo_bar"))
	_, err = e.Fetch(context.Background(), origin)
	require.NoError(t, err)
	after, _ := filepath.Glob(filepath.Join(dir, ".errors", "*", "foo_bar"))
	assert.Equal(t, before, after)
}

func TestEngine_MalformedOriginIsPermanent(t *testing.T) {
	e, _ := testEngine(t, func(w http.ResponseWriter, r *http.Request) {})

	origin := models.Origin{RowNumber: 1, URL: "https://example.com/not-github"}
	_, err := e.Fetch(context.Background(), origin)
	assert.Error(t, err)
}
