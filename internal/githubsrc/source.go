// Package githubsrc is an optional fallback origin source backed by
// GitHub's repository search API (spec.md §4.3 expansion): when no columnar
// archive file is supplied and a token is available, it feeds the same
// batch-of-origins shape the Work Source streams from the archive, letting
// a corpus slice be bootstrapped without the public archive dump.
package githubsrc

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/ternarybob/quaero-index/internal/models"
)

// maxSearchPages reflects GitHub's documented hard cap of 1,000 results per
// search query (10 pages of 100).
const maxSearchPages = 10

// Source streams origin URLs from a GitHub repository search query, one
// page at a time.
type Source struct {
	client  *github.Client
	query   string
	perPage int

	page      int
	exhausted bool
}

// NewSource builds a search-backed source authenticated with token. An
// empty query defaults to "stars:>0", which orders a broad general-purpose
// corpus slice by popularity.
func NewSource(token, query string) (*Source, error) {
	if token == "" {
		return nil, fmt.Errorf("githubsrc: a GitHub token is required")
	}
	if query == "" {
		query = "stars:>0"
	}

	ctx := context.Background()
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	return &Source{client: client, query: query, perPage: 100, page: 1}, nil
}

// WithBaseURL points the underlying client at baseURL instead of the public
// GitHub API (tests point this at a local httptest server).
func (s *Source) WithBaseURL(baseURL string) (*Source, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("githubsrc: parse base URL: %w", err)
	}
	if parsed.Path == "" || parsed.Path[len(parsed.Path)-1] != '/' {
		parsed.Path += "/"
	}
	s.client.BaseURL = parsed
	return s, nil
}

// NextBatch returns up to perPage origins from the search query's next
// results page, or a nil slice once the query is exhausted or GitHub's
// 1,000-result search cap is reached — mirroring internal/worksource.
// Source.NextBatch's "nil slice signals exhaustion" contract so both
// sources satisfy the same interface for the fetch command.
func (s *Source) NextBatch(ctx context.Context) ([]models.Origin, error) {
	if s.exhausted {
		return nil, nil
	}

	opts := &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{Page: s.page, PerPage: s.perPage},
	}

	result, resp, err := s.client.Search.Repositories(ctx, s.query, opts)
	if err != nil {
		return nil, fmt.Errorf("githubsrc: search repositories: %w", err)
	}

	origins := make([]models.Origin, 0, len(result.Repositories))
	for i, repo := range result.Repositories {
		origins = append(origins, models.Origin{
			RowNumber: int64((s.page-1)*s.perPage + i),
			URL:       repo.GetHTMLURL(),
		})
	}

	if resp.NextPage == 0 || resp.NextPage > maxSearchPages || len(origins) == 0 {
		s.exhausted = true
	} else {
		s.page = resp.NextPage
	}

	return origins, nil
}
