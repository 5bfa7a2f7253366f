package models

import "strings"

// Origin is a single origin-repository URL pulled from the columnar archive
// (internal/worksource), carrying the dense row number it was read at so a
// parallel instance can slice the source without materializing everything.
type Origin struct {
	RowNumber int64
	URL       string
}

// OwnerRepo derives "owner/repo" from a github.com origin URL, stripping a
// trailing ".git" suffix. Returns false if the URL does not match
// "github.com/<owner>/<repo>".
func (o Origin) OwnerRepo() (owner, repo string, ok bool) {
	return ParseGitHubURL(o.URL)
}

// ParseGitHubURL extracts owner/repo from a github.com origin URL.
func ParseGitHubURL(rawURL string) (owner, repo string, ok bool) {
	idx := strings.Index(rawURL, "github.com/")
	if idx < 0 {
		return "", "", false
	}
	rest := rawURL[idx+len("github.com/"):]
	rest = strings.TrimSuffix(rest, "/")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	owner = parts[0]
	repo = strings.TrimSuffix(parts[1], ".git")
	if repo == "" {
		return "", "", false
	}
	return owner, repo, true
}
