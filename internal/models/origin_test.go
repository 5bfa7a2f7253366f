package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGitHubURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantOK    bool
	}{
		{"plain", "https://github.com/foo/bar", "foo", "bar", true},
		{"dot git suffix", "https://github.com/foo/bar.git", "foo", "bar", true},
		{"trailing slash", "https://github.com/foo/bar/", "foo", "bar", true},
		{"with subpath", "https://github.com/foo/bar/tree/main", "foo", "bar", true},
		{"not github", "https://example.com/foo/bar", "", "", false},
		{"missing repo", "https://github.com/foo", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, ok := ParseGitHubURL(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantOwner, owner)
				assert.Equal(t, tt.wantRepo, repo)
			}
		})
	}
}

func TestOrigin_OwnerRepo(t *testing.T) {
	o := Origin{RowNumber: 1, URL: "https://github.com/foo/bar"}
	owner, repo, ok := o.OwnerRepo()
	assert.True(t, ok)
	assert.Equal(t, "foo", owner)
	assert.Equal(t, "bar", repo)
}
