package models

import (
	"errors"
	"fmt"
	"strings"
)

// MaxFilenameBytes is the hard limit on README artifact filenames (spec.md §3).
// Repos whose owner/repo/branch/filename combination would exceed this are
// skipped rather than written, to avoid tripping filesystem path limits.
const MaxFilenameBytes = 200

// ErrAmbiguousFilename is returned when a README filename's owner or repo
// segment collides with a branch token, making the split ambiguous. The
// filename is never silently round-tripped in this case (spec.md §9).
var ErrAmbiguousFilename = errors.New("ambiguous readme filename: owner/repo segment matches a branch token")

// ReadmeFile is the on-disk artifact for a successfully fetched README. Its
// filename is the sole authority for (Owner, Repo, Branch, Filename).
type ReadmeFile struct {
	Owner    string
	Repo     string
	Branch   string
	Filename string
}

// Name renders the canonical on-disk filename "<owner>_<repo>_<branch>_<filename>".
func (r ReadmeFile) Name() string {
	return fmt.Sprintf("%s_%s_%s_%s", r.Owner, r.Repo, r.Branch, r.Filename)
}

// NewReadmeFile validates field lengths before constructing a ReadmeFile.
func NewReadmeFile(owner, repo, branch, filename string) (ReadmeFile, error) {
	r := ReadmeFile{Owner: owner, Repo: repo, Branch: branch, Filename: filename}
	if len(r.Name()) > MaxFilenameBytes {
		return ReadmeFile{}, fmt.Errorf("readme filename exceeds %d bytes: %s", MaxFilenameBytes, r.Name())
	}
	return r, nil
}

// ParseReadmeFilename recovers (owner, repo, branch, filename) from an
// on-disk artifact name by locating the first underscore-delimited segment
// that matches a known branch token. owner is parts[0]; repo is the
// underscore-join of the segments between owner and the branch token;
// filename is everything after the branch token.
//
// If owner or any repo segment itself equals a branch token, the split is
// ambiguous and ErrAmbiguousFilename is returned instead of guessing.
func ParseReadmeFilename(name string, branches []string) (ReadmeFile, error) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return ReadmeFile{}, fmt.Errorf("malformed readme filename: %s", name)
	}

	branchSet := make(map[string]bool, len(branches))
	for _, b := range branches {
		branchSet[b] = true
	}

	branchIdx := -1
	for i := 1; i < len(parts); i++ {
		if branchSet[parts[i]] {
			branchIdx = i
			break
		}
	}
	if branchIdx < 0 || branchIdx >= len(parts)-1 {
		return ReadmeFile{}, fmt.Errorf("no branch token found in readme filename: %s", name)
	}

	owner := parts[0]
	if branchSet[owner] {
		return ReadmeFile{}, ErrAmbiguousFilename
	}

	repoParts := parts[1:branchIdx]
	if len(repoParts) == 0 {
		// The first segment after owner is itself a branch token, so the
		// repo name would be empty — a repo can never be empty. The
		// segment is genuinely the repo name, not the branch; the split
		// is ambiguous rather than guessable.
		return ReadmeFile{}, ErrAmbiguousFilename
	}
	for _, p := range repoParts {
		if branchSet[p] {
			return ReadmeFile{}, ErrAmbiguousFilename
		}
	}
	// A second branch token later in the name means the first match may be
	// a repo segment (repo "x_main" on branch master), so the split is
	// ambiguous as well.
	for _, p := range parts[branchIdx+1 : len(parts)-1] {
		if branchSet[p] {
			return ReadmeFile{}, ErrAmbiguousFilename
		}
	}

	return ReadmeFile{
		Owner:    owner,
		Repo:     strings.Join(repoParts, "_"),
		Branch:   parts[branchIdx],
		Filename: strings.Join(parts[branchIdx+1:], "_"),
	}, nil
}

// ErrorMarker is an empty durable marker recording a permanent fetch failure
// for a repo, filed under <errors>/<status>/<owner>_<repo>.
type ErrorMarker struct {
	Owner  string
	Repo   string
	Status string // HTTP status as string, or "404_<N>", "tooSmall", "0"
}

// Status404 formats the special 404 bucket key, N being the number of
// README candidates that were tried before exhausting them all.
func Status404(candidatesTried int) string {
	return fmt.Sprintf("404_%d", candidatesTried)
}

// Path renders "<owner>_<repo>" for the marker file name.
func (e ErrorMarker) Path() string {
	return fmt.Sprintf("%s_%s", e.Owner, e.Repo)
}
