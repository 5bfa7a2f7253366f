package fetch

import "fmt"

// candidate is one README location to probe: a (filename, branch) pair
// resolved to a concrete raw-hosting URL.
type candidate struct {
	Filename string
	Branch   string
}

// buildCandidates enumerates README_NAMES x BRANCHES in the fixed order the
// configuration lists them: all branches for the first filename, then all
// branches for the second filename, and so on. The default ordering tries
// README.md before any lowercase variant, and master before main within a
// filename because master historically covers the larger share of archived
// repos.
func buildCandidates(filenames, branches []string) []candidate {
	candidates := make([]candidate, 0, len(filenames)*len(branches))
	for _, filename := range filenames {
		for _, branch := range branches {
			candidates = append(candidates, candidate{Filename: filename, Branch: branch})
		}
	}
	return candidates
}

// defaultRawBaseURL is GitHub's raw-content host.
const defaultRawBaseURL = "https://raw.githubusercontent.com"

// rawURL renders the candidate's raw-hosting URL for a given owner/repo
// against the supplied base (overridable in tests).
func (c candidate) rawURL(baseURL, owner, repo string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", baseURL, owner, repo, c.Branch, c.Filename)
}
