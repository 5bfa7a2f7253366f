package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/quaero-index/internal/models"
)

// markerWriter creates and writes to the README and error-marker
// directories, lazily creating each status bucket directory exactly once
// per process (spec.md §4.2's filesystem-safety note).
type markerWriter struct {
	readmesDir string
	errorsDir  string

	mu      sync.Mutex
	buckets map[string]struct{}
}

func newMarkerWriter(readmesDir string) *markerWriter {
	return &markerWriter{
		readmesDir: readmesDir,
		errorsDir:  filepath.Join(readmesDir, ".errors"),
		buckets:    make(map[string]struct{}),
	}
}

func (w *markerWriter) ensureBucket(status string) (string, error) {
	dir := filepath.Join(w.errorsDir, status)

	w.mu.Lock()
	_, exists := w.buckets[status]
	w.mu.Unlock()
	if exists {
		return dir, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create error bucket %s: %w", status, err)
	}

	w.mu.Lock()
	w.buckets[status] = struct{}{}
	w.mu.Unlock()
	return dir, nil
}

// WriteSuccess writes the resolved README content to its canonical on-disk
// name and returns the filename written.
func (w *markerWriter) WriteSuccess(rf models.ReadmeFile, content string) (string, error) {
	if err := os.MkdirAll(w.readmesDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create readmes dir: %w", err)
	}
	name := rf.Name()
	path := filepath.Join(w.readmesDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write readme %s: %w", name, err)
	}
	return name, nil
}

// WriteErrorMarker writes an empty marker file under <errors>/<status>/<owner>_<repo>.
func (w *markerWriter) WriteErrorMarker(owner, repo, status string) error {
	dir, err := w.ensureBucket(status)
	if err != nil {
		return err
	}
	marker := models.ErrorMarker{Owner: owner, Repo: repo, Status: status}
	path := filepath.Join(dir, marker.Path())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write error marker %s/%s: %w", status, marker.Path(), err)
	}
	return f.Close()
}

// HasSuccess reports whether a non-marker README file already exists for
// owner/repo under any branch (any file matching owner_repo_*) — the "parallel instance"
// skip check of spec.md §4.2/§9 (generalized via glob rather than hardcoded
// to master/main).
func (w *markerWriter) HasSuccess(owner, repo string) (bool, error) {
	pattern := filepath.Join(w.readmesDir, fmt.Sprintf("%s_%s_*", owner, repo))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return false, fmt.Errorf("failed to glob existing readmes for %s/%s: %w", owner, repo, err)
	}
	return len(matches) > 0, nil
}

// HasErrorMarker reports whether any error-bucket marker already exists for
// owner/repo, regardless of bucket.
func (w *markerWriter) HasErrorMarker(owner, repo string) (bool, error) {
	pattern := filepath.Join(w.errorsDir, "*", fmt.Sprintf("%s_%s", owner, repo))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return false, fmt.Errorf("failed to glob existing error markers for %s/%s: %w", owner, repo, err)
	}
	return len(matches) > 0, nil
}
