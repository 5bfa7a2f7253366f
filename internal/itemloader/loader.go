// Package itemloader turns a chunk of on-disk README filenames into a
// deduplicated, ordered list of Items ready for embedding, within bounded
// memory and bounded file-read concurrency.
package itemloader

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/quaero-index/internal/models"
)

// Loader reads README files and produces unique Items, skipping content
// already present in the vector store and duplicates seen within the chunk.
type Loader struct {
	readmesDir  string
	fileReaders int
}

// NewLoader builds a loader bounded to fileReaders concurrent file reads
// (spec.md §4.4/§5, default FILE_READERS=16).
func NewLoader(readmesDir string, fileReaders int) *Loader {
	if fileReaders <= 0 {
		fileReaders = 16
	}
	return &Loader{readmesDir: readmesDir, fileReaders: fileReaders}
}

// Load reads the given filenames (as produced under readmesDir) and returns
// an ordered, deduplicated list of Items. existingIDs is consulted to drop
// content already present in the vector store; duplicates introduced within
// this very chunk are also dropped, keeping only the first occurrence.
func (l *Loader) Load(filenames []string, branches []string, existingIDs map[string]struct{}) ([]models.Item, error) {
	type loaded struct {
		index int
		item  models.Item
		ok    bool
	}

	results := make([]loaded, len(filenames))
	var wg sync.WaitGroup
	sem := make(chan struct{}, l.fileReaders)

	for i, name := range filenames {
		wg.Add(1)
		go func(idx int, filename string) {
			defer wg.Done()

			sem <- struct{}{}        // acquire
			defer func() { <-sem }() // release

			rf, err := models.ParseReadmeFilename(filename, branches)
			if err != nil {
				// Malformed or ambiguous filename: drop this file rather
				// than aborting the whole chunk.
				return
			}

			content, err := os.ReadFile(filepath.Join(l.readmesDir, filename))
			if err != nil {
				return
			}

			item, ok := models.NewItem(rf.Owner+"/"+rf.Repo, string(content))
			results[idx] = loaded{index: idx, item: item, ok: ok}
		}(i, name)
	}
	wg.Wait()

	seen := make(map[string]struct{}, len(filenames))
	items := make([]models.Item, 0, len(filenames))

	for _, r := range results {
		if !r.ok {
			continue
		}
		id := r.item.ID.String()
		_, dupInChunk := seen[id]
		_, alreadyIndexed := existingIDs[id]
		if !dupInChunk && !alreadyIndexed {
			seen[id] = struct{}{}
			items = append(items, r.item)
		}
	}

	return items, nil
}
