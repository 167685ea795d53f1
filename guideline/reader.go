package guideline

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Reader loads and merges directive documents between a source path and
// the repository root. Parsed documents are cached by absolute path.
type Reader struct {
	mu     sync.Mutex
	cache  map[string]*Set
	logger *slog.Logger
}

// NewReader creates a Reader with an empty cache.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		cache:  make(map[string]*Set),
		logger: logger.With("component", "guideline"),
	}
}

// Merge walks from sourceDir up to (and including) rootDir, collecting
// at most one directive file per directory, and merges them bottom-to-
// top: root entries first, closer-to-source entries appended after.
// A directory without a directive file is skipped; an unreadable file
// is an error.
func (r *Reader) Merge(sourceDir, rootDir string) (*Set, error) {
	source, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source dir: %w", err)
	}
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root dir: %w", err)
	}

	rel, err := filepath.Rel(root, source)
	if err != nil || rel == ".." || filepath.IsAbs(rel) || (len(rel) > 1 && rel[:2] == "..") {
		return nil, fmt.Errorf("source %s is not under root %s", source, root)
	}

	// Collect source-to-root, then merge in reverse so root comes first.
	var chain []*Set
	dir := source
	for {
		doc, err := r.load(dir)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			chain = append(chain, doc)
		}
		if dir == root {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	merged := &Set{}
	for i := len(chain) - 1; i >= 0; i-- {
		merged.Merge(chain[i])
	}
	return merged, nil
}

// load parses the first matching directive file in dir, consulting the
// cache. Returns nil when the directory has no directive file.
func (r *Reader) load(dir string) (*Set, error) {
	for _, name := range CandidateFilenames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat directive file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}

		r.mu.Lock()
		cached, ok := r.cache[path]
		r.mu.Unlock()
		if ok {
			return cached, nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read directive file %s: %w", path, err)
		}
		doc := Parse(string(data))
		r.mu.Lock()
		r.cache[path] = doc
		r.mu.Unlock()
		r.logger.Debug("directive file parsed", "path", path, "categories", len(doc.Categories))
		return doc, nil
	}
	return nil, nil
}

// Invalidate drops the cache entry for an absolute directive file path.
func (r *Reader) Invalidate(path string) {
	r.mu.Lock()
	delete(r.cache, path)
	r.mu.Unlock()
}

// CacheSize returns the number of cached documents.
func (r *Reader) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
