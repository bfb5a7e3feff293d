package book

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Store serves book records from a root directory of {id}_data directories.
// Records are loaded at most once per process lifetime and kept in an
// unbounded in-memory cache; books are immutable after conversion, so the
// cache is never invalidated. Concurrent first loads of the same ID may
// duplicate work but never produce different results.
type Store struct {
	root string
	log  *zap.Logger

	mu    sync.RWMutex
	books map[string]*Book
}

// Summary describes one book in the library listing.
type Summary struct {
	ID       string
	Title    string
	Author   string
	Chapters int
	Cover    string
}

// NewStore creates a store over the given root directory.
func NewStore(root string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		root:  root,
		log:   log,
		books: make(map[string]*Book),
	}
}

// Get returns the book with the given ID, loading it from disk on first use.
func (s *Store) Get(id string) (*Book, error) {
	s.mu.RLock()
	b, ok := s.books[id]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}

	b, err := Load(filepath.Join(s.root, id+DataDirSuffix))
	if err != nil {
		return nil, fmt.Errorf("book %q: %w", id, err)
	}

	s.mu.Lock()
	// Another request may have loaded the same record meanwhile; both copies
	// were read from the same immutable file, so either one is correct.
	if existing, ok := s.books[id]; ok {
		b = existing
	} else {
		s.books[id] = b
	}
	s.mu.Unlock()

	return b, nil
}

// List scans the root directory for book data directories and returns a
// summary per loadable book, sorted by title. Unreadable directories are
// logged and skipped.
func (s *Store) List() []Summary {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.log.Warn("failed to scan books directory", zap.String("dir", s.root), zap.Error(err))
		return nil
	}

	var out []Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, ok := IDFromDir(e.Name())
		if !ok {
			continue
		}
		b, err := s.Get(id)
		if err != nil {
			s.log.Warn("skipping unreadable book", zap.String("id", id), zap.Error(err))
			continue
		}
		out = append(out, Summary{
			ID:       id,
			Title:    b.Metadata.Title,
			Author:   b.Metadata.Author(),
			Chapters: len(b.Spine),
			Cover:    b.Cover,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// ImagePath returns the on-disk path for a book image. The name is reduced
// to its base so request paths cannot escape the images directory.
func (s *Store) ImagePath(id, name string) string {
	return filepath.Join(s.root, filepath.Base(id)+DataDirSuffix, ImagesDir, filepath.Base(name))
}
