// Package book defines the persisted book model produced by the converter
// and consumed by the reader service, together with its on-disk layout.
package book

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// DataDirSuffix is appended to a book ID to form its data directory name.
	DataDirSuffix = "_data"
	// RecordFile is the serialized book record inside a data directory.
	RecordFile = "book.json"
	// ImagesDir holds extracted image files inside a data directory.
	ImagesDir = "images"
)

// Book is one processed e-book. Created once by the converter and immutable
// thereafter.
type Book struct {
	ID       string     `json:"id"`
	Metadata Metadata   `json:"metadata"`
	Spine    []Chapter  `json:"spine"`
	TOC      []TOCEntry `json:"toc,omitempty"`
	Images   []string   `json:"images,omitempty"`
	Cover    string     `json:"cover,omitempty"` // served name of the cover thumbnail
}

// Metadata holds the descriptive fields of a book.
type Metadata struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	Language    string   `json:"language,omitempty"`
	Identifier  string   `json:"identifier,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Date        string   `json:"date,omitempty"`
	Description string   `json:"description,omitempty"`
	Subjects    []string `json:"subjects,omitempty"`
}

// Chapter is one spine entry: sanitized HTML plus the source path that lets
// TOC entries resolve back to a spine position.
type Chapter struct {
	Title      string `json:"title,omitempty"`
	SourcePath string `json:"source_path"`
	HTML       string `json:"html"`
}

// TOCEntry is one navigation node. Target is the fragment-free, normalized
// container path of the chapter it points at; resolution to a spine index
// happens at render time.
type TOCEntry struct {
	Label    string     `json:"label"`
	Target   string     `json:"target,omitempty"`
	Fragment string     `json:"fragment,omitempty"`
	Children []TOCEntry `json:"children,omitempty"`
}

// Author returns the authors joined for display.
func (m Metadata) Author() string {
	return strings.Join(m.Authors, ", ")
}

// Save serializes the book record into dir. The record is written last by
// callers, after image extraction, so a directory with a readable record is
// a fully converted book.
func (b *Book) Save(dir string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode book record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, RecordFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write book record: %w", err)
	}
	return nil
}

// Load reads a book record from dir.
func Load(dir string) (*Book, error) {
	data, err := os.ReadFile(filepath.Join(dir, RecordFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read book record: %w", err)
	}
	var b Book
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode book record: %w", err)
	}
	return &b, nil
}

// SpineIndex builds a lookup from TOC targets to spine indices. Entries are
// keyed both by normalized source path and by bare filename, so targets that
// only match on filename still resolve. First occurrence wins.
func (b *Book) SpineIndex() map[string]int {
	idx := make(map[string]int, len(b.Spine)*2)
	for i, ch := range b.Spine {
		p := NormalizeTarget(ch.SourcePath)
		if _, ok := idx[p]; !ok {
			idx[p] = i
		}
		base := path.Base(p)
		if _, ok := idx[base]; !ok {
			idx[base] = i
		}
	}
	return idx
}

// Resolve maps a TOC target to a spine index using the given lookup,
// falling back to a bare filename match. Returns -1 when nothing matches;
// unresolved entries are a display no-op, not an error.
func Resolve(idx map[string]int, target string) int {
	if target == "" {
		return -1
	}
	t := NormalizeTarget(target)
	if i, ok := idx[t]; ok {
		return i
	}
	if i, ok := idx[path.Base(t)]; ok {
		return i
	}
	return -1
}

// NormalizeTarget slash-normalizes and cleans a TOC target or source path so
// equivalent relative spellings compare equal.
func NormalizeTarget(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(filepath.ToSlash(p))
}

// IDFromDir derives the book ID from a data directory name. Returns false
// when the name does not use the data directory layout.
func IDFromDir(name string) (string, bool) {
	if !strings.HasSuffix(name, DataDirSuffix) || name == DataDirSuffix {
		return "", false
	}
	return strings.TrimSuffix(name, DataDirSuffix), true
}
