package epub

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Content represents a parsed XHTML content file.
type Content struct {
	ID       string            // Manifest ID
	Path     string            // Container path
	Document *goquery.Document // Parsed HTML document
}

// LoadContent parses an XHTML content file. The path is kept so relative
// references inside the document can be resolved against its directory.
func LoadContent(id, path string, data []byte) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML %s: %w", path, err)
	}

	return &Content{
		ID:       id,
		Path:     path,
		Document: doc,
	}, nil
}
