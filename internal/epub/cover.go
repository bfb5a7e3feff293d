package epub

import (
	"path/filepath"
	"strings"
)

// DetectCover finds the book's cover image in the manifest. Detection methods
// are tried in priority order:
//  1. properties="cover-image" (EPUB 3)
//  2. meta name="cover" (EPUB 2)
//  3. guide reference type="cover" matched against image manifest items
//  4. filename containing "cover"
//
// Returns the manifest item and true, or a zero item and false when the book
// has no detectable cover.
func (opf *OPF) DetectCover() (ManifestItem, bool) {
	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if !IsImage(item.MediaType) {
			continue
		}
		for _, prop := range item.Properties {
			if prop == "cover-image" {
				return item, true
			}
		}
	}

	if opf.Metadata.CoverID != "" {
		if item, ok := opf.Manifest[opf.Metadata.CoverID]; ok && IsImage(item.MediaType) {
			return item, true
		}
	}

	for _, ref := range opf.Guide {
		if !strings.EqualFold(ref.Type, "cover") {
			continue
		}
		target, _, _ := strings.Cut(ref.Href, "#")
		for _, id := range opf.ManifestOrder {
			item := opf.Manifest[id]
			if IsImage(item.MediaType) && item.Href == target {
				return item, true
			}
		}
	}

	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if !IsImage(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(filepath.Base(item.Href)), "cover") {
			return item, true
		}
	}

	return ManifestItem{}, false
}

// IsImage reports whether a media type denotes a raster image. SVG is
// excluded; it is served as a document, not extracted as an image resource.
func IsImage(mediaType string) bool {
	if mediaType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

// IsXHTML reports whether a media type denotes an XHTML content document.
func IsXHTML(mediaType string) bool {
	return strings.Contains(mediaType, "html")
}
