package converter

import (
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
)

// BuildTOC converts a parsed navigation tree into the persisted TOC form.
// Targets are normalized container paths; entries without a target keep an
// empty Target and render as plain labels.
func BuildTOC(ncx *epub.NCX) []book.TOCEntry {
	if ncx == nil {
		return nil
	}
	return buildEntries(ncx.NavPoints)
}

func buildEntries(points []epub.NavPoint) []book.TOCEntry {
	if len(points) == 0 {
		return nil
	}
	entries := make([]book.TOCEntry, 0, len(points))
	for _, np := range points {
		entries = append(entries, book.TOCEntry{
			Label:    np.Label,
			Target:   book.NormalizeTarget(np.ContentPath),
			Fragment: np.Fragment,
			Children: buildEntries(np.Children),
		})
	}
	return entries
}

// chapterLabels flattens the navigation tree into a target-path-to-label
// map used to title spine entries. The first label per path wins, matching
// reading order.
func chapterLabels(ncx *epub.NCX) map[string]string {
	labels := make(map[string]string)
	if ncx == nil {
		return labels
	}
	var walk func(points []epub.NavPoint)
	walk = func(points []epub.NavPoint) {
		for _, np := range points {
			target := book.NormalizeTarget(np.ContentPath)
			if target != "" && target != "." {
				if _, ok := labels[target]; !ok {
					labels[target] = np.Label
				}
			}
			walk(np.Children)
		}
	}
	walk(ncx.NavPoints)
	return labels
}
