package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// maxNavDepth caps TOC recursion so a malformed or hostile EPUB cannot
// produce unbounded nesting.
const maxNavDepth = 64

// NCX represents the parsed navigation structure from an NCX file or an
// EPUB 3 nav document.
type NCX struct {
	DocTitle  string
	NavPoints []NavPoint
}

// NavPoint represents a single navigation point in the table of contents.
type NavPoint struct {
	Label       string
	ContentPath string // fragment-free, container-root-relative path
	Fragment    string // fragment identifier (without #)
	Children    []NavPoint
}

// LoadNCX loads the navigation structure for the book. EPUB 3 books are read
// from their nav document when one is declared in the manifest; otherwise the
// NCX referenced by the spine toc attribute is used. Returns nil if the book
// declares no navigation at all.
func LoadNCX(r *Reader, opf *OPF) (*NCX, error) {
	if strings.HasPrefix(opf.Version, "3") {
		if ncx, ok, err := loadNavDocument(r, opf); err != nil {
			return nil, err
		} else if ok {
			return ncx, nil
		}
	}
	return loadNCXDocument(r, opf)
}

// loadNavDocument finds and parses the EPUB 3 nav document, if declared.
func loadNavDocument(r *Reader, opf *OPF) (*NCX, bool, error) {
	var navItem *ManifestItem
	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		for _, prop := range item.Properties {
			if prop == "nav" {
				navItem = &item
				break
			}
		}
		if navItem != nil {
			break
		}
	}
	if navItem == nil {
		return nil, false, nil
	}

	data, err := r.ReadFile(navItem.Href)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read nav document: %w", err)
	}

	ncx, err := parseNavDocument(data, navItem.Href)
	if err != nil {
		return nil, false, err
	}
	return ncx, true, nil
}

// loadNCXDocument reads and parses the NCX referenced by the spine.
func loadNCXDocument(r *Reader, opf *OPF) (*NCX, error) {
	if opf.TOCID == "" {
		return nil, nil
	}
	item, ok := opf.Manifest[opf.TOCID]
	if !ok {
		return nil, nil
	}

	data, err := r.ReadFile(item.Href)
	if err != nil {
		return nil, fmt.Errorf("failed to read NCX: %w", err)
	}
	return ParseNCX(data, item.Href)
}

// --- NCX XML decoding structs (EPUB 2) ---

type ncxDocument struct {
	DocTitle ncxText   `xml:"docTitle"`
	NavMap   ncxNavMap `xml:"navMap"`
}

type ncxText struct {
	Text string `xml:"text"`
}

type ncxNavMap struct {
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	Label    ncxText       `xml:"navLabel"`
	Content  ncxContent    `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// ParseNCX parses NCX data into an NCX tree. ncxPath is the container path of
// the NCX file, used to resolve relative srcs to container-root paths.
func ParseNCX(data []byte, ncxPath string) (*NCX, error) {
	var doc ncxDocument
	if err := xmlUnmarshalLenient(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX: %w", err)
	}

	ncx := &NCX{
		DocTitle:  strings.TrimSpace(doc.DocTitle.Text),
		NavPoints: convertNavPoints(doc.NavMap.NavPoints, filepath.Dir(ncxPath), 0),
	}
	return ncx, nil
}

// convertNavPoints recursively converts navPoint elements, resolving srcs
// against the NCX directory. Nesting beyond maxNavDepth is truncated.
func convertNavPoints(points []ncxNavPoint, baseDir string, depth int) []NavPoint {
	if len(points) == 0 || depth >= maxNavDepth {
		return nil
	}

	result := make([]NavPoint, 0, len(points))
	for _, np := range points {
		path, fragment := splitFragment(strings.TrimSpace(np.Content.Src))
		point := NavPoint{
			Label:    strings.TrimSpace(np.Label.Text),
			Fragment: fragment,
			Children: convertNavPoints(np.Children, baseDir, depth+1),
		}
		if path != "" {
			point.ContentPath = resolveAgainst(baseDir, path)
		}
		result = append(result, point)
	}
	return result
}

// --- EPUB 3 nav document parsing ---

// parseNavDocument parses an XHTML nav document and extracts the toc nav.
func parseNavDocument(data []byte, navPath string) (*NCX, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse nav document: %w", err)
	}

	baseDir := filepath.Dir(navPath)
	ncx := &NCX{DocTitle: findNavTitle(doc)}

	var findNavs func(n *html.Node)
	findNavs = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "nav" && hasEpubType(n, "toc") {
			if ol := findChildElement(n, "ol"); ol != nil {
				ncx.NavPoints = parseNavOL(ol, baseDir, 0)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findNavs(c)
		}
	}
	findNavs(doc)

	return ncx, nil
}

// parseNavOL converts the li children of an ol into NavPoints.
func parseNavOL(ol *html.Node, baseDir string, depth int) []NavPoint {
	if depth >= maxNavDepth {
		return nil
	}

	var points []NavPoint
	for c := ol.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		points = append(points, parseNavLI(c, baseDir, depth))
	}
	return points
}

// parseNavLI processes a single li: an a (or span fallback) for the label and
// target, and a nested ol for children.
func parseNavLI(li *html.Node, baseDir string, depth int) NavPoint {
	var point NavPoint

	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "a":
			if point.Label == "" && point.ContentPath == "" {
				point.Label = strings.TrimSpace(nodeText(c))
				path, fragment := splitFragment(nodeAttr(c, "href"))
				if path != "" {
					point.ContentPath = resolveAgainst(baseDir, path)
				}
				point.Fragment = fragment
			}
		case "span":
			if point.Label == "" {
				point.Label = strings.TrimSpace(nodeText(c))
			}
		case "ol":
			point.Children = parseNavOL(c, baseDir, depth+1)
		}
	}

	return point
}

// findNavTitle returns the document title element text, if any.
func findNavTitle(doc *html.Node) string {
	if title := findElement(doc, "title"); title != nil {
		return strings.TrimSpace(nodeText(title))
	}
	return ""
}

func hasEpubType(n *html.Node, typeName string) bool {
	for _, t := range strings.Fields(nodeAttr(n, "epub:type")) {
		if t == typeName {
			return true
		}
	}
	return false
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findChildElement performs a depth-first search below n for the first
// element with the given tag name.
func findChildElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if found := findChildElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// nodeText recursively collects all text content within a node.
func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}

// splitFragment splits a src into its path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	path, fragment, _ = strings.Cut(src, "#")
	return path, fragment
}

// resolveAgainst resolves a relative href against a base directory, producing
// a slash-normalized container-root path.
func resolveAgainst(baseDir, rel string) string {
	if baseDir == "" || baseDir == "." {
		return filepath.ToSlash(filepath.Clean(rel))
	}
	return filepath.ToSlash(filepath.Clean(filepath.Join(baseDir, rel)))
}

// xmlUnmarshalLenient decodes XML tolerating a UTF-8 BOM and the HTML named
// entities that NCX files produced by older tools tend to contain.
func xmlUnmarshalLenient(data []byte, v any) error {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	return dec.Decode(v)
}
