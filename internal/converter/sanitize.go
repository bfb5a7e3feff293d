package converter

import (
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
)

// strippedTags are elements removed from chapter HTML entirely. They either
// execute code, pull in assets that no longer exist outside the container,
// or cannot render standalone.
var strippedTags = []string{
	"script", "style", "link", "meta", "iframe", "object", "embed", "base", "title",
}

// forbiddenAttrs are attributes removed from every element.
var forbiddenAttrs = map[string]bool{
	"contenteditable": true,
	"draggable":       true,
	"spellcheck":      true,
	"translate":       true,
	"srcset":          true,
	"style":           true,
}

// Sanitize turns parsed chapter XHTML into standalone body HTML: scripts,
// styles and comments are dropped, attributes that reference the original
// asset context are stripped, and img srcs are rewritten to the flat
// images/{name} scheme. Returns the sanitized HTML and the container paths
// of the images the chapter references. The content document is modified in
// place.
func Sanitize(c *epub.Content) (string, []string, error) {
	doc := c.Document

	doc.Find(strings.Join(strippedTags, ",")).Remove()

	for _, n := range doc.Nodes {
		removeComments(n)
	}

	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		stripAttrs(s)
	})

	var imageRefs []string
	baseDir := path.Dir(book.NormalizeTarget(c.Path))
	doc.Find("img[src]").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" || strings.Contains(src, "://") {
			return
		}
		resolved := book.NormalizeTarget(path.Join(baseDir, src))
		imageRefs = append(imageRefs, resolved)
		s.SetAttr("src", book.ImagesDir+"/"+path.Base(resolved))
	})

	body := doc.Find("body")
	var out string
	var err error
	if body.Length() > 0 {
		out, err = body.Html()
	} else {
		out, err = doc.Html()
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to render chapter %s: %w", c.Path, err)
	}

	return strings.TrimSpace(out), imageRefs, nil
}

// removeComments drops comment nodes from the tree rooted at n.
func removeComments(n *html.Node) {
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

// stripAttrs removes event handlers, data-* and epub:* attributes, and the
// forbidden set from a single element.
func stripAttrs(s *goquery.Selection) {
	node := s.Get(0)
	var toRemove []string
	for _, attr := range node.Attr {
		key := strings.ToLower(attr.Key)
		switch {
		case forbiddenAttrs[key]:
			toRemove = append(toRemove, attr.Key)
		case strings.HasPrefix(key, "on"):
			toRemove = append(toRemove, attr.Key)
		case strings.HasPrefix(key, "data-"):
			toRemove = append(toRemove, attr.Key)
		case strings.HasPrefix(key, "epub:") || strings.HasPrefix(key, "xmlns"):
			toRemove = append(toRemove, attr.Key)
		}
	}
	for _, key := range toRemove {
		s.RemoveAttr(key)
	}
}
