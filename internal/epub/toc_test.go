package epub

import (
	"path/filepath"
	"strings"
	"testing"
)

const testNCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <docTitle><text>Test Book</text></docTitle>
  <navMap>
    <navPoint id="np1" playOrder="1">
      <navLabel><text>Chapter One</text></navLabel>
      <content src="text/ch1.xhtml"/>
      <navPoint id="np1-1" playOrder="2">
        <navLabel><text>Section 1.1</text></navLabel>
        <content src="text/ch1.xhtml#sec1"/>
      </navPoint>
    </navPoint>
    <navPoint id="np2" playOrder="3">
      <navLabel><text>Chapter Two</text></navLabel>
      <content src="text/ch2.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`

func TestParseNCX(t *testing.T) {
	ncx, err := ParseNCX([]byte(testNCX), "OEBPS/toc.ncx")
	if err != nil {
		t.Fatalf("ParseNCX() failed: %v", err)
	}

	if ncx.DocTitle != "Test Book" {
		t.Errorf("DocTitle = %q", ncx.DocTitle)
	}
	if len(ncx.NavPoints) != 2 {
		t.Fatalf("NavPoints = %v", ncx.NavPoints)
	}

	first := ncx.NavPoints[0]
	if first.Label != "Chapter One" {
		t.Errorf("Label = %q", first.Label)
	}
	if first.ContentPath != "OEBPS/text/ch1.xhtml" {
		t.Errorf("ContentPath = %q, want path resolved against NCX dir", first.ContentPath)
	}

	if len(first.Children) != 1 {
		t.Fatalf("Children = %v", first.Children)
	}
	child := first.Children[0]
	if child.ContentPath != "OEBPS/text/ch1.xhtml" || child.Fragment != "sec1" {
		t.Errorf("child = %+v, want fragment split off", child)
	}
}

// Older generators emit HTML entities and a BOM; the decoder must cope.
func TestParseNCX_Lenient(t *testing.T) {
	ncx := "\xEF\xBB\xBF" + `<?xml version="1.0"?>
<ncx>
  <docTitle><text>Caf&eacute; Stories</text></docTitle>
  <navMap>
    <navPoint><navLabel><text>Intro &amp; More</text></navLabel><content src="intro.xhtml"/></navPoint>
  </navMap>
</ncx>`

	parsed, err := ParseNCX([]byte(ncx), "toc.ncx")
	if err != nil {
		t.Fatalf("ParseNCX() failed: %v", err)
	}
	if parsed.DocTitle != "Café Stories" {
		t.Errorf("DocTitle = %q", parsed.DocTitle)
	}
	if len(parsed.NavPoints) != 1 || parsed.NavPoints[0].Label != "Intro & More" {
		t.Errorf("NavPoints = %+v", parsed.NavPoints)
	}
	if parsed.NavPoints[0].ContentPath != "intro.xhtml" {
		t.Errorf("ContentPath = %q", parsed.NavPoints[0].ContentPath)
	}
}

func TestParseNCX_DepthCap(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<ncx><navMap>`)
	for i := 0; i < maxNavDepth+10; i++ {
		sb.WriteString(`<navPoint><navLabel><text>deep</text></navLabel><content src="a.xhtml"/>`)
	}
	for i := 0; i < maxNavDepth+10; i++ {
		sb.WriteString(`</navPoint>`)
	}
	sb.WriteString(`</navMap></ncx>`)

	ncx, err := ParseNCX([]byte(sb.String()), "toc.ncx")
	if err != nil {
		t.Fatalf("ParseNCX() failed: %v", err)
	}

	depth := 0
	for points := ncx.NavPoints; len(points) > 0; points = points[0].Children {
		depth++
	}
	if depth > maxNavDepth {
		t.Errorf("nav depth = %d, want at most %d", depth, maxNavDepth)
	}
}

const testNavDoc = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Nav Title</title></head>
<body>
  <nav epub:type="landmarks"><ol><li><a href="cover.xhtml">Cover</a></li></ol></nav>
  <nav epub:type="toc">
    <ol>
      <li><a href="ch1.xhtml">Chapter One</a>
        <ol>
          <li><a href="ch1.xhtml#part2">Part Two</a></li>
        </ol>
      </li>
      <li><span>Unlinked Heading</span>
        <ol>
          <li><a href="ch2.xhtml">Chapter Two</a></li>
        </ol>
      </li>
    </ol>
  </nav>
</body>
</html>`

func TestParseNavDocument(t *testing.T) {
	ncx, err := parseNavDocument([]byte(testNavDoc), "OEBPS/nav.xhtml")
	if err != nil {
		t.Fatalf("parseNavDocument() failed: %v", err)
	}

	if ncx.DocTitle != "Nav Title" {
		t.Errorf("DocTitle = %q", ncx.DocTitle)
	}
	if len(ncx.NavPoints) != 2 {
		t.Fatalf("NavPoints = %+v", ncx.NavPoints)
	}

	first := ncx.NavPoints[0]
	if first.Label != "Chapter One" || first.ContentPath != "OEBPS/ch1.xhtml" {
		t.Errorf("first = %+v", first)
	}
	if len(first.Children) != 1 || first.Children[0].Fragment != "part2" {
		t.Errorf("first.Children = %+v", first.Children)
	}

	// The landmarks nav must be ignored; only the toc nav counts.
	second := ncx.NavPoints[1]
	if second.Label != "Unlinked Heading" || second.ContentPath != "" {
		t.Errorf("second = %+v, want span label with no target", second)
	}
	if len(second.Children) != 1 || second.Children[0].ContentPath != "OEBPS/ch2.xhtml" {
		t.Errorf("second.Children = %+v", second.Children)
	}
}

func TestLoadNCX_EPUB3NavPreferred(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nav.epub")
	writeTestEPUB(t, path, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": testContainerXML,
		"OEBPS/content.opf":      testOPF,
		"OEBPS/nav.xhtml":        testNavDoc,
		"OEBPS/toc.ncx":          testNCX,
	})

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer r.Close()

	opf := &OPF{
		Version: "3.0",
		Manifest: map[string]ManifestItem{
			"nav": {ID: "nav", Href: "OEBPS/nav.xhtml", MediaType: "application/xhtml+xml", Properties: []string{"nav"}},
			"ncx": {ID: "ncx", Href: "OEBPS/toc.ncx", MediaType: "application/x-dtbncx+xml"},
		},
		ManifestOrder: []string{"nav", "ncx"},
		TOCID:         "ncx",
	}

	ncx, err := LoadNCX(r, opf)
	if err != nil {
		t.Fatalf("LoadNCX() failed: %v", err)
	}
	if ncx == nil || ncx.DocTitle != "Nav Title" {
		t.Fatalf("LoadNCX() = %+v, want the nav document", ncx)
	}
}

func TestLoadNCX_NoNavigation(t *testing.T) {
	r, err := Open(minimalEPUB(t, t.TempDir()))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer r.Close()

	ncx, err := LoadNCX(r, &OPF{Version: "2.0", Manifest: map[string]ManifestItem{}})
	if err != nil {
		t.Fatalf("LoadNCX() failed: %v", err)
	}
	if ncx != nil {
		t.Errorf("LoadNCX() = %+v, want nil for a book without navigation", ncx)
	}
}
