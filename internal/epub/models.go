package epub

// OPF represents the parsed Open Package Format document.
type OPF struct {
	Version       string
	Metadata      Metadata
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // manifest ids in document order
	Spine         []SpineItem
	Guide         []GuideReference
	TOCID         string // spine toc attribute (NCX manifest id)
}

// Metadata represents the metadata section of the OPF.
type Metadata struct {
	Title       string
	Creators    []Creator
	Language    string
	Identifier  string
	Publisher   string
	Date        string
	Description string
	Subjects    []string
	CoverID     string // EPUB 2.0 cover image manifest item ID (from meta name="cover")
}

// Creator represents a creator (author, editor, etc.) of the book.
type Creator struct {
	Name string
	Role string // e.g., "aut" for author, "edt" for editor
}

// ManifestItem represents an item in the manifest.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

// SpineItem represents an item reference in the spine.
type SpineItem struct {
	IDRef  string
	Linear bool
}

// GuideReference represents a reference element in the OPF guide.
type GuideReference struct {
	Type  string
	Title string
	Href  string
}
