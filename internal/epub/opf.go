package epub

import (
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"
)

// opfPackage represents the OPF XML structure.
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	UniqueID string      `xml:"unique-identifier,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
	Guide    opfGuide    `xml:"guide"`
}

type opfMetadata struct {
	Title       []string        `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator     []opfCreator    `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Language    []string        `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifier  []opfIdentifier `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Publisher   []string        `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Date        []string        `xml:"http://purl.org/dc/elements/1.1/ date"`
	Description []string        `xml:"http://purl.org/dc/elements/1.1/ description"`
	Subject     []string        `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Meta        []opfMeta       `xml:"meta"`
}

type opfCreator struct {
	Name string `xml:",chardata"`
	Role string `xml:"http://www.idpf.org/2007/opf role,attr"`
	ID   string `xml:"id,attr"`
}

type opfIdentifier struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	Toc      string       `xml:"toc,attr"`
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

type opfGuide struct {
	References []opfGuideRef `xml:"reference"`
}

type opfGuideRef struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// ParseOPF parses an OPF file content and returns the OPF structure.
// opfDir is the directory containing the OPF file (e.g., "OEBPS/"); manifest
// and guide hrefs are resolved against it so they address the container root.
func ParseOPF(content []byte, opfDir string) (*OPF, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(content, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse OPF XML: %w", err)
	}

	opf := &OPF{
		Version:  pkg.Version,
		Manifest: make(map[string]ManifestItem),
		TOCID:    pkg.Spine.Toc,
	}

	opf.Metadata = parseMetadata(&pkg.Metadata, pkg.UniqueID)

	for _, item := range pkg.Manifest.Items {
		manifestItem := ManifestItem{
			ID:        item.ID,
			Href:      joinOPFPath(opfDir, item.Href),
			MediaType: item.MediaType,
		}
		if item.Properties != "" {
			manifestItem.Properties = strings.Fields(item.Properties)
		}
		opf.Manifest[item.ID] = manifestItem
		opf.ManifestOrder = append(opf.ManifestOrder, item.ID)
	}

	for _, itemRef := range pkg.Spine.ItemRefs {
		opf.Spine = append(opf.Spine, SpineItem{
			IDRef:  itemRef.IDRef,
			Linear: itemRef.Linear != "no",
		})
	}

	for _, ref := range pkg.Guide.References {
		opf.Guide = append(opf.Guide, GuideReference{
			Type:  ref.Type,
			Title: ref.Title,
			Href:  joinOPFPath(opfDir, ref.Href),
		})
	}

	return opf, nil
}

// parseMetadata parses the metadata section.
func parseMetadata(meta *opfMetadata, uniqueID string) Metadata {
	md := Metadata{
		Subjects: meta.Subject,
	}

	if len(meta.Title) > 0 {
		md.Title = meta.Title[0]
	}
	if len(meta.Language) > 0 {
		md.Language = meta.Language[0]
	}

	// Identifier: prefer the one marked as unique-identifier
	for _, id := range meta.Identifier {
		if id.ID == uniqueID {
			md.Identifier = id.Value
			break
		}
	}
	if md.Identifier == "" && len(meta.Identifier) > 0 {
		md.Identifier = meta.Identifier[0].Value
	}

	if len(meta.Publisher) > 0 {
		md.Publisher = meta.Publisher[0]
	}
	if len(meta.Date) > 0 {
		md.Date = meta.Date[0]
	}
	if len(meta.Description) > 0 {
		md.Description = meta.Description[0]
	}

	for _, creator := range meta.Creator {
		md.Creators = append(md.Creators, Creator{
			Name: strings.TrimSpace(creator.Name),
			Role: creator.Role,
		})
	}

	// EPUB 2.0 cover meta element
	for _, m := range meta.Meta {
		if m.Name == "cover" && m.Content != "" {
			md.CoverID = m.Content
			break
		}
	}

	return md
}

// SpineDocuments returns the manifest items referenced by the spine, in
// reading order. Itemrefs without a manifest entry are silently dropped.
func (opf *OPF) SpineDocuments() []ManifestItem {
	items := make([]ManifestItem, 0, len(opf.Spine))
	for _, si := range opf.Spine {
		if item, ok := opf.Manifest[si.IDRef]; ok {
			items = append(items, item)
		}
	}
	return items
}

// joinOPFPath joins the OPF directory with a relative path.
func joinOPFPath(base, rel string) string {
	if base == "" || base == "." {
		return filepath.ToSlash(filepath.Clean(rel))
	}
	return filepath.ToSlash(filepath.Clean(filepath.Join(base, rel)))
}
