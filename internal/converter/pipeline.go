// Package converter turns an EPUB file into a book data directory: one
// serialized book record plus a flat directory of extracted images.
package converter

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
)

// Options holds settings for a conversion run.
type Options struct {
	InputPath string // path to the source EPUB
	OutputDir string // parent directory for the book data directory
}

// Pipeline orchestrates a one-shot EPUB to book-record conversion. Container
// or package level failures abort the run; individual unreadable spine items
// are logged and skipped.
type Pipeline struct {
	opts Options
	log  *zap.Logger
}

// New creates a conversion pipeline.
func New(opts Options, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{opts: opts, log: log}
}

// BookID derives the book identifier from an EPUB file path.
func BookID(inputPath string) string {
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return slug.Make(stem)
}

// Run executes the conversion and returns the created data directory.
func (p *Pipeline) Run() (dir string, err error) {
	reader, err := epub.Open(p.opts.InputPath)
	if err != nil {
		return "", err
	}
	defer func() {
		err = multierr.Append(err, reader.Close())
	}()

	opfData, err := reader.ReadFile(reader.OPFPath())
	if err != nil {
		return "", fmt.Errorf("failed to read OPF: %w", err)
	}
	opf, err := epub.ParseOPF(opfData, filepath.Dir(reader.OPFPath()))
	if err != nil {
		return "", err
	}

	ncx, err := epub.LoadNCX(reader, opf)
	if err != nil {
		p.log.Warn("failed to load navigation", zap.Error(err))
	}

	b := &book.Book{
		ID:       BookID(p.opts.InputPath),
		Metadata: buildMetadata(&opf.Metadata),
		TOC:      BuildTOC(ncx),
	}

	if err := p.buildSpine(reader, opf, ncx, b); err != nil {
		return "", err
	}

	images := p.collectImages(reader, opf, b)

	dir = filepath.Join(p.opts.OutputDir, b.ID+book.DataDirSuffix)
	return dir, p.write(dir, b, images)
}

// buildSpine sanitizes every spine document into a chapter.
func (p *Pipeline) buildSpine(reader *epub.Reader, opf *epub.OPF, ncx *epub.NCX, b *book.Book) error {
	labels := chapterLabels(ncx)

	for _, item := range opf.SpineDocuments() {
		if !epub.IsXHTML(item.MediaType) {
			continue
		}

		data, err := reader.ReadFile(item.Href)
		if err != nil {
			p.log.Warn("skipping unreadable spine item", zap.String("href", item.Href), zap.Error(err))
			continue
		}

		content, err := epub.LoadContent(item.ID, item.Href, data)
		if err != nil {
			p.log.Warn("skipping unparseable spine item", zap.String("href", item.Href), zap.Error(err))
			continue
		}

		sanitized, _, err := Sanitize(content)
		if err != nil {
			p.log.Warn("skipping unrenderable spine item", zap.String("href", item.Href), zap.Error(err))
			continue
		}

		source := book.NormalizeTarget(item.Href)
		b.Spine = append(b.Spine, book.Chapter{
			Title:      labels[source],
			SourcePath: source,
			HTML:       sanitized,
		})
	}

	if len(b.Spine) == 0 {
		return fmt.Errorf("no valid XHTML chapters found in %s", p.opts.InputPath)
	}
	return nil
}

// collectImages reads every image resource in the manifest and maps it to a
// flat served name. Name collisions within a book overwrite; EPUB internal
// paths are near-universally unique by filename.
func (p *Pipeline) collectImages(reader *epub.Reader, opf *epub.OPF, b *book.Book) map[string][]byte {
	images := make(map[string][]byte)

	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if !epub.IsImage(item.MediaType) {
			continue
		}
		data, err := reader.ReadFile(item.Href)
		if err != nil {
			p.log.Warn("skipping unreadable image", zap.String("href", item.Href), zap.Error(err))
			continue
		}
		name := path.Base(book.NormalizeTarget(item.Href))
		if _, exists := images[name]; !exists {
			b.Images = append(b.Images, name)
		}
		images[name] = data
	}

	if cover, ok := opf.DetectCover(); ok {
		coverName := path.Base(book.NormalizeTarget(cover.Href))
		if data, ok := images[coverName]; ok {
			thumb, err := Thumbnail(data)
			if err != nil {
				p.log.Warn("failed to build cover thumbnail", zap.String("href", cover.Href), zap.Error(err))
			} else {
				images[ThumbnailName] = thumb
				b.Images = append(b.Images, ThumbnailName)
				b.Cover = ThumbnailName
			}
		}
	}

	return images
}

// write materializes the data directory: images first, the record last, so a
// directory with a readable record is always a complete conversion.
func (p *Pipeline) write(dir string, b *book.Book, images map[string][]byte) error {
	imagesDir := filepath.Join(dir, book.ImagesDir)
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	for name, data := range images {
		if err := os.WriteFile(filepath.Join(imagesDir, name), data, 0o644); err != nil {
			return fmt.Errorf("failed to write image %s: %w", name, err)
		}
	}

	if err := b.Save(dir); err != nil {
		return err
	}

	p.log.Info("converted book",
		zap.String("id", b.ID),
		zap.String("dir", dir),
		zap.Int("chapters", len(b.Spine)),
		zap.Int("images", len(images)))
	return nil
}

// buildMetadata maps OPF metadata onto the persisted form. Only creators
// without a role or with the author role are listed as authors.
func buildMetadata(md *epub.Metadata) book.Metadata {
	out := book.Metadata{
		Title:       md.Title,
		Language:    md.Language,
		Identifier:  md.Identifier,
		Publisher:   md.Publisher,
		Date:        md.Date,
		Description: md.Description,
		Subjects:    md.Subjects,
	}
	if out.Title == "" {
		out.Title = "Untitled"
	}
	for _, c := range md.Creators {
		if c.Role == "" || c.Role == "aut" {
			out.Authors = append(out.Authors, c.Name)
		}
	}
	return out
}
