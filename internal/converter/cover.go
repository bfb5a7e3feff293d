package converter

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	// ThumbnailName is the served file name of the generated cover thumbnail.
	ThumbnailName = "_thumb.jpg"

	thumbnailWidth = 240
	thumbnailJPEGQ = 85
)

// Thumbnail decodes a cover image and produces a JPEG thumbnail for the
// library view. Images narrower than the target width are re-encoded as-is.
func Thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover image: %w", err)
	}

	if img.Bounds().Dx() > thumbnailWidth {
		img = imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(thumbnailJPEGQ)); err != nil {
		return nil, fmt.Errorf("failed to encode cover thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
