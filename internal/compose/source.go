package compose

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrSourceDecode marks an unreadable source image. The session cannot
// recover the image, though other sessions are unaffected.
var ErrSourceDecode = errors.New("source image decode failed")

// Source is one decoded, immutable raster. The pixel buffer is shared
// read-only across concurrent renders and must never be written after
// DecodeSource returns.
type Source struct {
	Image  *image.NRGBA
	Width  int
	Height int
	Format string
}

// DecodeSource decodes raw image bytes, honoring EXIF orientation, and
// normalizes the pixels to NRGBA so downstream sampling and masking
// work on a single layout.
func DecodeSource(data []byte) (*Source, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceDecode, err)
	}

	nrgba := imaging.Clone(img)
	bounds := nrgba.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrSourceDecode)
	}

	format := ""
	if _, name, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		format = name
	}

	return &Source{
		Image:  nrgba,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}, nil
}
