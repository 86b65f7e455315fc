//go:build !govips || !cgo

package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"

	"github.com/easelhq/easel/internal/domain"
)

func Startup() error {
	return nil
}

func Shutdown() {}

func encode(img *image.NRGBA, format string, quality float64) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case domain.FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality(quality)}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case domain.FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case domain.FormatWEBP:
		// chai2010/webp expects quality on a 0-100 scale.
		opts := &webp.Options{Quality: float32(WebPQuality(quality) * 100)}
		if err := webp.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case domain.FormatAVIF:
		return nil, fmt.Errorf("%w: avif export requires the govips build tag", ErrEncoderUnavailable)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	return buf.Bytes(), nil
}
