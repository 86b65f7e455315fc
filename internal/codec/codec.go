// Package codec turns composited pixel buffers into encoded bytes. It
// owns the translation from the editor's normalized quality in [0,1]
// to each codec's native convention; callers never pass codec-native
// values across this boundary.
package codec

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/easelhq/easel/internal/domain"
)

var (
	// ErrUnsupportedFormat marks a format outside the closed output
	// enum. With validated options it is unreachable.
	ErrUnsupportedFormat = errors.New("unsupported output format")

	// ErrEncoderUnavailable marks a format this build cannot encode.
	ErrEncoderUnavailable = errors.New("encoder unavailable")
)

// Encode serializes the buffer in the given format. PNG ignores
// quality; the lossy formats receive it through the mapping functions
// below.
func Encode(img *image.NRGBA, format string, quality float64) ([]byte, error) {
	if !domain.ValidFormat(format) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return encode(img, format, quality)
}

// JPEGQuality maps normalized quality to the JPEG integer scale, so
// 0.8 encodes at quality 80.
func JPEGQuality(quality float64) int {
	return int(math.Round(clamp01(quality) * 100))
}

// WebPQuality maps normalized quality to the WEBP float convention,
// which is the same [0,1] range passed through unchanged.
func WebPQuality(quality float64) float64 {
	return clamp01(quality)
}

// AVIFQuality maps normalized quality to the AVIF integer-like 0-100
// scale.
func AVIFQuality(quality float64) int {
	return int(math.Round(clamp01(quality) * 100))
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
