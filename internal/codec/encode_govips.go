//go:build govips && cgo

package codec

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/easelhq/easel/internal/domain"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func encode(img *image.NRGBA, format string, quality float64) ([]byte, error) {
	ref, err := vips.NewImageFromMemory(tightPixels(img), img.Bounds().Dx(), img.Bounds().Dy(), 4)
	if err != nil {
		return nil, fmt.Errorf("load pixel buffer: %w", err)
	}
	defer ref.Close()

	switch format {
	case domain.FormatJPEG:
		params := vips.NewJpegExportParams()
		params.Quality = JPEGQuality(quality)
		data, _, err := ref.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case domain.FormatPNG:
		params := vips.NewPngExportParams()
		data, _, err := ref.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case domain.FormatWEBP:
		params := vips.NewWebpExportParams()
		// vips expects webp quality on a 0-100 integer scale.
		params.Quality = int(math.Round(WebPQuality(quality) * 100))
		data, _, err := ref.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	case domain.FormatAVIF:
		params := vips.NewAvifExportParams()
		params.Quality = AVIFQuality(quality)
		data, _, err := ref.ExportAvif(params)
		if err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// tightPixels returns the buffer with stride equal to row width, which
// vips requires. Buffers fresh from the compositor already satisfy
// that; subimages carry a wider stride and get repacked.
func tightPixels(img *image.NRGBA) []byte {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if img.Stride == w*4 && bounds.Min.X == 0 && bounds.Min.Y == 0 {
		return img.Pix[:w*h*4]
	}

	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		start := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		copy(pix[y*w*4:(y+1)*w*4], img.Pix[start:start+w*4])
	}
	return pix
}
