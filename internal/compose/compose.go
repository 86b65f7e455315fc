package compose

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/easelhq/easel/internal/domain"
	"github.com/easelhq/easel/internal/geometry"
)

// Composite renders the source through the full edit pipeline: resolve
// and clamp the crop, derive the target canvas, place the region under
// the fit mode plus offset, resample with a high-quality kernel, then
// apply the mask. The result is a fresh RGBA buffer of exactly the
// target size; overflow from cover placement is clipped by the canvas.
func Composite(src *Source, opts domain.EditOptions) (*image.NRGBA, error) {
	region := domain.Rect{X: 0, Y: 0, Width: src.Width, Height: src.Height}
	if opts.HasCrop {
		clamped, ok := geometry.ClampRect(opts.Crop, src.Width, src.Height)
		if !ok {
			return nil, fmt.Errorf("%w: crop %+v outside source %dx%d",
				geometry.ErrInvalidGeometry, opts.Crop, src.Width, src.Height)
		}
		region = clamped
	}

	targetW, targetH, err := geometry.TargetSize(region.Width, region.Height, opts.TargetWidth, opts.TargetHeight)
	if err != nil {
		return nil, err
	}

	placement := geometry.Placement(region.Width, region.Height, targetW, targetH, opts.Fit)
	placement = geometry.Translate(placement, opts.OffsetX, opts.OffsetY)

	dst := image.NewNRGBA(image.Rect(0, 0, targetW, targetH))
	dstRect := image.Rect(placement.X, placement.Y, placement.X+placement.Width, placement.Y+placement.Height)
	srcRect := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height)
	draw.CatmullRom.Scale(dst, dstRect, src.Image, srcRect, draw.Src, nil)

	applyMask(dst, opts.Mask)
	return dst, nil
}

// applyMask zeroes pixels outside the mask shape. Masking happens after
// placement so it can never change where content lands.
func applyMask(img *image.NRGBA, mask string) {
	switch mask {
	case domain.MaskCircle:
		maskCircle(img)
	case domain.MaskSquare:
		maskSquare(img)
	}
}

func maskCircle(img *image.NRGBA) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	radius := float64(min(w, h)) / 2
	centerX := float64(w) / 2
	centerY := float64(h) / 2
	radiusSq := radius * radius

	for y := 0; y < h; y++ {
		dy := float64(y) + 0.5 - centerY
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			dx := float64(x) + 0.5 - centerX
			if dx*dx+dy*dy > radiusSq {
				clearPixel(row, x*4)
			}
		}
	}
}

func maskSquare(img *image.NRGBA) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	side := min(w, h)
	left := (w - side) / 2
	top := (h - side) / 2

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		inBand := y >= top && y < top+side
		for x := 0; x < w; x++ {
			if !inBand || x < left || x >= left+side {
				clearPixel(row, x*4)
			}
		}
	}
}

func clearPixel(row []byte, i int) {
	row[i] = 0
	row[i+1] = 0
	row[i+2] = 0
	row[i+3] = 0
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
