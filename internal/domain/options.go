package domain

import (
	"errors"
	"fmt"
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatWEBP = "webp"
	FormatAVIF = "avif"

	FitCover   = "cover"
	FitContain = "contain"
	FitFill    = "fill"

	MaskNone   = "none"
	MaskCircle = "circle"
	MaskSquare = "square"
)

// Rect is an axis-aligned pixel rectangle. Crop rectangles are expressed
// in source-image coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// EditOptions is the full edit state for one image. It is a plain value
// type: two snapshots compare equal with == exactly when every setting
// matches, which history change detection depends on. Zero target
// dimensions mean "derive from crop/source". Rotation is carried for
// forward compatibility and is not applied by the compositor.
type EditOptions struct {
	TargetWidth  int     `json:"target_width,omitempty"`
	TargetHeight int     `json:"target_height,omitempty"`
	Quality      float64 `json:"quality"`
	Format       string  `json:"format"`
	Fit          string  `json:"fit"`
	Mask         string  `json:"mask"`
	Rotation     int     `json:"rotation,omitempty"`
	Crop         Rect    `json:"crop"`
	HasCrop      bool    `json:"has_crop,omitempty"`
	OffsetX      float64 `json:"offset_x,omitempty"`
	OffsetY      float64 `json:"offset_y,omitempty"`
}

// DefaultOptions is the edit state a fresh session starts from.
func DefaultOptions() EditOptions {
	return EditOptions{
		Quality: 0.85,
		Format:  FormatPNG,
		Fit:     FitCover,
		Mask:    MaskNone,
	}
}

func (o EditOptions) Validate() error {
	if o.TargetWidth < 0 {
		return fmt.Errorf("target_width must be positive when set, got %d", o.TargetWidth)
	}
	if o.TargetHeight < 0 {
		return fmt.Errorf("target_height must be positive when set, got %d", o.TargetHeight)
	}
	if o.Quality < 0 || o.Quality > 1 {
		return fmt.Errorf("quality must be within [0,1], got %g", o.Quality)
	}
	if !ValidFormat(o.Format) {
		return fmt.Errorf("unsupported format: %q", o.Format)
	}
	if !ValidFit(o.Fit) {
		return fmt.Errorf("unsupported fit: %q", o.Fit)
	}
	if !ValidMask(o.Mask) {
		return fmt.Errorf("unsupported mask: %q", o.Mask)
	}
	if o.Rotation%90 != 0 {
		return fmt.Errorf("rotation must be a multiple of 90 degrees, got %d", o.Rotation)
	}
	if o.HasCrop {
		if o.Crop.Empty() {
			return errors.New("crop rectangle must have positive width and height")
		}
		if o.Crop.X < 0 || o.Crop.Y < 0 {
			return errors.New("crop rectangle origin must not be negative")
		}
	}
	return nil
}

func ValidFormat(format string) bool {
	switch format {
	case FormatPNG, FormatJPEG, FormatWEBP, FormatAVIF:
		return true
	}
	return false
}

func ValidFit(fit string) bool {
	switch fit {
	case FitCover, FitContain, FitFill:
		return true
	}
	return false
}

func ValidMask(mask string) bool {
	switch mask {
	case MaskNone, MaskCircle, MaskSquare:
		return true
	}
	return false
}

// MIMEType reports the content type for an encoded output in the given
// format.
func MIMEType(format string) string {
	switch format {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWEBP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	default:
		return "image/png"
	}
}
