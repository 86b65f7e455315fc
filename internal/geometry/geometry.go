// Package geometry holds the pure coordinate math for the edit
// pipeline: deriving target canvas sizes, placing a source region into
// a canvas under a fit mode, and inverse-mapping screen-space drags into
// source-image rectangles. Nothing here touches pixels.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/easelhq/easel/internal/domain"
)

// ErrInvalidGeometry marks degenerate dimensions (zero or negative
// source, crop or target extents). Fatal to a single compositing call,
// never to the session.
var ErrInvalidGeometry = errors.New("invalid geometry")

// MinDragPixels is the screen-space edge length below which a crop drag
// counts as accidental and maps to no rectangle at all.
const MinDragPixels = 5.0

// TargetSize resolves the output canvas dimensions for a source region
// of rectW x rectH. Zero target values are derived from the region's
// aspect ratio; both zero means the region size is used unchanged.
func TargetSize(rectW, rectH, targetW, targetH int) (int, int, error) {
	if rectW <= 0 || rectH <= 0 {
		return 0, 0, fmt.Errorf("%w: source region %dx%d", ErrInvalidGeometry, rectW, rectH)
	}
	switch {
	case targetW <= 0 && targetH <= 0:
		return rectW, rectH, nil
	case targetH <= 0:
		derived := int(math.Round(float64(rectH) / float64(rectW) * float64(targetW)))
		return targetW, max(derived, 1), nil
	case targetW <= 0:
		derived := int(math.Round(float64(rectW) / float64(rectH) * float64(targetH)))
		return max(derived, 1), targetH, nil
	default:
		return targetW, targetH, nil
	}
}

// Placement computes where a rectW x rectH source region renders on a
// targetW x targetH canvas under the given fit mode. Cover may return a
// rectangle larger than the canvas with a negative origin; the canvas
// clips the overflow.
func Placement(rectW, rectH, targetW, targetH int, fit string) domain.Rect {
	if fit == domain.FitFill {
		return domain.Rect{X: 0, Y: 0, Width: targetW, Height: targetH}
	}
	scaleX := float64(targetW) / float64(rectW)
	scaleY := float64(targetH) / float64(rectH)
	scale := math.Max(scaleX, scaleY)
	if fit == domain.FitContain {
		scale = math.Min(scaleX, scaleY)
	}
	renderW := int(math.Round(float64(rectW) * scale))
	renderH := int(math.Round(float64(rectH) * scale))
	renderX := int(math.Round(float64(targetW-renderW) / 2))
	renderY := int(math.Round(float64(targetH-renderH) / 2))
	return domain.Rect{X: renderX, Y: renderY, Width: renderW, Height: renderH}
}

// Translate shifts a placement by the caller-supplied offset, applied
// after fit placement and identically for every fit mode.
func Translate(p domain.Rect, offsetX, offsetY float64) domain.Rect {
	p.X += int(math.Round(offsetX))
	p.Y += int(math.Round(offsetY))
	return p
}

// ScreenRect is an axis-aligned box in on-screen pixel coordinates,
// normalized so Width and Height are never negative.
type ScreenRect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ScreenRectBetween builds the normalized box spanned by two pointer
// positions, typically a drag anchor and the current pointer.
func ScreenRectBetween(x0, y0, x1, y1 float64) ScreenRect {
	return ScreenRect{
		X:      math.Min(x0, x1),
		Y:      math.Min(y0, y1),
		Width:  math.Abs(x1 - x0),
		Height: math.Abs(y1 - y0),
	}
}

// MapScreenRect inverse-maps a screen-space selection through the
// viewport transform into source-image pixel space, clamping to the
// source bounds and flooring to whole pixels. The second result is
// false when the selection is too small to act on, either because the
// drag was under MinDragPixels on an axis or because clamping left
// nothing; callers treat that as "no crop", not as an error.
func MapScreenRect(sel ScreenRect, panX, panY, scale float64, srcW, srcH int) (domain.Rect, bool) {
	if sel.Width < MinDragPixels || sel.Height < MinDragPixels {
		return domain.Rect{}, false
	}
	if scale <= 0 || srcW <= 0 || srcH <= 0 {
		return domain.Rect{}, false
	}
	x0 := clampFloat((sel.X-panX)/scale, 0, float64(srcW))
	y0 := clampFloat((sel.Y-panY)/scale, 0, float64(srcH))
	x1 := clampFloat((sel.X+sel.Width-panX)/scale, 0, float64(srcW))
	y1 := clampFloat((sel.Y+sel.Height-panY)/scale, 0, float64(srcH))
	rect := domain.Rect{
		X:      int(math.Floor(x0)),
		Y:      int(math.Floor(y0)),
		Width:  int(math.Floor(x1 - x0)),
		Height: int(math.Floor(y1 - y0)),
	}
	if rect.Empty() {
		return domain.Rect{}, false
	}
	return rect, true
}

// ClampRect constrains a crop rectangle to the source bounds rather
// than trusting callers. The second result is false when nothing of the
// rectangle survives clamping.
func ClampRect(r domain.Rect, srcW, srcH int) (domain.Rect, bool) {
	x0 := clampInt(r.X, 0, srcW)
	y0 := clampInt(r.Y, 0, srcH)
	x1 := clampInt(r.X+r.Width, 0, srcW)
	y1 := clampInt(r.Y+r.Height, 0, srcH)
	clamped := domain.Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
	if clamped.Empty() {
		return domain.Rect{}, false
	}
	return clamped, true
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
