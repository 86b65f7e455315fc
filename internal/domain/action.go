package domain

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ActionResizeWidth  = "resize_width"
	ActionResizeHeight = "resize_height"
	ActionSetFit       = "set_fit"
	ActionSetMask      = "set_mask"
	ActionSetFormat    = "set_format"
	ActionSetQuality   = "set_quality"
	ActionSetCrop      = "set_crop"
	ActionClearCrop    = "clear_crop"
	ActionSetOffset    = "set_offset"
	ActionApplyPreset  = "apply_preset"
)

// EditAction is one strongly-typed edit command. Type selects which
// payload fields are read; the rest are ignored.
type EditAction struct {
	Type    string  `json:"type"`
	Width   int     `json:"width,omitempty"`
	Height  int     `json:"height,omitempty"`
	Fit     string  `json:"fit,omitempty"`
	Mask    string  `json:"mask,omitempty"`
	Format  string  `json:"format,omitempty"`
	Quality float64 `json:"quality,omitempty"`
	Crop    Rect    `json:"crop,omitempty"`
	OffsetX float64 `json:"offset_x,omitempty"`
	OffsetY float64 `json:"offset_y,omitempty"`
	Preset  string  `json:"preset,omitempty"`
}

func (a EditAction) Validate() error {
	switch a.Type {
	case ActionResizeWidth:
		if a.Width < 0 {
			return fmt.Errorf("width must not be negative, got %d", a.Width)
		}
	case ActionResizeHeight:
		if a.Height < 0 {
			return fmt.Errorf("height must not be negative, got %d", a.Height)
		}
	case ActionSetFit:
		if !ValidFit(a.Fit) {
			return fmt.Errorf("unsupported fit: %q", a.Fit)
		}
	case ActionSetMask:
		if !ValidMask(a.Mask) {
			return fmt.Errorf("unsupported mask: %q", a.Mask)
		}
	case ActionSetFormat:
		if !ValidFormat(a.Format) {
			return fmt.Errorf("unsupported format: %q", a.Format)
		}
	case ActionSetQuality:
		if a.Quality < 0 || a.Quality > 1 {
			return fmt.Errorf("quality must be within [0,1], got %g", a.Quality)
		}
	case ActionSetCrop:
		if a.Crop.Empty() {
			return errors.New("crop rectangle must have positive width and height")
		}
		if a.Crop.X < 0 || a.Crop.Y < 0 {
			return errors.New("crop rectangle origin must not be negative")
		}
	case ActionClearCrop, ActionSetOffset:
	case ActionApplyPreset:
		if strings.TrimSpace(a.Preset) == "" {
			return errors.New("preset name is required")
		}
		if _, ok := GetPreset(a.Preset); !ok {
			return fmt.Errorf("unknown preset: %q", a.Preset)
		}
	case "":
		return errors.New("action type is required")
	default:
		return fmt.Errorf("unknown action type: %q", a.Type)
	}
	return nil
}

// Apply is the pure transition function from one edit state to the next.
// It never mutates opts in place and rejects actions that fail Validate.
func Apply(opts EditOptions, a EditAction) (EditOptions, error) {
	if err := a.Validate(); err != nil {
		return opts, err
	}
	next := opts
	switch a.Type {
	case ActionResizeWidth:
		next.TargetWidth = a.Width
	case ActionResizeHeight:
		next.TargetHeight = a.Height
	case ActionSetFit:
		next.Fit = a.Fit
	case ActionSetMask:
		next.Mask = a.Mask
	case ActionSetFormat:
		next.Format = a.Format
	case ActionSetQuality:
		next.Quality = a.Quality
	case ActionSetCrop:
		// Cropping redefines the working size: targets snap to the
		// crop's own dimensions.
		next.Crop = a.Crop
		next.HasCrop = true
		next.TargetWidth = a.Crop.Width
		next.TargetHeight = a.Crop.Height
	case ActionClearCrop:
		next.Crop = Rect{}
		next.HasCrop = false
	case ActionSetOffset:
		next.OffsetX = a.OffsetX
		next.OffsetY = a.OffsetY
	case ActionApplyPreset:
		preset, _ := GetPreset(a.Preset)
		next = preset.ApplyTo(next)
	}
	return next, nil
}

// Label is the history entry title recorded when this action commits.
func (a EditAction) Label() string {
	switch a.Type {
	case ActionResizeWidth:
		return "Resize Width"
	case ActionResizeHeight:
		return "Resize Height"
	case ActionSetFit:
		return "Change Fit"
	case ActionSetMask:
		return "Change Mask"
	case ActionSetFormat:
		return "Change Format"
	case ActionSetQuality:
		return "Change Quality"
	case ActionSetCrop:
		return "Crop"
	case ActionClearCrop:
		return "Clear Crop"
	case ActionSetOffset:
		return "Move Image"
	case ActionApplyPreset:
		if preset, ok := GetPreset(a.Preset); ok {
			return "Preset: " + preset.DisplayName
		}
		return "Apply Preset"
	default:
		return "Edit"
	}
}
