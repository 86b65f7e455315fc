package domain

import "sort"

// Preset is a named bundle of output settings. Applying one overrides
// size, fit, mask, format and quality while leaving crop and offset
// untouched, so a preset never destroys framing work.
type Preset struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Fit         string  `json:"fit"`
	Mask        string  `json:"mask"`
	Format      string  `json:"format"`
	Quality     float64 `json:"quality"`
}

var presets = map[string]Preset{
	"avatar": {
		Name:        "avatar",
		DisplayName: "Avatar",
		Width:       256,
		Height:      256,
		Fit:         FitCover,
		Mask:        MaskCircle,
		Format:      FormatPNG,
		Quality:     1.0,
	},
	"thumbnail": {
		Name:        "thumbnail",
		DisplayName: "Thumbnail",
		Width:       320,
		Height:      180,
		Fit:         FitCover,
		Mask:        MaskNone,
		Format:      FormatJPEG,
		Quality:     0.8,
	},
	"banner": {
		Name:        "banner",
		DisplayName: "Banner",
		Width:       1500,
		Height:      500,
		Fit:         FitCover,
		Mask:        MaskNone,
		Format:      FormatJPEG,
		Quality:     0.85,
	},
	"icon": {
		Name:        "icon",
		DisplayName: "Icon",
		Width:       64,
		Height:      64,
		Fit:         FitContain,
		Mask:        MaskNone,
		Format:      FormatPNG,
		Quality:     1.0,
	},
}

func GetPreset(name string) (Preset, bool) {
	preset, ok := presets[name]
	return preset, ok
}

func ListPresets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, preset := range presets {
		out = append(out, preset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (p Preset) ApplyTo(opts EditOptions) EditOptions {
	next := opts
	next.TargetWidth = p.Width
	next.TargetHeight = p.Height
	next.Fit = p.Fit
	next.Mask = p.Mask
	next.Format = p.Format
	next.Quality = p.Quality
	return next
}
