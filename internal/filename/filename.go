// Package filename renders export output names from a small template
// language: {name}, {width}, {height}, {date} and {q} placeholders.
// Rendered names are sanitized to a single path token so a template
// can never escape the outputs prefix.
package filename

import (
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/easelhq/easel/internal/domain"
)

const DefaultTemplate = "{name}-{width}x{height}"

// Values feeds one render of a template.
type Values struct {
	Name    string
	Width   int
	Height  int
	Quality float64
	Format  string
	Date    time.Time
}

// Render substitutes the placeholders and appends the extension for
// the output format. An empty template falls back to DefaultTemplate;
// a zero Date falls back to the current day.
func Render(template string, v Values) string {
	t := strings.TrimSpace(template)
	if t == "" {
		t = DefaultTemplate
	}

	date := v.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	r := strings.NewReplacer(
		"{name}", baseName(v.Name),
		"{width}", strconv.Itoa(v.Width),
		"{height}", strconv.Itoa(v.Height),
		"{date}", date.Format("2006-01-02"),
		"{q}", strconv.Itoa(qualityPercent(v.Quality)),
	)

	return sanitizeToken(r.Replace(t)) + "." + Extension(v.Format)
}

// Extension maps an output format to its conventional file extension.
func Extension(format string) string {
	switch format {
	case domain.FormatJPEG:
		return "jpg"
	case domain.FormatWEBP:
		return "webp"
	case domain.FormatAVIF:
		return "avif"
	default:
		return "png"
	}
}

// baseName strips any directory components and the extension from the
// source image name.
func baseName(name string) string {
	base := path.Base(strings.TrimSpace(name))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		return "image"
	}
	return base
}

func qualityPercent(q float64) int {
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	return int(math.Round(q * 100))
}

func sanitizeToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "image"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
