package filename

import (
	"testing"
	"time"

	"github.com/easelhq/easel/internal/domain"
)

func TestRenderSubstitutesAllPlaceholders(t *testing.T) {
	v := Values{
		Name:    "vacation photo.png",
		Width:   800,
		Height:  600,
		Quality: 0.85,
		Format:  domain.FormatJPEG,
		Date:    time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC),
	}

	got := Render("{name}-{width}x{height}-{date}-q{q}", v)
	want := "vacation_photo-800x600-2026-03-09-q85.jpg"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRenderDefaultsTemplate(t *testing.T) {
	v := Values{Name: "logo.webp", Width: 64, Height: 64, Format: domain.FormatPNG}

	got := Render("", v)
	if got != "logo-64x64.png" {
		t.Fatalf("expected default template render, got %q", got)
	}
}

func TestRenderSanitizesPathEscapes(t *testing.T) {
	v := Values{Name: "../../etc/passwd", Width: 10, Height: 10, Format: domain.FormatPNG}

	got := Render("{name}", v)
	if got != "passwd.png" {
		t.Fatalf("expected path components stripped, got %q", got)
	}

	// Separators written into the template itself are neutralized too.
	got = Render("a/b/{width}", v)
	if got != "a_b_10.png" {
		t.Fatalf("expected separators replaced, got %q", got)
	}
}

func TestRenderEmptyNameFallsBack(t *testing.T) {
	got := Render("{name}", Values{Format: domain.FormatWEBP})
	if got != "image.webp" {
		t.Fatalf("expected fallback name, got %q", got)
	}
}

func TestExtensionPerFormat(t *testing.T) {
	cases := map[string]string{
		domain.FormatPNG:  "png",
		domain.FormatJPEG: "jpg",
		domain.FormatWEBP: "webp",
		domain.FormatAVIF: "avif",
		"":                "png",
	}
	for format, want := range cases {
		if got := Extension(format); got != want {
			t.Fatalf("extension for %q = %q, want %q", format, got, want)
		}
	}
}
