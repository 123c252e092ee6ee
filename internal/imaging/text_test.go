package imaging

import (
	"image"
	"image/color"
	"reflect"
	"testing"
	"time"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxChars int
		want     []string
	}{
		{"fits", "hello world", 20, []string{"hello world"}},
		{"breaks on space", "hello world", 7, []string{"hello", "world"}},
		{"splits long word", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"keeps blank lines", "a\n\nb", 10, []string{"a", "", "b"}},
		{"collapses whitespace", "a   b", 10, []string{"a b"}},
		{"zero width", "abc", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Wrap(tt.in, tt.maxChars)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Wrap(%q, %d) = %q, want %q", tt.in, tt.maxChars, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("example.com", 20); got != "example.com" {
		t.Errorf("short string changed: %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncate: got %q, want abc...", got)
	}
	if got := truncate("abcdef", 2); got != "ab" {
		t.Errorf("tiny truncate: got %q, want ab", got)
	}
}

func countNot(img image.Image, bg color.Color, region image.Rectangle) int {
	br, bgc, bb := rgb8(bg)
	n := 0
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			r, g, b := rgb8(img.At(x, y))
			if r != br || g != bgc || b != bb {
				n++
			}
		}
	}
	return n
}

func TestCardRender(t *testing.T) {
	card := Card{
		Width:      200,
		Height:     120,
		Fill:       color.White,
		Foreground: color.Black,
		Body:       []string{"Hello"},
		Footer:     []string{"example.com 200x120"},
	}
	img := card.Render()

	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 120 {
		t.Fatalf("dimensions: got %v", img.Bounds())
	}

	// Body text leaves ink near the top-left.
	if countNot(img, color.White, image.Rect(0, 0, 100, 30)) == 0 {
		t.Error("expected body text pixels near the top")
	}

	// Footer strip darkens the bottom edge.
	r, g, b := rgb8(img.At(199, 119))
	if r == 255 && g == 255 && b == 255 {
		t.Error("expected footer strip at the bottom edge")
	}

	// Nothing is drawn in the untouched middle right.
	if n := countNot(img, color.White, image.Rect(150, 40, 200, 60)); n != 0 {
		t.Errorf("unexpected pixels in empty region: %d", n)
	}
}

func TestCardRender_Overflow(t *testing.T) {
	body := make([]string, 50)
	for i := range body {
		body[i] = "line"
	}
	card := Card{Width: 100, Height: 60, Body: body, Footer: []string{"x"}}

	img := card.Render()
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 60 {
		t.Fatalf("dimensions: got %v", img.Bounds())
	}
}

func TestCardRender_Degenerate(t *testing.T) {
	img := Card{}.Render()
	if img.Bounds().Dx() != 1 || img.Bounds().Dy() != 1 {
		t.Errorf("zero card: got %v, want 1x1", img.Bounds())
	}
}

func TestGradient(t *testing.T) {
	from, to := TimeColors(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	img := Gradient(64, 32, from, to)

	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Fatalf("dimensions: got %v", img.Bounds())
	}

	r0, g0, b0 := rgb8(img.At(0, 0))
	r1, g1, b1 := rgb8(img.At(63, 31))
	if r0 == r1 && g0 == g1 && b0 == b1 {
		t.Error("gradient corners should differ")
	}

	// Pixels on the same diagonal share a color.
	if img.At(10, 0) != img.At(0, 10) {
		t.Error("diagonal pixels should match")
	}
}

func TestTimeColors_VaryWithTime(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a, _ := TimeColors(base)
	b, _ := TimeColors(base.Add(7 * time.Second))
	if a == b {
		t.Error("different capture times should yield different colors")
	}
}
