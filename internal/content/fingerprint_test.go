package content

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFingerprintStability(t *testing.T) {
	tests := []struct {
		name string
		c    Content
	}{
		{"text", NewText("hello")},
		{"unicode text", NewText("héllo wörld — 剪贴板")},
		{"image", NewImage(testImage(16, 16, color.RGBA{R: 200, G: 10, B: 10, A: 255}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d1, err := Fingerprint(tt.c)
			require.NoError(t, err)
			d2, err := Fingerprint(tt.c)
			require.NoError(t, err)
			assert.Equal(t, d1, d2)
		})
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	a, err := Fingerprint(NewText("a"))
	require.NoError(t, err)
	b, err := Fingerprint(NewText("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	red, err := Fingerprint(NewImage(testImage(8, 8, color.RGBA{R: 255, A: 255})))
	require.NoError(t, err)
	blue, err := Fingerprint(NewImage(testImage(8, 8, color.RGBA{B: 255, A: 255})))
	require.NoError(t, err)
	assert.NotEqual(t, red, blue)
}

func TestFingerprintImageMatchesIdenticalPixels(t *testing.T) {
	// Two separately constructed buffers with the same pixels must
	// fingerprint identically.
	c := color.RGBA{R: 12, G: 140, B: 240, A: 255}
	d1, err := Fingerprint(NewImage(testImage(10, 20, c)))
	require.NoError(t, err)
	d2, err := Fingerprint(NewImage(testImage(10, 20, c)))
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestDigestString(t *testing.T) {
	d, err := Fingerprint(NewText("hello"))
	require.NoError(t, err)
	assert.Len(t, d.String(), 64)
}

func TestEmpty(t *testing.T) {
	tests := []struct {
		name string
		c    Content
		want bool
	}{
		{"empty text", NewText(""), true},
		{"text", NewText("x"), false},
		{"nil image", NewImage(nil), true},
		{"zero-area image", NewImage(image.NewRGBA(image.Rect(0, 0, 0, 0))), true},
		{"image", NewImage(testImage(1, 1, color.White)), false},
		{"zero value", Content{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Empty())
		})
	}
}
