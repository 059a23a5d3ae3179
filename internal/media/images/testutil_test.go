package images

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), nil))
	return buf.Bytes()
}

// encodeTestGIF builds an animated GIF whose frames alternate colors. Frame i
// has delay (i+1)*10.
func encodeTestGIF(t *testing.T, w, h, frames, loop int) []byte {
	t.Helper()
	g := &gif.GIF{LoopCount: loop}
	for i := range frames {
		frame := image.NewPaletted(image.Rect(0, 0, w, h), palette.Plan9)
		c := uint8(i * 40)
		for y := range h {
			for x := range w {
				frame.Set(x, y, color.RGBA{R: c, G: 255 - c, B: uint8(x % 256), A: 255})
			}
		}
		g.Image = append(g.Image, frame)
		g.Delay = append(g.Delay, (i+1)*10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	return buf.Bytes()
}
