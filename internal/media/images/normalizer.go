// Package images normalizes, inspects and exports meme images.
package images

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DefaultMaxDimension bounds the longer side of stored images.
const DefaultMaxDimension = 512

const jpegQuality = 90

// Normalizer downsizes images whose longer side exceeds MaxDimension while
// keeping their format and animation.
type Normalizer struct {
	maxDim int
	logger *slog.Logger
}

// NewNormalizer creates a normalizer. A non-positive maxDim selects DefaultMaxDimension.
func NewNormalizer(maxDim int, logger *slog.Logger) *Normalizer {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{maxDim: maxDim, logger: logger}
}

// MaxDimension returns the configured bound.
func (n *Normalizer) MaxDimension() int {
	return n.maxDim
}

// Normalize returns the normalized bytes and whether they differ from the input.
// It never fails: anything it cannot decode or re-encode is returned as is.
func (n *Normalizer) Normalize(data []byte) ([]byte, bool) {
	out, err := n.normalize(data)
	if err != nil {
		n.logger.Debug("normalize: passing image through", "size", len(data), "error", err)
		return data, false
	}
	if out == nil {
		return data, false
	}
	return out, true
}

// normalize returns nil bytes when no change is needed.
func (n *Normalizer) normalize(data []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if max(cfg.Width, cfg.Height) <= n.maxDim {
		return nil, nil
	}
	w, h := scaledSize(cfg.Width, cfg.Height, n.maxDim)

	switch format {
	case "gif":
		return n.resizeGIF(data, w, h)
	case "png", "jpeg":
		return n.resizeStatic(data, format, w, h)
	default:
		// No encoder for this format (webp); keep the original.
		return nil, nil
	}
}

func (n *Normalizer) resizeStatic(data []byte, format string, w, h int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, dst)
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// resizeGIF composites every frame onto the logical screen, scales the
// composite and requantizes it against the frame's own palette. Output frames
// cover the full canvas, so each one clears to background after display.
func (n *Normalizer) resizeGIF(data []byte, w, h int) ([]byte, error) {
	src, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	if len(src.Image) == 0 {
		return nil, fmt.Errorf("gif has no frames")
	}

	screen := image.Rect(0, 0, src.Config.Width, src.Config.Height)
	if screen.Empty() {
		screen = src.Image[0].Bounds()
	}
	canvas := image.NewRGBA(screen)

	out := &gif.GIF{
		Image:     make([]*image.Paletted, 0, len(src.Image)),
		Delay:     make([]int, 0, len(src.Image)),
		Disposal:  make([]byte, 0, len(src.Image)),
		LoopCount: src.LoopCount,
	}

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, frame := range src.Image {
		var saved *image.RGBA
		disposal := byte(0)
		if i < len(src.Disposal) {
			disposal = src.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			saved = image.NewRGBA(canvas.Bounds())
			copy(saved.Pix, canvas.Pix)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)

		pal := frame.Palette
		if len(pal) == 0 {
			return nil, fmt.Errorf("gif frame %d has no palette", i)
		}
		dst := image.NewPaletted(scaled.Bounds(), pal)
		draw.Draw(dst, dst.Bounds(), scaled, image.Point{}, draw.Src)

		delay := 0
		if i < len(src.Delay) {
			delay = src.Delay[i]
		}
		out.Image = append(out.Image, dst)
		out.Delay = append(out.Delay, delay)
		out.Disposal = append(out.Disposal, gif.DisposalBackground)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			copy(canvas.Pix, saved.Pix)
		}
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}
	return buf.Bytes(), nil
}

// scaledSize fits (w, h) inside a maxDim square, keeping the aspect ratio.
func scaledSize(w, h, maxDim int) (int, int) {
	longer := max(w, h)
	if longer <= maxDim {
		return w, h
	}
	nw := w * maxDim / longer
	nh := h * maxDim / longer
	return max(nw, 1), max(nh, 1)
}
