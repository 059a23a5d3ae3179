package images

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"

	"github.com/gabriel-vasile/mimetype"
)

// Info describes stored image bytes.
type Info struct {
	Format   string `json:"format"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Frames   int    `json:"frames"`
	Size     int    `json:"size"`
}

// Animated reports whether the image has more than one frame.
func (i Info) Animated() bool {
	return i.Frames > 1
}

// Probe inspects data without fully decoding static images.
func Probe(data []byte) (Info, error) {
	info := Info{
		MIMEType: mimetype.Detect(data).String(),
		Size:     len(data),
		Frames:   1,
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return info, fmt.Errorf("decode config: %w", err)
	}
	info.Format = format
	info.Width = cfg.Width
	info.Height = cfg.Height

	if format == "gif" {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return info, fmt.Errorf("decode gif: %w", err)
		}
		info.Frames = len(g.Image)
	}
	return info, nil
}

// Extension returns the file extension for a probed format.
func Extension(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "webp":
		return "." + format
	default:
		return ".bin"
	}
}
