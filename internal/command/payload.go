package command

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PayloadFormat identifies how a chat message payload was encoded.
type PayloadFormat int

const (
	// FormatSegments is a JSON array of {"type", "data"} objects.
	FormatSegments PayloadFormat = iota + 1
	// FormatLegacyText is a raw string with inline [CQ:...] codes, as older
	// stored messages were written.
	FormatLegacyText
)

func (f PayloadFormat) String() string {
	switch f {
	case FormatSegments:
		return "segments"
	case FormatLegacyText:
		return "legacy_text"
	default:
		return "unknown"
	}
}

// Segment is one part of a chat message: text, image, at and so on.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Str returns the string form of a data field, or "" when absent.
func (s Segment) Str(key string) string {
	switch v := s.Data[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Payload is a decoded message in either format.
type Payload struct {
	Format   PayloadFormat
	Segments []Segment
}

// DecodePayload classifies raw by shape and decodes it. A payload that opens
// like a JSON segment array must decode as one; anything else takes the
// legacy text branch.
func DecodePayload(raw string) (Payload, error) {
	if looksLikeSegments(raw) {
		var segs []Segment
		if err := json.Unmarshal([]byte(raw), &segs); err != nil {
			return Payload{}, fmt.Errorf("decode segment payload: %w", err)
		}
		for i, seg := range segs {
			if seg.Type == "" {
				return Payload{}, fmt.Errorf("decode segment payload: segment %d has no type", i)
			}
		}
		return Payload{Format: FormatSegments, Segments: segs}, nil
	}
	return Payload{Format: FormatLegacyText, Segments: parseLegacy(raw)}, nil
}

func looksLikeSegments(raw string) bool {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "[") {
		return false
	}
	s = strings.TrimSpace(s[1:])
	return strings.HasPrefix(s, "{") || s == "]"
}

// PlainText joins the text segments.
func (p Payload) PlainText() string {
	var b strings.Builder
	for _, seg := range p.Segments {
		if seg.Type == "text" {
			b.WriteString(seg.Str("text"))
		}
	}
	return b.String()
}

// HasImage reports whether any segment is an image.
func (p Payload) HasImage() bool {
	for _, seg := range p.Segments {
		if seg.Type == "image" {
			return true
		}
	}
	return false
}

// ImageURL returns the URL of the first image segment.
func (p Payload) ImageURL() string {
	for _, seg := range p.Segments {
		if seg.Type != "image" {
			continue
		}
		if u := seg.Str("url"); u != "" {
			return u
		}
		if f := seg.Str("file"); strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
			return f
		}
	}
	return ""
}

// parseLegacy splits a raw string into text and [CQ:type,key=value] segments.
func parseLegacy(raw string) []Segment {
	var segs []Segment
	text := func(s string) {
		if s != "" {
			segs = append(segs, Segment{Type: "text", Data: map[string]any{"text": unescapeCQ(s)}})
		}
	}

	for raw != "" {
		start := strings.Index(raw, "[CQ:")
		if start < 0 {
			text(raw)
			break
		}
		end := strings.IndexByte(raw[start:], ']')
		if end < 0 {
			text(raw)
			break
		}
		text(raw[:start])
		segs = append(segs, parseCQCode(raw[start+len("[CQ:"):start+end]))
		raw = raw[start+end+1:]
	}
	return segs
}

func parseCQCode(body string) Segment {
	parts := strings.Split(body, ",")
	seg := Segment{Type: parts[0], Data: make(map[string]any, len(parts)-1)}
	for _, kv := range parts[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		seg.Data[k] = unescapeCQ(v)
	}
	return seg
}

var cqUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")

func unescapeCQ(s string) string {
	return cqUnescaper.Replace(s)
}
