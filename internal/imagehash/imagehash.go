// Package imagehash computes and compares 64-bit perceptual hashes.
//
// Two images count as the same meme when the Hamming distance between their
// hashes is at most the comparator threshold. The persisted form of a hash is
// 16 lower-case hex digits.
package imagehash

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // decoder registration
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"strconv"
	"strings"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp" // decoder registration

	"github.com/feiju-bot/feiju/internal/errors"
)

// DefaultThreshold is the largest distance still treated as a duplicate.
const DefaultThreshold = 3

// Bits is the hash width.
const Bits = 64

// Hash is a DCT perceptual hash.
type Hash uint64

// String returns the persisted form.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// Compute decodes data and hashes it. Animated GIFs hash their first frame.
func Compute(data []byte) (Hash, error) {
	if len(data) == 0 {
		return 0, errors.CorruptMedia("empty image")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeCorruptMedia, "decode image")
	}
	return FromImage(img)
}

// FromImage hashes an already decoded image.
func FromImage(img image.Image) (Hash, error) {
	ph, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeCorruptMedia, "perception hash")
	}
	return Hash(ph.GetHash()), nil
}

// Parse reads a stored hash. It accepts the bare 16 hex digit form and the
// kind-prefixed "p:<hex>" form.
func Parse(s string) (Hash, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "p:"); ok {
		s = rest
	}
	if len(s) != Bits/4 {
		return 0, fmt.Errorf("hash %q: want %d hex digits", s, Bits/4)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("hash %q: %w", s, err)
	}
	return Hash(v), nil
}

// Distance returns the Hamming distance between two hashes.
func Distance(a, b Hash) int {
	d, err := goimagehash.NewImageHash(uint64(a), goimagehash.PHash).
		Distance(goimagehash.NewImageHash(uint64(b), goimagehash.PHash))
	if err != nil {
		// Only possible for mismatched kinds, which cannot happen here.
		return Bits
	}
	return d
}
