package imagehash

// Comparator applies the duplicate threshold. The zero value treats only
// identical hashes as the same image.
type Comparator struct {
	threshold int
}

// NewComparator returns a comparator with the threshold clamped to [0, Bits].
func NewComparator(threshold int) Comparator {
	switch {
	case threshold < 0:
		threshold = 0
	case threshold > Bits:
		threshold = Bits
	}
	return Comparator{threshold: threshold}
}

// Threshold returns the largest distance treated as a duplicate.
func (c Comparator) Threshold() int {
	return c.threshold
}

// Same reports whether a and b are within the threshold.
func (c Comparator) Same(a, b Hash) bool {
	return Distance(a, b) <= c.threshold
}

// Matcher returns a predicate over stored hash strings that matches hashes
// within the threshold of target. Stored hashes that fail to parse never match.
func (c Comparator) Matcher(target Hash) func(stored string) bool {
	return func(stored string) bool {
		h, err := Parse(stored)
		if err != nil {
			return false
		}
		return c.Same(target, h)
	}
}

// SameString compares two stored hash strings.
func (c Comparator) SameString(a, b string) bool {
	ha, err := Parse(a)
	if err != nil {
		return false
	}
	return c.Matcher(ha)(b)
}
