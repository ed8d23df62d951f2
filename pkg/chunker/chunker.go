// Package chunker splits document text into bounded, overlapping fragments that
// prefer to end on natural boundaries.
package chunker

import (
	"errors"
	"fmt"
	"unicode"
)

// Defaults, measured in runes
const (
	DefaultSize    = 2048
	DefaultOverlap = 200
)

// ErrInvalidConfig is returned for a size/overlap combination that cannot make progress
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Boundary priorities, highest first
var (
	paragraphBreaks = []string{"\n\n"}
	sentenceEnds    = []string{". ", "! ", "? ", ".\n", "!\n", "?\n", "。", "！", "？"}
	clauseSeps      = []string{"; ", ", ", ": ", ";\n", ",\n", ":\n", "，", "；"}
)

// Chunker is a pure text splitter. It is safe for concurrent use.
type Chunker struct {
	size     int
	overlap  int
	lookback int
}

// New creates a chunker producing fragments of at most size runes where consecutive
// fragments share exactly overlap runes.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidConfig, size, overlap)
	}
	lookback := size / 2
	if lookback < 1 {
		lookback = 1
	}
	return &Chunker{size: size, overlap: overlap, lookback: lookback}, nil
}

// Size returns the maximum fragment length in runes
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of runes shared by consecutive fragments
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the ordered fragments of text. Empty input yields no fragments.
//
// Dropping the first Overlap() runes of every fragment after the first and
// concatenating the rest reproduces text exactly.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return []string{}
	}

	var fragments []string
	start := 0
	for {
		end := start + c.size
		if end >= n {
			fragments = append(fragments, string(runes[start:n]))
			return fragments
		}

		cut := c.findCut(runes, start, end)
		fragments = append(fragments, string(runes[start:cut]))
		start = cut - c.overlap
	}
}

// findCut picks the fragment end in (start+overlap, end]. The window searched is the
// last lookback runes before end; the latest boundary of the highest priority wins.
func (c *Chunker) findCut(runes []rune, start, end int) int {
	// The cut must leave the next fragment starting after start
	low := start + c.overlap + 1
	if end-c.lookback > low {
		low = end - c.lookback
	}

	for _, seps := range [][]string{paragraphBreaks, sentenceEnds, clauseSeps} {
		if cut, ok := lastSeparator(runes, low, end, seps); ok {
			return cut
		}
	}
	if cut, ok := lastWhitespace(runes, low, end); ok {
		return cut
	}
	// No boundary at all; hard cut
	return end
}

// lastSeparator returns the largest cut in [low, end] such that runes[:cut] ends with one of seps
func lastSeparator(runes []rune, low, end int, seps []string) (int, bool) {
	for cut := end; cut >= low; cut-- {
		for _, sep := range seps {
			if endsWith(runes[:cut], sep) {
				return cut, true
			}
		}
	}
	return 0, false
}

func lastWhitespace(runes []rune, low, end int) (int, bool) {
	for cut := end; cut >= low && cut > 0; cut-- {
		if unicode.IsSpace(runes[cut-1]) {
			return cut, true
		}
	}
	return 0, false
}

func endsWith(runes []rune, sep string) bool {
	s := []rune(sep)
	if len(s) > len(runes) {
		return false
	}
	tail := runes[len(runes)-len(s):]
	for i := range s {
		if tail[i] != s[i] {
			return false
		}
	}
	return true
}

// Join reverses Split by dropping the overlap prefix of every fragment after the first
func Join(fragments []string, overlap int) string {
	var out []rune
	for i, f := range fragments {
		r := []rune(f)
		if i > 0 {
			if overlap > len(r) {
				r = nil
			} else {
				r = r[overlap:]
			}
		}
		out = append(out, r...)
	}
	return string(out)
}
