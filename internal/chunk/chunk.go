// Package chunk splits document text into overlapping fixed-size windows.
package chunk

import (
	"fmt"
	"strings"
)

// DefaultSize is the default number of characters per chunk.
const DefaultSize = 1000

// DefaultOverlap is the default number of characters shared by consecutive chunks.
const DefaultOverlap = 200

// Splitter cuts text into windows of at most Size runes, each starting
// Size-Overlap runes after the previous one.
type Splitter struct {
	size    int
	overlap int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSize sets the chunk size in characters.
func WithSize(size int) Option {
	return func(s *Splitter) { s.size = size }
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) { s.overlap = overlap }
}

// New returns a Splitter; size must be positive and overlap in [0, size).
func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{size: DefaultSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(s)
	}
	if s.size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", s.size)
	}
	if s.overlap < 0 || s.overlap >= s.size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", s.size, s.overlap)
	}
	return s, nil
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the windows of text in order. Windows holding only
// whitespace are dropped; the last window ends exactly at the end of text.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	step := s.size - s.overlap
	out := make([]string, 0, n/step+1)
	for start := 0; ; start += step {
		end := min(start+s.size, n)
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) != "" {
			out = append(out, piece)
		}
		if end == n {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
