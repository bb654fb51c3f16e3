package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// LengthFunc measures text for chunk sizing.
type LengthFunc func(string) int

// CharLength counts runes.
func CharLength(s string) int { return utf8.RuneCountInString(s) }

// TokenLength counts tokens in the named tiktoken encoding.
func TokenLength(encoding string) (LengthFunc, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %q: %w", encoding, err)
	}
	return func(s string) int { return len(enc.Encode(s, nil, nil)) }, nil
}

// defaultSeparators are tried in order: paragraphs, lines, words, runes.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Piece is one split of a section with the 1-based lines it spans.
type Piece struct {
	Text     string
	FromLine int
	ToLine   int
}

// Splitter cuts text into pieces no longer than size, preferring paragraph,
// then line, then word boundaries. Consecutive pieces share up to overlap.
type Splitter struct {
	size       int
	overlap    int
	length     LengthFunc
	separators []string
}

// NewSplitter creates a Splitter. A nil length counts runes.
func NewSplitter(size, overlap int, length LengthFunc) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size)
	}
	if length == nil {
		length = CharLength
	}
	return &Splitter{size: size, overlap: overlap, length: length, separators: defaultSeparators}, nil
}

// Split returns the pieces of text along with their line ranges in text.
func (s *Splitter) Split(text string) []Piece {
	texts := s.split(text, s.separators)

	pieces := make([]Piece, 0, len(texts))
	searchFrom := 0
	lastFrom := 1
	for _, t := range texts {
		from := lastFrom
		if idx := strings.Index(text[searchFrom:], t); idx >= 0 {
			abs := searchFrom + idx
			from = strings.Count(text[:abs], "\n") + 1
			searchFrom = abs + 1
		}
		pieces = append(pieces, Piece{
			Text:     t,
			FromLine: from,
			ToLine:   from + strings.Count(t, "\n"),
		})
		lastFrom = from
	}
	return pieces
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var splits []string
	for _, part := range strings.Split(text, separator) {
		if part != "" {
			splits = append(splits, part)
		}
	}

	var out, good []string
	for _, part := range splits {
		if s.length(part) < s.size {
			good = append(good, part)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, part)
		} else {
			out = append(out, s.split(part, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good, separator)...)
	}
	return out
}

// merge joins small splits into pieces up to size, carrying the trailing
// splits of each piece into the next one as overlap.
func (s *Splitter) merge(splits []string, separator string) []string {
	sepLen := s.length(separator)
	joined := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var out, current []string
	total := 0
	for _, d := range splits {
		l := s.length(d)
		if total+l+joined(len(current)) > s.size {
			if len(current) > 0 {
				if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
					out = append(out, doc)
				}
				for len(current) > 0 && (total > s.overlap || (total > 0 && total+l+joined(len(current)) > s.size)) {
					total -= s.length(current[0]) + joined(len(current)-1)
					current = current[1:]
				}
			}
		}
		current = append(current, d)
		total += l + joined(len(current)-1)
	}
	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		out = append(out, doc)
	}
	return out
}
