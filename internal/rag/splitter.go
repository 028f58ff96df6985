package rag

import "strings"

// DefaultSeparators go from coarsest to finest. The empty separator splits
// into single characters, so splitting always terminates.
var DefaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

// Splitter breaks text into chunks of at most ChunkSize bytes, carrying up
// to ChunkOverlap trailing bytes of each chunk into the next.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

func NewSplitter(size, overlap int) *Splitter {
	if overlap >= size {
		overlap = 0
	}
	return &Splitter{ChunkSize: size, ChunkOverlap: overlap, Separators: DefaultSeparators}
}

// Split returns the chunks of text in document order.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	return s.merge(s.pieces(text, s.Separators))
}

// pieces splits text on the first separator present, recursing into any
// piece that would still not fit with the next finer separator.
func (s *Splitter) pieces(text string, seps []string) []string {
	if len(text) <= s.ChunkSize || len(seps) == 0 {
		return []string{text}
	}
	sep, rest := seps[0], seps[1:]

	if sep == "" {
		return splitRunes(text)
	}
	if !strings.Contains(text, sep) {
		return s.pieces(text, rest)
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if p == "" {
			continue
		}
		// The separator stays attached so merged chunks keep their layout.
		if i < len(parts)-1 {
			p += sep
		}
		if len(p) > s.ChunkSize {
			out = append(out, s.pieces(p, rest)...)
			continue
		}
		out = append(out, p)
	}
	return out
}

// merge greedily concatenates pieces into chunks no larger than ChunkSize.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var cur strings.Builder

	for _, p := range pieces {
		if cur.Len()+len(p) <= s.ChunkSize {
			cur.WriteString(p)
			continue
		}
		if cur.Len() > 0 {
			prev := cur.String()
			chunks = append(chunks, prev)
			cur.Reset()
			cur.WriteString(s.overlap(prev, len(p)))
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// overlap returns the tail of prev to carry forward, shortened so that the
// next piece still fits.
func (s *Splitter) overlap(prev string, next int) string {
	n := min(s.ChunkOverlap, s.ChunkSize-next, len(prev))
	if n <= 0 {
		return ""
	}
	tail := prev[len(prev)-n:]
	// Start the carried tail on a rune boundary.
	for len(tail) > 0 && !isRuneStart(tail[0]) {
		tail = tail[1:]
	}
	return tail
}

func splitRunes(text string) []string {
	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
