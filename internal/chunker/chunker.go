// Package chunker splits document text into overlapping, size-bounded
// passages. Splitting is a pure function of the input, so re-running an
// ingestion yields identical chunk boundaries.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/m4s1t4/karen/internal/domain"
)

// defaultSeparators is the split priority: paragraph break, line break,
// sentence punctuation, comma, space, and finally a hard character cut.
var defaultSeparators = []string{"\n\n", "\n", ".", "!", "?", ",", " ", ""}

// Splitter produces chunks close to ChunkSize runes with Overlap runes
// shared between consecutive chunks.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// New creates a Splitter. Non-positive size falls back to 1000, negative
// overlap to 0; overlap is clamped below size.
func New(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split cuts text into chunks, each inheriting a copy of meta plus its
// assigned ChunkIndex and TotalChunks. A text shorter than one chunk yields
// exactly one chunk. Empty or whitespace-only text yields none.
func (s *Splitter) Split(text string, meta domain.ChunkMeta) []domain.Chunk {
	contents := s.merge(s.fragments(text, s.separators))

	chunks := make([]domain.Chunk, 0, len(contents))
	for i, content := range contents {
		m := meta
		m.ChunkIndex = i
		m.TotalChunks = len(contents)
		chunks = append(chunks, domain.Chunk{Content: content, Meta: m})
	}
	return chunks
}

// fragments recursively splits text into pieces no longer than chunkSize,
// trying each separator in priority order and descending to finer ones for
// oversized pieces. Separators stay attached to the preceding piece so that
// concatenating fragments reproduces the input.
func (s *Splitter) fragments(text string, seps []string) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}
	}

	sep := ""
	rest := []string{}
	for i, candidate := range seps {
		if candidate == "" {
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	if sep == "" {
		// No separator left: hard cut on rune boundaries.
		return cutRunes(text, s.chunkSize)
	}

	var out []string
	for _, piece := range splitKeep(text, sep) {
		if utf8.RuneCountInString(piece) <= s.chunkSize {
			out = append(out, piece)
		} else {
			out = append(out, s.fragments(piece, rest)...)
		}
	}
	return out
}

// merge packs fragments into chunks up to chunkSize, seeding each new chunk
// with trailing fragments of the previous one worth up to overlap runes.
func (s *Splitter) merge(frags []string) []string {
	var chunks []string
	var cur []string
	curLen := 0

	flush := func() {
		if joined := strings.TrimSpace(strings.Join(cur, "")); joined != "" {
			chunks = append(chunks, joined)
		}
	}

	for _, f := range frags {
		fLen := utf8.RuneCountInString(f)

		if curLen > 0 && curLen+fLen > s.chunkSize {
			flush()

			// Carry the overlap window into the next chunk.
			keep := []string{}
			keepLen := 0
			for i := len(cur) - 1; i >= 0; i-- {
				l := utf8.RuneCountInString(cur[i])
				if keepLen+l > s.overlap || keepLen+l+fLen > s.chunkSize {
					break
				}
				keep = append([]string{cur[i]}, keep...)
				keepLen += l
			}
			cur = keep
			curLen = keepLen
		}

		cur = append(cur, f)
		curLen += fLen
	}

	if curLen > 0 {
		flush()
	}
	return chunks
}

// splitKeep splits text after every occurrence of sep, keeping the separator
// at the end of each piece.
func splitKeep(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// cutRunes slices text into pieces of at most size runes.
func cutRunes(text string, size int) []string {
	var out []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}
