package index

import (
	"fmt"
	"strings"
)

// Defaults for code chunking
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
)

var languageSeparators = map[string][]string{
	"go":         {"\nfunc ", "\ntype ", "\nvar ", "\nconst ", "\n\n", "\n", " "},
	"python":     {"\nclass ", "\ndef ", "\nasync def ", "\n\n", "\n", " "},
	"javascript": {"\nclass ", "\nfunction ", "\nconst ", "\nexport ", "\n\n", "\n", " "},
	"typescript": {"\nclass ", "\nfunction ", "\nconst ", "\nexport ", "\ninterface ", "\n\n", "\n", " "},
	"markdown":   {"\n## ", "\n### ", "\n\n", "\n", " "},
}

var defaultSeparators = []string{
	"\nclass ", "\ndef ", "\nasync def ", "\nfunction ", "\nconst ", "\nexport ", "\n\n", "\n", " ",
}

// Piece is a span of a file produced by the chunker
type Piece struct {
	Text      string
	StartLine int
	EndLine   int
}

// Chunker splits text on language-aware boundaries into overlapping pieces
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker returns a chunker, falling back to defaults for non-positive values
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return Chunker{Size: size, Overlap: overlap}
}

type span struct{ start, end int }

// Split cuts text into pieces no longer than Size bytes
func (c Chunker) Split(text, language string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	seps, ok := languageSeparators[language]
	if !ok {
		seps = defaultSeparators
	}

	segments := c.segments(text, span{0, len(text)}, seps)
	var pieces []Piece
	for _, s := range c.merge(segments) {
		body := text[s.start:s.end]
		if strings.TrimSpace(body) == "" {
			continue
		}
		startLine := strings.Count(text[:s.start], "\n") + 1
		endLine := startLine + strings.Count(strings.TrimRight(body, "\n"), "\n")
		pieces = append(pieces, Piece{Text: body, StartLine: startLine, EndLine: endLine})
	}
	return pieces
}

// segments recursively splits a span until every part fits
func (c Chunker) segments(text string, s span, seps []string) []span {
	if s.end-s.start <= c.Size {
		return []span{s}
	}

	for i, sep := range seps {
		cuts := splitBefore(text[s.start:s.end], sep)
		if len(cuts) <= 1 {
			continue
		}
		var out []span
		offset := s.start
		for _, n := range cuts {
			part := span{offset, offset + n}
			offset += n
			if part.end-part.start > c.Size {
				out = append(out, c.segments(text, part, seps[i+1:])...)
			} else {
				out = append(out, part)
			}
		}
		return out
	}

	// no separator left: hard cut
	var out []span
	for start := s.start; start < s.end; start += c.Size {
		out = append(out, span{start, min(start+c.Size, s.end)})
	}
	return out
}

// splitBefore returns part lengths when cutting text right before each sep occurrence
func splitBefore(text, sep string) []int {
	var lengths []int
	last := 0
	for i := 1; i < len(text); {
		j := strings.Index(text[i:], sep)
		if j < 0 {
			break
		}
		pos := i + j
		lengths = append(lengths, pos-last)
		last = pos
		i = pos + len(sep)
	}
	lengths = append(lengths, len(text)-last)
	return lengths
}

// merge packs consecutive segments into chunks, repeating up to Overlap bytes of tail
func (c Chunker) merge(segs []span) []span {
	var chunks []span
	i := 0
	for i < len(segs) {
		j := i
		for j+1 < len(segs) && segs[j+1].end-segs[i].start <= c.Size {
			j++
		}
		end := segs[j].end
		chunks = append(chunks, span{segs[i].start, end})
		if j+1 >= len(segs) {
			break
		}

		next := j + 1
		for k := j; k > i && end-segs[k].start <= c.Overlap; k-- {
			next = k
		}
		i = next
	}
	return chunks
}

// Header prefixes chunk text with its location for embedding and prompts
func Header(path, language string, startLine, endLine int) string {
	return fmt.Sprintf("File: %s (%s)\nLines: %d-%d\n---\n", path, language, startLine, endLine)
}
