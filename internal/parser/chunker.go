package parser

import (
	"unicode"

	"health-rag/internal/models"
)

const (
	DefaultChunkSize    = 1000 // runes
	DefaultChunkOverlap = 150  // runes
)

// SplitText cuts content into windows of at most maxChars runes where each
// window starts exactly overlapChars runes before the previous one ended.
// The end of a window is pulled back to whitespace found within its last
// 10%, so dropping the first overlapChars runes of every window but the
// first and concatenating gives back content unchanged.
func SplitText(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 || content == "" {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	runes := []rune(content)
	n := len(runes)
	if n <= maxChars {
		return []string{content}
	}

	var chunks []string
	start := 0
	for {
		end := min(start+maxChars, n)

		if end < n {
			// the window must stay longer than the overlap or start would not advance
			lookBack := min(maxChars/10, end-start-overlapChars-1)
			for i := end - 1; i >= end-lookBack; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i + 1
					break
				}
			}
		}

		chunks = append(chunks, string(runes[start:end]))
		if end >= n {
			break
		}
		start = end - overlapChars
	}
	return chunks
}

// SplitDocuments chunks every document independently. Chunk ids restart at
// 1 for each document and offsets are rune offsets into its content.
func SplitDocuments(docs []models.Document, maxChars, overlapChars int) []models.Chunk {
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	var chunks []models.Chunk
	for _, doc := range docs {
		offset := 0
		for i, s := range SplitText(doc.Content, maxChars, overlapChars) {
			chunks = append(chunks, models.Chunk{
				Content:    s,
				Source:     doc.Source,
				PageNumber: doc.PageNumber,
				ChunkID:    i + 1,
				Offset:     offset,
			})
			offset += len([]rune(s)) - overlapChars
		}
	}
	return chunks
}

// JoinChunks reverses SplitText: every chunk after the first loses its
// leading overlapChars runes.
func JoinChunks(chunks []string, overlapChars int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c)
		if i > 0 {
			r = r[min(overlapChars, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}
