// Package fragment splits raw text into overlapping, retrieval-sized chunks.
package fragment

import "strings"

// Chunk is one emitted window, paired with the character offset into the
// original input where it begins (before trimming), so callers can store
// CharStart for later hydration.
type Chunk struct {
	Text      string
	CharStart int
}

// Split breaks text into an ordered sequence of chunks of at most chunkLen
// characters. Consecutive windows start chunkLen-overlap characters apart,
// so a chunk overlaps the previous one by at most overlap characters (less,
// or not at all, when the previous window's end was backed off to a space).
//
// If text is no longer than chunkLen, it is returned whole as a single
// chunk. Otherwise Split walks [start, end) windows, backing end off to the
// nearest preceding space so words aren't split at the trailing edge — the
// leading edge is never adjusted and may land mid-word. Output chunks are
// always non-empty after trimming.
func Split(text string, chunkLen, overlap int) []Chunk {
	runes := []rune(text)
	n := len(runes)

	if n <= chunkLen {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []Chunk{{Text: trimmed, CharStart: 0}}
	}

	var chunks []Chunk
	start := 0

	for start < n {
		end := start + chunkLen
		if end > n {
			end = n
		}

		if end < n {
			if back := lastSpace(runes, start, end); back > start {
				end = back
			}
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, Chunk{Text: piece, CharStart: start})
		}

		if end >= n {
			break
		}

		step := chunkLen - overlap
		if step <= 0 {
			step = 1
		}
		start += step
	}

	return chunks
}

// lastSpace returns the index of the rightmost space in runes[start+1:end],
// or start-1 if none exists in that range.
func lastSpace(runes []rune, start, end int) int {
	for i := end - 1; i > start; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return start - 1
}
