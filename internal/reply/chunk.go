package reply

import "strings"

// Chunk splits text into pieces no longer than maxLen, preferring to break
// at a newline, then at a word boundary, and only splitting mid-word when a
// single word itself exceeds maxLen. It never returns an empty chunk and
// never returns more splits than necessary.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		cut := bestCut(remaining, maxLen)
		piece := remaining[:cut]
		if trimmed := strings.TrimRight(piece, " \n"); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		remaining = strings.TrimLeft(remaining[cut:], " \n")
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// bestCut finds the split point for the first maxLen bytes of s: the last
// newline within range, else the last space, else maxLen itself (a
// mid-word split, used only when a single word is longer than maxLen).
func bestCut(s string, maxLen int) int {
	window := s[:maxLen]
	if i := strings.LastIndexByte(window, '\n'); i > 0 {
		return i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i > 0 {
		return i + 1
	}
	return maxLen
}
