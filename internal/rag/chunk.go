package rag

import "strings"

// chunkText splits text into overlapping windows of size runes. Each window
// starts size-overlap runes after the previous one; blank windows are dropped.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 2
	}

	runes := []rune(strings.TrimSpace(text))
	var chunks []string
	for i := 0; i < len(runes); i += size - overlap {
		end := min(i+size, len(runes))
		if chunk := strings.TrimSpace(string(runes[i:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
