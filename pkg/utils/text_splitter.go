package utils

import "unicode"

// SplitText splits a long string into chunks of approximately 'chunkSize' runes.
// It includes an 'overlap' to preserve context at boundaries and prefers to cut
// on whitespace found in the last fifth of a chunk.
func SplitText(text string, chunkSize int, overlap int) []string {
	runes := []rune(text)
	totalLen := len(runes)

	if chunkSize <= 0 || totalLen <= chunkSize {
		return []string{text}
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < totalLen; {
		end := start + chunkSize
		if end >= totalLen {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		end = softBoundary(runes, start, end, chunkSize/5)
		chunks = append(chunks, string(runes[start:end]))

		next := end - overlap
		if next <= start {
			next = end // overlap >= chunk, never loop in place
		}
		start = next
	}

	return chunks
}

func softBoundary(runes []rune, start, end, window int) int {
	for i := end; i > end-window && i > start+1; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
