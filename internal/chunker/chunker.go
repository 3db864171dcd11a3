// Package chunker splits transcripts into ordered Telegram-sized chunks.
package chunker

import (
	"fmt"
	"unicode"
)

// MessageLimit leaves headroom below Telegram's 4096-character maximum for the
// "[i/n] " prefix.
const MessageLimit = 4096 - 7

// Split greedily cuts text into chunks of at most limit characters, preferring
// to cut at whitespace so words stay intact. When a single token is longer
// than the limit, the cut is forced at the limit instead of scanning past the
// chunk start. Multi-chunk results carry a 1-based "[i/n] " prefix; a single
// chunk is returned as-is.
func Split(text string, limit int) []string {
	var chunks []string
	remaining := []rune(text)
	for len(remaining) > 0 {
		if len(remaining) <= limit {
			chunks = append(chunks, string(remaining))
			break
		}

		end := limit
		for end > 0 && !unicode.IsSpace(remaining[end-1]) {
			end--
		}
		if end == 0 {
			end = limit
		}
		chunks = append(chunks, string(remaining[:end]))
		remaining = remaining[end:]
	}

	if len(chunks) <= 1 {
		return chunks
	}
	result := make([]string, len(chunks))
	for i, chunk := range chunks {
		result[i] = fmt.Sprintf("[%d/%d] %s", i+1, len(chunks), chunk)
	}
	return result
}
