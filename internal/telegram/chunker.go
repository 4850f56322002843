package telegram

import (
	"strings"
	"unicode"
)

// maxMessageChars is the chunk budget for outgoing Telegram messages, kept
// under the API's 4096-character ceiling to leave room for formatting.
const maxMessageChars = 3500

// chunkMessage splits text into sendable pieces, preferring natural breaks in
// this order: paragraph break, newline, sentence ending, word boundary, hard
// cut.
func chunkMessage(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = maxMessageChars
	}
	if text == "" {
		return nil
	}
	if len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxSize {
		breakIdx := findBreakPoint(remaining, maxSize)
		if breakIdx <= 0 {
			breakIdx = maxSize
		}
		chunk := strings.TrimRightFunc(remaining[:breakIdx], unicode.IsSpace)
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeftFunc(remaining[breakIdx:], unicode.IsSpace)
	}
	if remaining = strings.TrimSpace(remaining); remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func findBreakPoint(text string, maxSize int) int {
	if len(text) <= maxSize {
		return len(text)
	}
	window := text[:maxSize]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 1
	}
	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return idx + 1
	}
	for _, ending := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, ending); idx > 0 {
			return idx + 1
		}
	}
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
		return idx
	}
	return maxSize
}
