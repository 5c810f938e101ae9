package bot

import (
	"strings"
	"unicode"
)

// maxMessageLength is Discord's message limit in characters
const maxMessageLength = 2000

// splitMessage splits text into chunks of at most maxLen characters.
// It prefers paragraph, then line, then word boundaries and never cuts a rune.
func splitMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			parts = append(parts, string(runes))
			break
		}

		cut := findSplitPoint(runes, maxLen)
		part := strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
		if part != "" {
			parts = append(parts, part)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}

	return parts
}

// findSplitPoint returns the rune index to cut at
func findSplitPoint(runes []rune, maxLen int) int {
	window := string(runes[:maxLen])
	floor := maxLen / 2

	for _, sep := range []string{"\n\n", "\n", " "} {
		if idx := strings.LastIndex(window, sep); idx >= 0 {
			if at := len([]rune(window[:idx])) + len([]rune(sep)); at > floor {
				return at
			}
		}
	}

	// Hard split
	return maxLen
}
