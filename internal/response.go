package internal

import (
	"regexp"
	"strings"
)

var (
	descriptionLine = regexp.MustCompile(`(?i)^\s*\**(description|opis)\**\s*:\s*(.*)$`)
	emptyInline     = regexp.MustCompile(`^[\s*]*$`)
)

// ProcessResponse extracts the optional DESCRIPTION/OPIS line from the first
// chunk's response and returns the remaining body. Later chunks are returned
// unchanged with an empty description.
func ProcessResponse(text string, firstChunk bool) (body, description string) {
	if !firstChunk {
		return text, ""
	}

	lines := splitLines(text)
	for i, line := range lines {
		m := descriptionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		// Inline value on the marker line
		if inline := strings.TrimSpace(m[2]); inline != "" && !emptyInline.MatchString(inline) {
			return strings.Join(lines[i+1:], "\n"), inline
		}

		// Value on the next non-blank line
		for j := i + 1; j < len(lines); j++ {
			if candidate := strings.TrimSpace(lines[j]); candidate != "" {
				return strings.Join(lines[j+1:], "\n"), candidate
			}
		}
		return strings.Join(lines[i+1:], "\n"), ""
	}

	return text, ""
}

// splitLines splits on line breaks without producing a trailing empty line
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
