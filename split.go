package irc

import (
	"strings"

	"github.com/rivo/uniseg"
)

// SplitLongLines splits text into chunks of at most maxLength bytes,
// never cutting inside an extended grapheme cluster. A chunk prefers to
// end at its last space, in which case the space is consumed; a chunk
// with no space is cut hard at the cluster boundary.
func SplitLongLines(text string, maxLength int) []string {
	if text == "" {
		return nil
	}
	if maxLength <= 0 || len(text) <= maxLength {
		return []string{text}
	}
	var chunks []string
	for len(text) > maxLength {
		end := 0
		lastSpace := -1
		next := ""
		g := uniseg.NewGraphemes(text)
		for g.Next() {
			from, to := g.Positions()
			if to > maxLength {
				next = g.Str()
				break
			}
			if g.Str() == " " {
				lastSpace = from
			}
			end = to
		}
		if end == 0 {
			// a single cluster wider than the budget is sent whole
			end = len(next)
			if end >= len(text) {
				break
			}
			chunks = append(chunks, text[:end])
			text = text[end:]
			continue
		}
		switch {
		case next == " ":
			// the budget boundary lands on a space: cut there
			chunks = append(chunks, text[:end])
			text = text[end+1:]
		case lastSpace >= 0:
			chunks = append(chunks, text[:lastSpace])
			text = text[lastSpace+1:]
		default:
			chunks = append(chunks, text[:end])
			text = text[end:]
		}
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

// splitText splits user-supplied text on CR, LF or CRLF, drops empty
// lines, and splits each remaining line to the byte budget.
func splitText(text string, maxLength int) []string {
	var out []string
	for _, line := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '\r' || r == '\n'
	}) {
		out = append(out, SplitLongLines(line, maxLength)...)
	}
	return out
}
