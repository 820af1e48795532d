package irc

import (
	"regexp"
	"strings"
)

// mIRC color sequence: \x03 with up to two foreground digits and an
// optional comma-separated background pair. A bare \x03 resets colors and
// is stripped as well.
var colorSequence = regexp.MustCompile("\x03\\d{0,2}(?:,\\d{1,2})?")

const styleChars = "\x02\x1f\x1d\x16\x1e\x11"

// stripColorsAndStyle removes mIRC color sequences and style control
// characters from line.
//
// Style characters are matched as pairs: a pair that encloses non-empty
// text is removed together with its content kept, a pair that encloses
// nothing is left alone, and any character left unmatched at the end is
// removed. The \x0f reset participates in the same matching.
func stripColorsAndStyle(line string) string {
	return stripStyle(stripColors(line))
}

func stripColors(line string) string {
	return colorSequence.ReplaceAllString(line, "")
}

func stripStyle(line string) string {
	type open struct {
		char byte
		pos  int
	}
	var stack []open
	b := []byte(line)
	for i := 0; i < len(b); i++ {
		c := b[i]
		if strings.IndexByte(styleChars, c) < 0 && c != '\x0f' {
			continue
		}
		if n := len(stack); n > 0 && stack[n-1].char == c {
			start := stack[n-1].pos
			stack = stack[:n-1]
			if i-start > 1 {
				// drop both ends of the pair, keep the enclosed text
				b = append(b[:i], b[i+1:]...)
				b = append(b[:start], b[start+1:]...)
				i -= 2
			}
			continue
		}
		stack = append(stack, open{char: c, pos: i})
	}
	for i := len(stack) - 1; i >= 0; i-- {
		p := stack[i].pos
		b = append(b[:p], b[p+1:]...)
	}
	return string(b)
}
