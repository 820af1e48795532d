package irc

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// lookupEncoding resolves a charset label ("latin1", "windows-1252",
// "utf-8", …) to an encoding, or nil when the label is unknown.
func lookupEncoding(label string) encoding.Encoding {
	enc, err := htmlindex.Get(strings.ToLower(strings.TrimSpace(label)))
	if err != nil {
		return nil
	}
	return enc
}

// convertEncoding turns one raw incoming line into UTF-8 text.
//
// A configured Encoding names the charset the server speaks; the bytes
// are transcoded from it. Without one, invalid UTF-8 is decoded through
// EncodingFallback when set. Conversion errors are swallowed and the
// bytes pass through, cleaned to valid UTF-8.
func (c *Client) convertEncoding(raw []byte) string {
	if enc := c.incomingEncoding; enc != nil {
		if out, err := enc.NewDecoder().Bytes(raw); err == nil {
			return string(out)
		}
	} else if !utf8.Valid(raw) {
		if enc := c.fallbackEncoding; enc != nil {
			if out, err := enc.NewDecoder().Bytes(raw); err == nil {
				return string(out)
			}
		}
	}
	return strings.ToValidUTF8(string(raw), string(unicode.ReplacementChar))
}
