package irc

import "strings"

// handleCtcp dispatches a CTCP-framed PRIVMSG or NOTICE. kind is
// "privmsg" or "notice". It reports whether text was CTCP-framed.
func (c *Client) handleCtcp(from, to, text, kind string, msg *Message) bool {
	if !strings.HasPrefix(text, "\x01") {
		return false
	}
	end := strings.LastIndexByte(text, '\x01')
	if end <= 0 {
		return false
	}
	inner := text[1:end]
	verb, rest, _ := strings.Cut(inner, " ")

	c.emit(CtcpEvent{name: "ctcp", From: from, To: to, Text: inner, Kind: kind, Message: msg})
	c.emit(CtcpEvent{name: "ctcp-" + kind, From: from, To: to, Text: inner, Kind: kind, Message: msg})

	if kind != "privmsg" {
		return true
	}
	switch verb {
	case "ACTION":
		c.emit(ActionEvent{Nick: from, To: to, Text: rest, Message: msg})
	case "PING":
		// echo the payload back so the peer can measure latency
		c.Ctcp(from, inner, true)
	case "VERSION":
		c.emit(CtcpEvent{name: "ctcp-version", From: from, To: to, Text: inner, Kind: kind, Message: msg})
	}
	return true
}
