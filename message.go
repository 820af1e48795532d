package irc

import (
	"strings"
)

// Message is a single parsed IRC line.
//
// Command holds the canonical name of the command: three-digit numerics
// are aliased ("001" becomes "rpl_welcome"), everything else is the verb
// as received. RawCommand always holds the literal token from the wire.
type Message struct {
	// Prefix is the raw message prefix without the leading ':', or ""
	// when the line carried none.
	Prefix string

	// Nick, User and Host are filled when the prefix was a user mask
	// (nick!user@host). Server is filled when it was a server name.
	Nick   string
	User   string
	Host   string
	Server string

	Command     string
	RawCommand  string
	CommandType CommandType

	Args []string

	// Raw is the line as parsed, after optional color stripping.
	Raw string
}

// ParseMessage decodes a single line (without its CRLF) into a Message.
// When stripColors is set, mIRC color and style sequences are removed
// before parsing.
func ParseMessage(line string, stripColors bool) *Message {
	if stripColors {
		line = stripColorsAndStyle(line)
	}
	msg := &Message{Raw: line}

	rest := line
	if strings.HasPrefix(rest, ":") {
		var prefix string
		prefix, rest, _ = strings.Cut(rest[1:], " ")
		msg.Prefix = prefix
		if bang := strings.IndexByte(prefix, '!'); bang >= 0 && strings.IndexByte(prefix, '@') > bang {
			at := strings.IndexByte(prefix, '@')
			msg.Nick = prefix[:bang]
			msg.User = prefix[bang+1 : at]
			msg.Host = prefix[at+1:]
		} else {
			msg.Server = prefix
		}
		rest = strings.TrimLeft(rest, " ")
	}

	cmd, rest, _ := strings.Cut(rest, " ")
	msg.RawCommand = cmd
	msg.Command = aliasCommand(cmd)
	msg.CommandType = commandTypeFor(cmd)

	rest = strings.TrimLeft(rest, " ")
	for rest != "" {
		if strings.HasPrefix(rest, ":") {
			msg.Args = append(msg.Args, rest[1:])
			break
		}
		var arg string
		arg, rest, _ = strings.Cut(rest, " ")
		msg.Args = append(msg.Args, arg)
		rest = strings.TrimLeft(rest, " ")
	}
	return msg
}

// String re-serializes the message into wire form without the CRLF.
// The final argument is written as a trailing parameter whenever it is
// empty, contains a space, or begins with ':'.
func (m *Message) String() string {
	var b strings.Builder
	if m.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(m.RawCommand)
	for i, arg := range m.Args {
		b.WriteByte(' ')
		if i == len(m.Args)-1 && needsTrailing(arg) {
			b.WriteByte(':')
		}
		b.WriteString(arg)
	}
	return b.String()
}

// needsTrailing reports whether arg must be sent as a trailing parameter.
func needsTrailing(arg string) bool {
	return arg == "" || strings.HasPrefix(arg, ":") || strings.ContainsAny(arg, " \t")
}
