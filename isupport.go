package irc

import (
	"strconv"
	"strings"
)

// Supported is the view of server features advertised through
// RPL_ISUPPORT (005), with the RFC defaults filled in before the first
// token arrives.
type Supported struct {
	Channel struct {
		// Idlength maps channel sigils to the id length of "safe"
		// channels (IDCHAN).
		Idlength map[string]int
		Length   int
		// Limit maps channel sigils to the maximum number of such
		// channels that may be joined at once (CHANLIMIT).
		Limit map[string]int
		// Modes holds the four CHANMODES classes: A list modes,
		// B always-parameter modes, C set-only-parameter modes and
		// D parameterless modes.
		Modes struct {
			A string
			B string
			C string
			D string
		}
		Types string
	}
	Kicklength  int
	Maxlist     map[string]int
	Maxtargets  map[string]int
	Modes       int
	Nicklength  int
	Topiclength int
	Usermodes   string
	// Usermodepriority orders the PREFIX modes from most to least
	// powerful.
	Usermodepriority string
	Casemapping      CaseMapping
	// Extra collects tokens this client does not interpret.
	Extra []string
}

func newSupported() Supported {
	var s Supported
	s.Channel.Idlength = map[string]int{}
	s.Channel.Limit = map[string]int{}
	s.Channel.Types = "&#"
	s.Maxlist = map[string]int{}
	s.Maxtargets = map[string]int{}
	s.Modes = 3
	s.Nicklength = 9
	s.Casemapping = CaseMappingRFC1459
	return s
}

// applyISupport interprets a single KEY[=VALUE] token of a 005 line and
// mutates the state accordingly.
func (s *ClientState) applyISupport(token string) {
	key, value, _ := strings.Cut(token, "=")
	sup := &s.Supported
	switch key {
	case "CASEMAPPING":
		sup.Casemapping = CaseMapping(value)
	case "CHANLIMIT":
		parsePrefixedCounts(value, sup.Channel.Limit)
	case "CHANMODES":
		classes := strings.SplitN(value, ",", 4)
		dst := []*string{
			&sup.Channel.Modes.A,
			&sup.Channel.Modes.B,
			&sup.Channel.Modes.C,
			&sup.Channel.Modes.D,
		}
		for i := 0; i < len(classes) && i < len(dst); i++ {
			*dst[i] = mergeModeChars(*dst[i], classes[i])
		}
	case "CHANTYPES":
		sup.Channel.Types = value
	case "CHANNELLEN":
		sup.Channel.Length, _ = strconv.Atoi(value)
	case "IDCHAN":
		parsePrefixedCounts(value, sup.Channel.Idlength)
	case "KICKLEN":
		sup.Kicklength, _ = strconv.Atoi(value)
	case "MAXLIST":
		parsePrefixedCounts(value, sup.Maxlist)
	case "NICKLEN":
		sup.Nicklength, _ = strconv.Atoi(value)
	case "PREFIX":
		modes, symbols, ok := splitPrefixToken(value)
		if !ok {
			break
		}
		sup.Usermodepriority = modes
		for i := 0; i < len(modes) && i < len(symbols); i++ {
			s.ModeForPrefix[symbols[i]] = modes[i]
			s.PrefixForMode[modes[i]] = symbols[i]
		}
		// prefix modes consume a parameter, like class B modes
		sup.Channel.Modes.B = mergeModeChars(sup.Channel.Modes.B, modes)
	case "STATUSMSG":
		// parsed and dropped
	case "TARGMAX":
		for _, pair := range strings.Split(value, ",") {
			cmd, n, _ := strings.Cut(pair, ":")
			if cmd == "" {
				continue
			}
			// no count means the target count is unlimited
			limit := 0
			if n != "" {
				limit, _ = strconv.Atoi(n)
			}
			sup.Maxtargets[cmd] = limit
		}
	case "TOPICLEN":
		sup.Topiclength, _ = strconv.Atoi(value)
	default:
		// one entry per unknown key, whatever value it arrives with
		for _, known := range sup.Extra {
			knownKey, _, _ := strings.Cut(known, "=")
			if knownKey == key {
				return
			}
		}
		sup.Extra = append(sup.Extra, token)
	}
}

// parsePrefixedCounts parses "pfx:n[,pfx:n…]" CHANLIMIT-style values into
// dst, one entry per sigil character.
func parsePrefixedCounts(value string, dst map[string]int) {
	for _, pair := range strings.Split(value, ",") {
		prefixes, n, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		count, err := strconv.Atoi(n)
		if err != nil {
			continue
		}
		for _, pfx := range prefixes {
			dst[string(pfx)] = count
		}
	}
}

// splitPrefixToken parses a "(modes)prefixes" PREFIX value.
func splitPrefixToken(value string) (modes, symbols string, ok bool) {
	if !strings.HasPrefix(value, "(") {
		return "", "", false
	}
	end := strings.IndexByte(value, ')')
	if end < 0 {
		return "", "", false
	}
	return value[1:end], value[end+1:], true
}

// mergeModeChars appends the chars of add to existing, keeping each char
// at most once.
func mergeModeChars(existing, add string) string {
	out := existing
	for i := 0; i < len(add); i++ {
		if strings.IndexByte(out, add[i]) < 0 {
			out += string(add[i])
		}
	}
	return out
}
