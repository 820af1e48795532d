package irc

import "strings"

// Capabilities accumulates the IRCv3 CAP LS and CAP ACK exchanges.
//
// CAP LS 302 responses may span several lines; a continuation line marks
// itself with a "*" argument before the token list. The tracker exposes
// the completed server list, the capabilities acknowledged for this user,
// and the SASL methods enumerated by a "sasl=METHOD[,METHOD…]" token.
//
// The four exported lists are the whole persistable surface: serializing
// them (JSON, scfg, anything) and loading them into a fresh value resumes
// the tracker across a process restart.
type Capabilities struct {
	ServerCaps        []string
	ServerSaslMethods []string
	UserCaps          []string
	UserSaslMethods   []string

	serverReady bool
	userReady   bool
}

// handleLS ingests the token list of one CAP LS line. final is false for
// continuation lines. It reports whether this line completed the listing
// for the first time.
func (c *Capabilities) handleLS(tokens []string, final bool) (ready bool) {
	c.absorb(tokens, &c.ServerCaps, &c.ServerSaslMethods)
	if final && !c.serverReady {
		c.serverReady = true
		return true
	}
	return false
}

// handleACK ingests the token list of a CAP ACK line and reports whether
// this is the first acknowledgement.
func (c *Capabilities) handleACK(tokens []string) (ready bool) {
	c.absorb(tokens, &c.UserCaps, &c.UserSaslMethods)
	if !c.userReady {
		c.userReady = true
		return true
	}
	return false
}

func (c *Capabilities) absorb(tokens []string, caps *[]string, saslMethods *[]string) {
	for _, token := range tokens {
		if token == "" {
			continue
		}
		name, value, _ := strings.Cut(token, "=")
		if name == "sasl" && value != "" {
			for _, method := range strings.Split(value, ",") {
				*saslMethods = appendUnique(*saslMethods, strings.ToUpper(method))
			}
		}
		*caps = appendUnique(*caps, name)
	}
}

// SupportsSasl reports whether the server advertised the sasl capability.
func (c *Capabilities) SupportsSasl() bool {
	return contains(c.ServerCaps, "sasl")
}

// SupportsSaslMethod reports whether the server advertised the given SASL
// method. When the server listed no methods at all, allowNoMethods is
// returned instead.
func (c *Capabilities) SupportsSaslMethod(method string, allowNoMethods bool) bool {
	if !c.SupportsSasl() {
		return false
	}
	if len(c.ServerSaslMethods) == 0 {
		return allowNoMethods
	}
	return contains(c.ServerSaslMethods, strings.ToUpper(method))
}

// UserHasCap reports whether the server acknowledged the capability for
// this connection.
func (c *Capabilities) UserHasCap(name string) bool {
	return contains(c.UserCaps, name)
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
