package irc

import "time"

// ChanData is the tracked state of one joined (or observed) channel.
type ChanData struct {
	// Key is the channel name lowercased under the casemapping in
	// effect when the channel was first seen.
	Key string
	// ServerName keeps the first-seen original case of the name.
	ServerName string
	// Users maps nicks to their prefix characters ("@+", "" for none).
	Users map[string]string
	// Mode collects the parameterless (class D) modes currently set.
	Mode string
	// ModeParams holds the parameters of set modes, one ordered list
	// per mode character (lists longer than one entry only for class A
	// list modes).
	ModeParams map[byte][]string
	Topic      string
	TopicBy    string
	Created    string
}

// ClientState is the session state of one connection. It is owned and
// mutated by the client, but may be supplied externally so that a new
// client can resume a session over a reused socket.
type ClientState struct {
	LoggedIn    bool
	Registered  bool
	CurrentNick string
	// WhoisData holds in-flight WHOIS accumulators keyed by casemapped
	// nick.
	WhoisData map[string]*WhoisResponse
	// NickMod counts nick-collision retries for the suffix scheme.
	NickMod int
	// ModeForPrefix maps prefix sigils to mode chars ('@' -> 'o');
	// PrefixForMode is its inverse. The two are kept in sync by the
	// ISUPPORT PREFIX token.
	ModeForPrefix map[byte]byte
	PrefixForMode map[byte]byte

	Capabilities Capabilities
	Supported    Supported

	// HostMask is our mask as the server exposes it: the last word of the
	// welcome text at first, then user@host once the self-WHOIS ends. It
	// is used to compute the safe outgoing line budget.
	HostMask string

	// Chans maps casemapped channel keys to channel state.
	Chans map[string]*ChanData

	LastSendTime time.Time

	// Flush, when set, is invoked after every coherent batch of state
	// mutations so embedders can persist the state.
	Flush func()
}

// NewClientState returns a fresh state with protocol defaults applied.
func NewClientState() *ClientState {
	return &ClientState{
		WhoisData:     map[string]*WhoisResponse{},
		ModeForPrefix: map[byte]byte{'@': 'o', '+': 'v'},
		PrefixForMode: map[byte]byte{'o': '@', 'v': '+'},
		Supported:     newSupported(),
		Chans:         map[string]*ChanData{},
	}
}

// ChanData returns the tracked state for the named channel, creating it
// when create is set. Lookups are performed under the current casemapping.
func (s *ClientState) ChanData(name string, create bool) *ChanData {
	key := s.Supported.Casemapping.Lower(name)
	ch, ok := s.Chans[key]
	if !ok && create {
		ch = &ChanData{
			Key:        key,
			ServerName: name,
			Users:      map[string]string{},
			ModeParams: map[byte][]string{},
		}
		s.Chans[key] = ch
	}
	return ch
}

// RemoveChanData drops the tracked state for the named channel.
func (s *ClientState) RemoveChanData(name string) {
	delete(s.Chans, s.Supported.Casemapping.Lower(name))
}

func (s *ClientState) flush() {
	if s.Flush != nil {
		s.Flush()
	}
}
