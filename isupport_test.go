package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyISupportPrefix(t *testing.T) {
	s := NewClientState()
	s.applyISupport("PREFIX=(ov)@+")

	assert.Equal(t, byte('o'), s.ModeForPrefix['@'])
	assert.Equal(t, byte('v'), s.ModeForPrefix['+'])
	assert.Equal(t, byte('@'), s.PrefixForMode['o'])
	assert.Equal(t, byte('+'), s.PrefixForMode['v'])
	assert.Equal(t, "ov", s.Supported.Usermodepriority)
	// prefix modes consume a parameter
	assert.Contains(t, s.Supported.Channel.Modes.B, "o")
	assert.Contains(t, s.Supported.Channel.Modes.B, "v")

	// the two maps stay mutual inverses
	for sym, mode := range s.ModeForPrefix {
		assert.Equal(t, sym, s.PrefixForMode[mode])
	}
}

func TestApplyISupportChanModes(t *testing.T) {
	s := NewClientState()
	s.applyISupport("CHANMODES=eIbq,k,flj,CFLMPQScgimnprstuz")

	assert.Equal(t, "eIbq", s.Supported.Channel.Modes.A)
	assert.Equal(t, "k", s.Supported.Channel.Modes.B)
	assert.Equal(t, "flj", s.Supported.Channel.Modes.C)
	assert.Equal(t, "CFLMPQScgimnprstuz", s.Supported.Channel.Modes.D)

	// repeated lines must not duplicate mode chars
	s.applyISupport("CHANMODES=eIbq,k,flj,CFLMPQScgimnprstuz")
	assert.Equal(t, "eIbq", s.Supported.Channel.Modes.A)
	assert.Equal(t, "k", s.Supported.Channel.Modes.B)
}

func TestApplyISupportNumbersAndMaps(t *testing.T) {
	s := NewClientState()
	for _, token := range []string{
		"CASEMAPPING=ascii",
		"CHANTYPES=#",
		"CHANNELLEN=50",
		"NICKLEN=16",
		"TOPICLEN=390",
		"KICKLEN=255",
		"CHANLIMIT=#:120",
		"MAXLIST=bqeI:100",
		"IDCHAN=!:5",
		"TARGMAX=NAMES:1,LIST:1,KICK:1,WHOIS:1,PRIVMSG:4,NOTICE:4,ACCEPT:,MONITOR:",
	} {
		s.applyISupport(token)
	}

	sup := s.Supported
	assert.Equal(t, CaseMappingASCII, sup.Casemapping)
	assert.Equal(t, "#", sup.Channel.Types)
	assert.Equal(t, 50, sup.Channel.Length)
	assert.Equal(t, 16, sup.Nicklength)
	assert.Equal(t, 390, sup.Topiclength)
	assert.Equal(t, 255, sup.Kicklength)
	assert.Equal(t, 120, sup.Channel.Limit["#"])
	assert.Equal(t, 100, sup.Maxlist["b"])
	assert.Equal(t, 100, sup.Maxlist["I"])
	assert.Equal(t, 5, sup.Channel.Idlength["!"])
	assert.Equal(t, 4, sup.Maxtargets["PRIVMSG"])
	// no count advertised means unlimited
	assert.Equal(t, 0, sup.Maxtargets["MONITOR"])
}

func TestApplyISupportExtraDeduplicates(t *testing.T) {
	s := NewClientState()
	s.applyISupport("EXTBAN=$,ajrxz")
	s.applyISupport("EXTBAN=$,ajrxz")
	s.applyISupport("WHOX")
	// the same key with a different value still counts once
	s.applyISupport("EXTBAN=~,qjrxz")

	require.Equal(t, []string{"EXTBAN=$,ajrxz", "WHOX"}, s.Supported.Extra)
}

func TestApplyISupportStatusMsgDropped(t *testing.T) {
	s := NewClientState()
	s.applyISupport("STATUSMSG=@+")
	assert.NotContains(t, s.Supported.Extra, "STATUSMSG=@+")
}
