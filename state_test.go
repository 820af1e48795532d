package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, nick string) *Client {
	t.Helper()
	c, err := New(Config{Server: "irc.test", Nick: nick})
	require.NoError(t, err)
	return c
}

func feed(c *Client, lines ...string) {
	for _, line := range lines {
		c.handleMessage(ParseMessage(line, false))
	}
}

func TestJoinPartTracking(t *testing.T) {
	c := newTestClient(t, "testbot")
	feed(c,
		":testbot!u@h JOIN #Auditorium",
		":alice!a@h JOIN #auditorium",
		":bob!b@h JOIN #auditorium",
	)

	ch := c.state.ChanData("#auditorium", false)
	require.NotNil(t, ch)
	// keys are casemapped, the original spelling survives
	assert.Equal(t, "#auditorium", ch.Key)
	assert.Equal(t, "#Auditorium", ch.ServerName)
	assert.Equal(t, map[string]string{"alice": "", "bob": ""}, ch.Users)

	feed(c, ":alice!a@h PART #auditorium :bye")
	assert.NotContains(t, ch.Users, "alice")

	// our own part destroys the channel state
	feed(c, ":testbot!u@h PART #auditorium")
	assert.Nil(t, c.state.ChanData("#auditorium", false))
}

func TestKickTracking(t *testing.T) {
	c := newTestClient(t, "testbot")
	feed(c,
		":testbot!u@h JOIN #chan",
		":alice!a@h JOIN #chan",
	)

	var kicks []KickEvent
	c.On("kick", func(ev Event) { kicks = append(kicks, ev.(KickEvent)) })

	feed(c, ":op!o@h KICK #chan alice :flooding")
	require.Len(t, kicks, 1)
	assert.Equal(t, KickEvent{Channel: "#chan", Nick: "alice", By: "op", Reason: "flooding", Message: kicks[0].Message}, kicks[0])
	assert.NotContains(t, c.state.ChanData("#chan", false).Users, "alice")

	feed(c, ":op!o@h KICK #chan testbot :you too")
	require.Len(t, kicks, 2)
	assert.Nil(t, c.state.ChanData("#chan", false))
}

func TestQuitRemovesFromAllChannels(t *testing.T) {
	c := newTestClient(t, "testbot")
	feed(c,
		":testbot!u@h JOIN #one",
		":testbot!u@h JOIN #two",
		":alice!a@h JOIN #one",
		":alice!a@h JOIN #two",
	)

	var quits []QuitEvent
	c.On("quit", func(ev Event) { quits = append(quits, ev.(QuitEvent)) })

	feed(c, ":alice!a@h QUIT :Gone")
	require.Len(t, quits, 1)
	assert.Equal(t, "alice", quits[0].Nick)
	assert.Equal(t, "Gone", quits[0].Reason)
	assert.ElementsMatch(t, []string{"#one", "#two"}, quits[0].Channels)
	assert.NotContains(t, c.state.ChanData("#one", false).Users, "alice")
	assert.NotContains(t, c.state.ChanData("#two", false).Users, "alice")
}

func TestNickChangePreservesPrefix(t *testing.T) {
	c := newTestClient(t, "testbot")
	feed(c,
		":localhost 005 testbot PREFIX=(ov)@+ :are supported by this server",
		":testbot!u@h JOIN #chan",
		":alice!a@h JOIN #chan",
		":op!o@h MODE #chan +o alice",
	)
	require.Equal(t, "@", c.state.ChanData("#chan", false).Users["alice"])

	feed(c, ":alice!a@h NICK alicia")
	ch := c.state.ChanData("#chan", false)
	assert.NotContains(t, ch.Users, "alice")
	assert.Equal(t, "@", ch.Users["alicia"])
}

func TestOwnNickChange(t *testing.T) {
	c := newTestClient(t, "testbot")
	feed(c, ":testbot!u@h JOIN #chan")

	var nicks []NickEvent
	c.On("nick", func(ev Event) { nicks = append(nicks, ev.(NickEvent)) })

	feed(c, ":testbot!u@h NICK newbot")
	assert.Equal(t, "newbot", c.Nick())
	require.Len(t, nicks, 1)
	assert.Equal(t, "testbot", nicks[0].OldNick)
	assert.Equal(t, "newbot", nicks[0].NewNick)
}

func TestPrefixModeTracking(t *testing.T) {
	c := newTestClient(t, "testbot")
	feed(c, ":localhost 005 testbot PREFIX=(ov)@+ :are supported by this server")
	assert.Equal(t, map[byte]byte{'@': 'o', '+': 'v'}, c.state.ModeForPrefix)

	feed(c,
		":testbot!u@h JOIN #auditorium",
		":user!u@h JOIN #auditorium",
	)

	var modes []ModeEvent
	c.On("+mode", func(ev Event) { modes = append(modes, ev.(ModeEvent)) })
	c.On("-mode", func(ev Event) { modes = append(modes, ev.(ModeEvent)) })

	feed(c, ":ChanServ!c@s MODE #auditorium +o user")
	require.Len(t, modes, 1)
	assert.Equal(t, "#auditorium", modes[0].Channel)
	assert.Equal(t, "ChanServ", modes[0].By)
	assert.Equal(t, "o", modes[0].Mode)
	assert.Equal(t, "user", modes[0].Param)
	assert.True(t, modes[0].Adding)
	assert.Equal(t, "@", c.state.ChanData("#auditorium", false).Users["user"])

	// +o then -o restores the previous prefix string
	feed(c,
		":ChanServ!c@s MODE #auditorium -o user",
		":ChanServ!c@s MODE #auditorium +v user",
	)
	prev := c.state.ChanData("#auditorium", false).Users["user"]
	feed(c,
		":ChanServ!c@s MODE #auditorium +o user",
		":ChanServ!c@s MODE #auditorium -o user",
	)
	assert.Equal(t, prev, c.state.ChanData("#auditorium", false).Users["user"])
}

func TestParameterlessModeToggle(t *testing.T) {
	c := newTestClient(t, "testbot")
	feed(c,
		":localhost 005 testbot CHANMODES=b,k,l,imnpst :are supported by this server",
		":testbot!u@h JOIN #chan",
	)

	var modes []ModeEvent
	c.On("+mode", func(ev Event) { modes = append(modes, ev.(ModeEvent)) })
	c.On("-mode", func(ev Event) { modes = append(modes, ev.(ModeEvent)) })

	feed(c, ":op!o@h MODE #chan +m")
	assert.Contains(t, c.state.ChanData("#chan", false).Mode, "m")
	feed(c, ":op!o@h MODE #chan -m")
	assert.NotContains(t, c.state.ChanData("#chan", false).Mode, "m")

	require.Len(t, modes, 2)
	assert.Equal(t, "m", modes[0].Mode)
	assert.Empty(t, modes[0].Param)
	assert.True(t, modes[0].Adding)
	assert.Equal(t, "m", modes[1].Mode)
	assert.False(t, modes[1].Adding)
}

func TestModeClasses(t *testing.T) {
	c := newTestClient(t, "testbot")
	feed(c,
		":localhost 005 testbot CHANMODES=b,k,l,imnpst :are supported by this server",
		":testbot!u@h JOIN #chan",
	)
	ch := c.state.ChanData("#chan", false)

	// class A list modes accumulate parameters
	feed(c,
		":op!o@h MODE #chan +b *!*@spam.example",
		":op!o@h MODE #chan +b *!*@worse.example",
	)
	assert.Equal(t, []string{"*!*@spam.example", "*!*@worse.example"}, ch.ModeParams['b'])

	// class B always carries a parameter
	feed(c, ":op!o@h MODE #chan +k sekrit")
	assert.Equal(t, []string{"sekrit"}, ch.ModeParams['k'])
	feed(c, ":op!o@h MODE #chan -k sekrit")
	assert.NotContains(t, ch.ModeParams, byte('k'))

	// class C only takes a parameter when set
	feed(c, ":op!o@h MODE #chan +l 25")
	assert.Equal(t, []string{"25"}, ch.ModeParams['l'])
	feed(c, ":op!o@h MODE #chan -l")
	assert.NotContains(t, ch.ModeParams, byte('l'))
}

func TestNamesReply(t *testing.T) {
	c := newTestClient(t, "testbot")
	feed(c, ":localhost 005 testbot PREFIX=(ov)@+ :are supported by this server")

	var names []NamesEvent
	c.On("names", func(ev Event) { names = append(names, ev.(NamesEvent)) })

	feed(c,
		":localhost 353 testbot = #chan :@alice +bob carol @+dave",
		":localhost 366 testbot #chan :End of /NAMES list.",
	)

	require.Len(t, names, 1)
	assert.Equal(t, map[string]string{
		"alice": "@",
		"bob":   "+",
		"carol": "",
		"dave":  "@+",
	}, names[0].Users)
	// NAMES alone is enough to start tracking the channel
	require.NotNil(t, c.state.ChanData("#chan", false))
}

func TestTopicTracking(t *testing.T) {
	c := newTestClient(t, "testbot")
	feed(c, ":testbot!u@h JOIN #chan")

	var topics []TopicEvent
	c.On("topic", func(ev Event) { topics = append(topics, ev.(TopicEvent)) })

	feed(c,
		":localhost 332 testbot #chan :old topic",
		":localhost 333 testbot #chan alice 1633024800",
	)
	ch := c.state.ChanData("#chan", false)
	assert.Equal(t, "old topic", ch.Topic)
	assert.Equal(t, "alice", ch.TopicBy)
	require.Len(t, topics, 1)

	feed(c, ":bob!b@h TOPIC #chan :new topic")
	assert.Equal(t, "new topic", ch.Topic)
	assert.Equal(t, "bob", ch.TopicBy)
	require.Len(t, topics, 2)
	assert.Equal(t, "new topic", topics[1].Topic)
}

func TestChannelCaseMapping(t *testing.T) {
	c := newTestClient(t, "testbot")
	feed(c,
		":localhost 005 testbot CASEMAPPING=rfc1459 :are supported by this server",
		":testbot!u@h JOIN #Chan[1]",
	)

	// rfc1459 folds []\^ into {}|~
	ch := c.state.ChanData("#chan{1}", false)
	require.NotNil(t, ch)
	assert.Equal(t, "#Chan[1]", ch.ServerName)
	for key := range c.state.Chans {
		assert.Equal(t, c.state.Supported.Casemapping.Lower(key), key)
	}
}

func TestWhoisAccumulation(t *testing.T) {
	c := newTestClient(t, "testbot")

	var whois []WhoisEvent
	c.On("whois", func(ev Event) { whois = append(whois, ev.(WhoisEvent)) })

	feed(c,
		":localhost 311 testbot alice ident host.example * :Alice Example",
		":localhost 312 testbot alice irc.example.org :An example server",
		":localhost 319 testbot alice :@#ops +#help #lounge",
		":localhost 330 testbot alice alice_acct :is logged in as",
		":localhost 301 testbot alice :afk",
		":localhost 317 testbot alice 123 1633024800 :seconds idle, signon time",
	)
	require.Empty(t, whois, "whois must only fire on end of whois")

	feed(c, ":localhost 318 testbot alice :End of /WHOIS list.")
	require.Len(t, whois, 1)
	info := whois[0].Info
	assert.Equal(t, "alice", info.Nick)
	assert.Equal(t, "ident", info.User)
	assert.Equal(t, "host.example", info.Host)
	assert.Equal(t, "Alice Example", info.Realname)
	assert.Equal(t, "irc.example.org", info.Server)
	assert.Equal(t, "An example server", info.ServerInfo)
	assert.Equal(t, []string{"@#ops", "+#help", "#lounge"}, info.Channels)
	assert.Equal(t, "alice_acct", info.Account)
	assert.Equal(t, "afk", info.Away)
	assert.Equal(t, "123", info.Idle)

	// the accumulator is discarded once emitted
	assert.Empty(t, c.state.WhoisData)
}

func TestCtcpEvents(t *testing.T) {
	c := newTestClient(t, "testbot")

	var actions []ActionEvent
	var ctcps []CtcpEvent
	var versions []CtcpEvent
	c.On("action", func(ev Event) { actions = append(actions, ev.(ActionEvent)) })
	c.On("ctcp", func(ev Event) { ctcps = append(ctcps, ev.(CtcpEvent)) })
	c.On("ctcp-version", func(ev Event) { versions = append(versions, ev.(CtcpEvent)) })

	feed(c, ":alice!a@h PRIVMSG #chan :\x01ACTION waves\x01")
	require.Len(t, actions, 1)
	assert.Equal(t, "waves", actions[0].Text)
	assert.Equal(t, "#chan", actions[0].To)

	feed(c, ":alice!a@h PRIVMSG testbot :\x01VERSION\x01")
	require.Len(t, versions, 1)
	assert.Len(t, ctcps, 2)
}

func TestChannelListAccumulation(t *testing.T) {
	c := newTestClient(t, "testbot")

	var items []ChannelListItemEvent
	var lists []ChannelListEvent
	c.On("channellist_item", func(ev Event) { items = append(items, ev.(ChannelListItemEvent)) })
	c.On("channellist", func(ev Event) { lists = append(lists, ev.(ChannelListEvent)) })

	feed(c,
		":localhost 321 testbot Channel :Users Name",
		":localhost 322 testbot #go 42 :Go talk",
		":localhost 322 testbot #irc 7 :IRC talk",
		":localhost 323 testbot :End of /LIST",
	)

	require.Len(t, items, 2)
	require.Len(t, lists, 1)
	assert.Equal(t, []ChannelListItem{
		{Name: "#go", Users: "42", Topic: "Go talk"},
		{Name: "#irc", Users: "7", Topic: "IRC talk"},
	}, lists[0].Items)
}

func TestFlushHookBatches(t *testing.T) {
	c := newTestClient(t, "testbot")
	flushes := 0
	c.state.Flush = func() { flushes++ }

	feed(c, ":testbot!u@h JOIN #chan")
	assert.Equal(t, 1, flushes)

	feed(c, ":localhost 005 testbot NICKLEN=16 CHANTYPES=# :are supported by this server")
	assert.Equal(t, 2, flushes)
}

func TestNextConflictNick(t *testing.T) {
	c := newTestClient(t, "testbot")
	assert.Equal(t, "testbot1", c.nextConflictNick(0))
	assert.Equal(t, "testbot2", c.nextConflictNick(0))

	// suffixes keep fitting NICKLEN by truncating the base
	long := newTestClient(t, "verylongnick")
	long.state.Supported.Nicklength = 9
	assert.Equal(t, "verylong1", long.nextConflictNick(0))
	assert.Equal(t, "verylong2", long.nextConflictNick(0))

	// an explicit maximum wins over NICKLEN
	assert.Equal(t, "veryl3", long.nextConflictNick(6))

	custom := newTestClient(t, "bot")
	custom.opt.OnNickConflict = func(int) string { return "fallback" }
	assert.Equal(t, "fallback", custom.nextConflictNick(0))
}

func TestEmitterOnceAndOff(t *testing.T) {
	c := newTestClient(t, "testbot")

	once := 0
	c.Once("join", func(Event) { once++ })
	always := 0
	off := c.On("join", func(Event) { always++ })

	feed(c, ":alice!a@h JOIN #chan") // no chan data yet; event still fires
	feed(c, ":bob!b@h JOIN #chan")
	assert.Equal(t, 1, once)
	assert.Equal(t, 2, always)

	off()
	feed(c, ":carol!c@h JOIN #chan")
	assert.Equal(t, 2, always)
}

func TestPerChannelEventVariants(t *testing.T) {
	c := newTestClient(t, "testbot")

	var original, lower []JoinEvent
	c.On("join#Chan", func(ev Event) { original = append(original, ev.(JoinEvent)) })
	c.On("join#chan", func(ev Event) { lower = append(lower, ev.(JoinEvent)) })

	feed(c, ":alice!a@h JOIN #Chan")
	assert.Len(t, original, 1)
	assert.Len(t, lower, 1)
}
