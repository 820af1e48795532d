package irc

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// handleMessage drives the session state machine and the channel/user
// tracker for one inbound line. State mutations always complete before
// the corresponding domain event fires.
func (c *Client) handleMessage(msg *Message) {
	args := msg.Args
	switch msg.Command {
	case "PING":
		c.Send("PONG", lastArg(args))
		c.emit(PingEvent{Server: lastArg(args)})
	case "PONG":
		c.emit(PongEvent{Server: lastArg(args)})

	case "rpl_welcome":
		c.handleWelcome(msg)
	case "rpl_yourhost", "rpl_created":
		// connection boilerplate
	case "rpl_myinfo":
		if len(args) >= 4 {
			c.state.Supported.Usermodes = args[3]
		}
	case "rpl_isupport":
		for _, token := range middleArgs(args) {
			c.state.applyISupport(token)
		}
		c.state.flush()
		c.emit(ISupportEvent{Supported: c.state.Supported})

	case "err_nicknameinuse":
		c.handleNickInUse(msg)
	case "err_erroneusnickname", "err_unavailresource":
		if c.state.HostMask == "" {
			// not yet registered: fall back to a throwaway nick
			c.Send("NICK", fmt.Sprintf("enick_%03d", rand.Intn(1000)))
		} else {
			c.emit(ErrorEvent{Message: msg})
		}

	case "rpl_motdstart":
		c.motd.Reset()
		c.motd.WriteString(lastArg(args) + "\n")
	case "rpl_motd":
		c.motd.WriteString(lastArg(args) + "\n")
	case "rpl_endofmotd", "err_nomotd":
		c.motd.WriteString(lastArg(args) + "\n")
		c.emit(MotdEvent{Motd: c.motd.String()})
		for _, channel := range c.opt.Channels {
			c.Join(channel)
		}

	case "rpl_namreply":
		c.handleNamReply(msg)
	case "rpl_endofnames":
		if len(args) >= 2 {
			c.handleEndOfNames(args[1])
		}

	case "rpl_topic":
		if len(args) >= 3 {
			if ch := c.state.ChanData(args[1], false); ch != nil {
				ch.Topic = lastArg(args)
			}
		}
	case "rpl_topicwhotime":
		if len(args) >= 3 {
			if ch := c.state.ChanData(args[1], false); ch != nil {
				ch.TopicBy = args[2]
				c.emit(TopicEvent{Channel: args[1], Topic: ch.Topic, Nick: ch.TopicBy, Message: msg})
			}
		}
	case "TOPIC":
		if len(args) >= 2 {
			if ch := c.state.ChanData(args[0], false); ch != nil {
				ch.Topic = args[1]
				ch.TopicBy = msg.Nick
			}
			c.emit(TopicEvent{Channel: args[0], Topic: args[1], Nick: msg.Nick, Message: msg})
		}

	case "rpl_channelmodeis":
		if len(args) >= 3 {
			if ch := c.state.ChanData(args[1], false); ch != nil {
				ch.Mode = args[2]
			}
			c.emit(ModeIsEvent{Channel: args[1], Mode: args[2], Message: msg})
		}
	case "rpl_creationtime":
		if len(args) >= 3 {
			if ch := c.state.ChanData(args[1], false); ch != nil {
				ch.Created = args[2]
			}
		}

	case "JOIN":
		c.handleJoin(msg)
	case "PART":
		c.handlePart(msg)
	case "KICK":
		c.handleKick(msg)
	case "KILL":
		c.handleKill(msg)
	case "QUIT":
		c.handleQuit(msg)
	case "NICK":
		c.handleNick(msg)
	case "MODE":
		c.handleModeChange(msg)
	case "INVITE":
		if len(args) >= 2 {
			c.emit(InviteEvent{Channel: args[1], From: msg.Nick, Message: msg})
		}

	case "PRIVMSG":
		c.handlePrivmsg(msg)
	case "NOTICE":
		if len(args) >= 2 {
			if !c.handleCtcp(msg.Nick, args[0], args[1], "notice", msg) {
				from := msg.Nick
				if from == "" {
					from = msg.Server
				}
				c.emit(NoticeEvent{Nick: from, To: args[0], Text: args[1], Message: msg})
			}
		}

	case "CAP":
		c.handleCap(msg)
	case "AUTHENTICATE":
		if len(args) >= 1 && args[0] == "+" {
			c.sendSaslResponse()
		}
	case "sasl_loggedin":
		c.state.LoggedIn = true
		ev := SaslLoggedInEvent{}
		if len(args) >= 3 {
			ev.Nick, ev.Ident, ev.Account = args[0], args[1], args[2]
		}
		c.emit(ev)
	case "sasl_loggedout":
		c.state.LoggedIn = false
		ev := SaslLoggedOutEvent{}
		if len(args) >= 2 {
			ev.Nick, ev.Ident = args[0], args[1]
		}
		c.emit(ev)
	case "rpl_saslsuccess":
		c.Send("CAP", "END")
	case "err_saslfail", "err_sasltoolong", "err_saslaborted", "err_saslalready":
		c.emit(SaslErrorEvent{Kind: msg.Command, Message: msg})
		// no retry on this connection
		c.Send("CAP", "END")

	case "rpl_whoisuser":
		if len(args) >= 6 {
			w := c.state.whoisData(args[1])
			w.User, w.Host, w.Realname = args[2], args[3], args[5]
		}
	case "rpl_whoisserver":
		if len(args) >= 3 {
			w := c.state.whoisData(args[1])
			w.Server = args[2]
			w.ServerInfo = lastArg(args)
		}
	case "rpl_whoisoperator":
		if len(args) >= 2 {
			c.state.whoisData(args[1]).Operator = lastArg(args)
		}
	case "rpl_whoisidle":
		if len(args) >= 3 {
			c.state.whoisData(args[1]).Idle = args[2]
		}
	case "rpl_whoischannels":
		if len(args) >= 2 {
			c.state.whoisData(args[1]).Channels = strings.Fields(lastArg(args))
		}
	case "rpl_whoisaccount":
		if len(args) >= 3 {
			w := c.state.whoisData(args[1])
			w.Account = args[2]
			w.AccountInfo = lastArg(args)
		}
	case "rpl_whoisactually":
		if len(args) >= 3 {
			c.state.whoisData(args[1]).RealHost = args[2]
		}
	case "rpl_whoiscertfp":
		if len(args) >= 2 {
			c.state.whoisData(args[1]).CertFP = lastArg(args)
		}
	case "rpl_away":
		// only meaningful while a WHOIS is accumulating
		if len(args) >= 2 {
			key := c.state.Supported.Casemapping.Lower(args[1])
			if w, ok := c.state.WhoisData[key]; ok {
				w.Away = lastArg(args)
			}
		}
	case "rpl_endofwhois":
		if len(args) >= 2 {
			c.handleEndOfWhois(args[1])
		}

	case "rpl_liststart":
		c.channelList = nil
		c.emit(ChannelListStartEvent{})
	case "rpl_list":
		if len(args) >= 3 {
			item := ChannelListItem{Name: args[1], Users: args[2], Topic: lastArg(args)}
			c.channelList = append(c.channelList, item)
			c.emit(ChannelListItemEvent{Item: item})
		}
	case "rpl_listend":
		c.emit(ChannelListEvent{Items: c.channelList})

	case "ERROR":
		if !c.requestedDisconnect.Load() {
			c.emit(ErrorEvent{Message: msg})
		}

	default:
		if msg.CommandType == CommandError {
			c.emit(ErrorEvent{Message: msg})
		}
	}
}

func (c *Client) handleWelcome(msg *Message) {
	if len(msg.Args) == 0 {
		return
	}
	c.state.Registered = true
	c.state.CurrentNick = msg.Args[0]
	if words := strings.Fields(lastArg(msg.Args)); len(words) > 0 {
		c.state.HostMask = words[len(words)-1]
	}
	c.attempts = 0
	c.prevClashNick = ""
	c.state.flush()
	c.emit(RegisteredEvent{Message: msg})
	// the welcome text only hints at our hostmask; WHOIS ourselves to
	// learn the server's authoritative version
	c.Whois(c.state.CurrentNick)
}

func (c *Client) handleNickInUse(msg *Message) {
	clashed := ""
	if len(msg.Args) >= 2 {
		clashed = msg.Args[1]
	}
	var next string
	if c.prevClashNick != "" && clashed != "" && clashed != c.prevClashNick {
		// the server truncated our previous candidate; respect the
		// length it actually accepted
		next = c.nextConflictNick(len(clashed))
	} else {
		next = c.nextConflictNick(0)
	}
	c.prevClashNick = next
	c.Send("NICK", next)
}

func (c *Client) nextConflictNick(maxLen int) string {
	if c.opt.OnNickConflict != nil {
		return c.opt.OnNickConflict(maxLen)
	}
	if maxLen == 0 {
		maxLen = c.state.Supported.Nicklength
	}
	c.state.NickMod++
	suffix := strconv.Itoa(c.state.NickMod)
	next := c.opt.Nick + suffix
	if maxLen > 0 && len(next) > maxLen {
		cut := maxLen - len(suffix)
		if cut < 0 {
			cut = 0
		}
		if cut < len(c.opt.Nick) {
			next = c.opt.Nick[:cut] + suffix
		}
	}
	return next
}

func (c *Client) handleNamReply(msg *Message) {
	if len(msg.Args) < 4 {
		return
	}
	ch := c.state.ChanData(msg.Args[2], true)
	for _, token := range strings.Fields(msg.Args[3]) {
		i := 0
		for i < len(token) {
			if _, ok := c.state.ModeForPrefix[token[i]]; !ok {
				break
			}
			i++
		}
		if nick := token[i:]; nick != "" {
			ch.Users[nick] = token[:i]
		}
	}
	c.state.flush()
}

func (c *Client) handleEndOfNames(channel string) {
	ch := c.state.ChanData(channel, false)
	if ch == nil {
		return
	}
	users := make(map[string]string, len(ch.Users))
	for nick, prefix := range ch.Users {
		users[nick] = prefix
	}
	c.emit(NamesEvent{Channel: channel, Users: users})
	c.Send("MODE", channel)
}

func (c *Client) handleJoin(msg *Message) {
	if len(msg.Args) == 0 {
		return
	}
	channel := msg.Args[0]
	if c.isMe(msg.Nick) {
		c.state.ChanData(channel, true)
	} else if ch := c.state.ChanData(channel, false); ch != nil {
		ch.Users[msg.Nick] = ""
	}
	c.state.flush()
	c.emit(JoinEvent{Channel: channel, Nick: msg.Nick, Message: msg})
}

func (c *Client) handlePart(msg *Message) {
	if len(msg.Args) == 0 {
		return
	}
	channel := msg.Args[0]
	reason := ""
	if len(msg.Args) > 1 {
		reason = msg.Args[1]
	}
	if c.isMe(msg.Nick) {
		c.state.RemoveChanData(channel)
	} else if ch := c.state.ChanData(channel, false); ch != nil {
		delete(ch.Users, msg.Nick)
	}
	c.state.flush()
	c.emit(PartEvent{Channel: channel, Nick: msg.Nick, Reason: reason, Message: msg})
}

func (c *Client) handleKick(msg *Message) {
	if len(msg.Args) < 2 {
		return
	}
	channel, kicked := msg.Args[0], msg.Args[1]
	reason := ""
	if len(msg.Args) > 2 {
		reason = msg.Args[2]
	}
	if c.isMe(kicked) {
		c.state.RemoveChanData(channel)
	} else if ch := c.state.ChanData(channel, false); ch != nil {
		delete(ch.Users, kicked)
	}
	c.state.flush()
	c.emit(KickEvent{Channel: channel, Nick: kicked, By: msg.Nick, Reason: reason, Message: msg})
	if c.isMe(kicked) && c.opt.AutoRejoin {
		c.Join(channel)
	}
}

func (c *Client) handleKill(msg *Message) {
	if len(msg.Args) == 0 {
		return
	}
	nick := msg.Args[0]
	channels := c.removeFromAllChannels(nick)
	c.state.flush()
	c.emit(KillEvent{Nick: nick, Channels: channels, Message: msg})
}

func (c *Client) handleQuit(msg *Message) {
	if c.isMe(msg.Nick) {
		return
	}
	reason := lastArg(msg.Args)
	channels := c.removeFromAllChannels(msg.Nick)
	c.state.flush()
	c.emit(QuitEvent{Nick: msg.Nick, Reason: reason, Channels: channels, Message: msg})
}

func (c *Client) removeFromAllChannels(nick string) []string {
	var channels []string
	for _, ch := range c.state.Chans {
		if _, ok := ch.Users[nick]; ok {
			delete(ch.Users, nick)
			channels = append(channels, ch.ServerName)
		}
	}
	return channels
}

func (c *Client) handleNick(msg *Message) {
	if len(msg.Args) == 0 {
		return
	}
	oldNick, newNick := msg.Nick, msg.Args[0]
	if c.isMe(oldNick) {
		c.state.CurrentNick = newNick
	}
	var channels []string
	for _, ch := range c.state.Chans {
		if prefix, ok := ch.Users[oldNick]; ok {
			delete(ch.Users, oldNick)
			ch.Users[newNick] = prefix
			channels = append(channels, ch.ServerName)
		}
	}
	c.state.flush()
	c.emit(NickEvent{OldNick: oldNick, NewNick: newNick, Channels: channels, Message: msg})
}

func (c *Client) handleModeChange(msg *Message) {
	if len(msg.Args) < 2 {
		return
	}
	target := msg.Args[0]
	if !c.isChannel(target) {
		return
	}
	ch := c.state.ChanData(target, false)
	by := msg.Nick
	if by == "" {
		by = msg.Prefix
	}
	modes := c.state.Supported.Channel.Modes
	params := msg.Args[2:]
	takeParam := func() string {
		if len(params) == 0 {
			return ""
		}
		p := params[0]
		params = params[1:]
		return p
	}

	adding := true
	for i := 0; i < len(msg.Args[1]); i++ {
		mode := msg.Args[1][i]
		switch mode {
		case '+':
			adding = true
			continue
		case '-':
			adding = false
			continue
		}
		ev := ModeEvent{Channel: target, By: by, Mode: string(mode), Adding: adding, Message: msg}

		if sym, ok := c.state.PrefixForMode[mode]; ok {
			ev.Param = takeParam()
			if ch != nil && ev.Param != "" {
				if prefix, known := ch.Users[ev.Param]; known {
					if adding {
						if strings.IndexByte(prefix, sym) < 0 {
							ch.Users[ev.Param] = prefix + string(sym)
						}
					} else {
						ch.Users[ev.Param] = strings.ReplaceAll(prefix, string(sym), "")
					}
				}
			}
		} else if strings.IndexByte(modes.A, mode) >= 0 {
			ev.Param = takeParam()
			if ch != nil {
				if adding {
					ch.ModeParams[mode] = append(ch.ModeParams[mode], ev.Param)
				} else if list, ok := ch.ModeParams[mode]; ok {
					// the filter matches the mode char, mirroring the
					// reference client
					var kept []string
					for _, v := range list {
						if v != string(mode) {
							kept = append(kept, v)
						}
					}
					if len(kept) > 0 {
						ch.ModeParams[mode] = kept
					} else {
						delete(ch.ModeParams, mode)
					}
				}
			}
		} else if strings.IndexByte(modes.B, mode) >= 0 {
			ev.Param = takeParam()
			if ch != nil {
				if adding {
					ch.ModeParams[mode] = []string{ev.Param}
				} else {
					delete(ch.ModeParams, mode)
				}
			}
		} else if strings.IndexByte(modes.C, mode) >= 0 {
			if adding {
				ev.Param = takeParam()
			}
			if ch != nil {
				if adding {
					ch.ModeParams[mode] = []string{ev.Param}
				} else {
					delete(ch.ModeParams, mode)
				}
			}
		} else {
			// class D and unknown modes carry no parameter
			if ch != nil {
				if adding {
					if strings.IndexByte(ch.Mode, mode) < 0 {
						ch.Mode += string(mode)
					}
				} else {
					ch.Mode = strings.ReplaceAll(ch.Mode, string(mode), "")
				}
			}
		}
		c.emit(ev)
	}
	c.state.flush()
}

func (c *Client) handlePrivmsg(msg *Message) {
	if len(msg.Args) < 2 {
		return
	}
	to, text := msg.Args[0], msg.Args[1]
	if c.handleCtcp(msg.Nick, to, text, "privmsg", msg) {
		return
	}
	if c.isChannel(to) {
		c.emit(MessageEvent{Nick: msg.Nick, To: to, Text: text, Message: msg})
	} else if c.isMe(to) {
		c.emit(PmEvent{Nick: msg.Nick, Text: text, Message: msg})
	}
}

func (c *Client) handleCap(msg *Message) {
	if len(msg.Args) < 3 {
		return
	}
	continuation := len(msg.Args) >= 4 && msg.Args[2] == "*"
	tokens := strings.Fields(lastArg(msg.Args))
	switch msg.Args[1] {
	case "LS":
		if c.state.Capabilities.handleLS(tokens, !continuation) {
			c.serverCapsReady()
		}
	case "ACK":
		if c.state.Capabilities.handleACK(tokens) {
			c.userCapsReady()
		} else if c.opt.Sasl && c.state.Capabilities.UserHasCap("sasl") {
			// a later ACK can still carry the sasl grant
			c.startSasl()
		}
	case "NAK":
		c.Send("CAP", "END")
	}
}

func (c *Client) serverCapsReady() {
	if !c.opt.Sasl {
		c.Send("CAP", "END")
		return
	}
	if !c.state.Capabilities.SupportsSaslMethod(c.opt.SaslType, true) {
		c.emit(SaslErrorEvent{Kind: "sasl_method_unsupported"})
		c.Send("CAP", "END")
		return
	}
	c.Send("CAP", "REQ", "sasl")
}

func (c *Client) userCapsReady() {
	if c.opt.Sasl && c.state.Capabilities.UserHasCap("sasl") {
		c.startSasl()
		return
	}
	c.Send("CAP", "END")
}

func (c *Client) startSasl() {
	if c.saslStarted {
		return
	}
	c.saslStarted = true
	c.Send("AUTHENTICATE", c.opt.SaslType)
}

func (c *Client) sendSaslResponse() {
	switch c.opt.SaslType {
	case "PLAIN":
		payload := c.opt.UserName + "\x00" + c.opt.UserName + "\x00" + c.opt.Password
		c.Send("AUTHENTICATE", base64.StdEncoding.EncodeToString([]byte(payload)))
	case "EXTERNAL":
		c.Send("AUTHENTICATE", "+")
	}
}

func (c *Client) handleEndOfWhois(nick string) {
	key := c.state.Supported.Casemapping.Lower(nick)
	w, ok := c.state.WhoisData[key]
	if !ok {
		return
	}
	if c.isMe(w.Nick) && w.User != "" && w.Host != "" {
		c.state.HostMask = w.User + "@" + w.Host
		c.state.flush()
	}
	delete(c.state.WhoisData, key)
	c.emit(WhoisEvent{Info: w})
}

func (c *Client) isMe(nick string) bool {
	cm := c.state.Supported.Casemapping
	return nick != "" && cm.Lower(nick) == cm.Lower(c.state.CurrentNick)
}

// lastArg returns the final argument, "" when there is none.
func lastArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[len(args)-1]
}

// middleArgs returns the arguments between the leading target and the
// trailing human-readable text, the shape of 005 lines.
func middleArgs(args []string) []string {
	if len(args) < 3 {
		return nil
	}
	return args[1 : len(args)-1]
}
