// Package irc implements a stateful IRC client protocol engine for bots
// and bridges.
//
// A Client manages a single connection: it drives registration (IRCv3
// capability negotiation, SASL PLAIN/EXTERNAL, nick-collision recovery),
// tracks the channels it is in and their member prefixes under the
// server's ISUPPORT rules, splits outgoing text to the 512-byte line
// budget without breaking grapheme clusters, paces writes with flood
// protection, and reconnects after network failures.
//
// Embedders consume a typed event stream:
//
//	client, err := irc.New(irc.Config{
//		Server:   "irc.example.org",
//		Nick:     "mybot",
//		Channels: []string{"#bots"},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	client.On("message", func(ev irc.Event) {
//		m := ev.(irc.MessageEvent)
//		client.Say(m.To, "you said: "+m.Text)
//	})
//	if err := client.Connect(); err != nil {
//		log.Fatal(err)
//	}
//
// The session state lives in a ClientState value that may be supplied
// externally and persisted through its Flush hook, so a client can be
// destroyed and rebuilt over a reused socket mid-session.
package irc
