package irc

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"log"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
)

// idleTimeout is how long the connection may stay silent before it is
// treated as dead and the reconnect policy kicks in.
const idleTimeout = 180 * time.Second

// DefaultQuitMessage is sent when Disconnect is called without a reason.
const DefaultQuitMessage = "node-irc says goodbye"

// WebIRC carries the WEBIRC gateway parameters sent before registration.
type WebIRC struct {
	Pass string
	User string
	Host string
	IP   string
}

// Config enumerates the connection options.
type Config struct {
	// Server and Port locate the IRC server. Port defaults to 6667.
	Server string
	Port   int

	// Nick is the requested nickname (required).
	Nick string

	// UserName defaults to "nodebot", RealName to "nodeJS IRC client".
	UserName string
	RealName string

	// Password is sent via PASS before registration, unless SASL is in
	// use.
	Password string

	// Family selects IPv4 (4) or IPv6 (6); zero lets the stack choose.
	Family int

	// LocalAddress and LocalPort bind the outgoing socket.
	LocalAddress string
	LocalPort    int

	// Secure enables TLS. TLSConfig, when set, is used as the base
	// configuration. SelfSigned and CertExpired tolerate the matching
	// verification failures; any other failure still aborts.
	Secure      bool
	TLSConfig   *tls.Config
	SelfSigned  bool
	CertExpired bool

	// BustRfc3484 shuffles resolved addresses before dialing so
	// connections spread across a round-robin DNS pool.
	BustRfc3484 bool

	// Channels are joined automatically once the MOTD completes.
	Channels []string

	// AutoRejoin rejoins a channel we were kicked from.
	AutoRejoin bool

	// RetryCount bounds reconnect attempts; nil retries forever.
	// RetryDelay defaults to 2s.
	RetryCount *int
	RetryDelay time.Duration

	// FloodProtection paces outgoing lines FloodProtectionDelay apart
	// (default 1s, minimum 33ms).
	FloodProtection      bool
	FloodProtectionDelay time.Duration

	// Sasl authenticates during capability negotiation using SaslType
	// ("PLAIN", the default, or "EXTERNAL").
	Sasl     bool
	SaslType string

	// StripColors removes mIRC color/style codes from incoming lines.
	StripColors bool

	// ChannelPrefixes defaults to "&#"; used before the server
	// advertises CHANTYPES.
	ChannelPrefixes string

	// MessageSplit caps the text portion of outgoing messages (default
	// 512); the effective budget also subtracts nick, hostmask and
	// target.
	MessageSplit int

	// Encoding names the charset the server speaks; incoming bytes are
	// transcoded from it to UTF-8. EncodingFallback only applies to
	// lines that are not valid UTF-8.
	Encoding         string
	EncodingFallback string

	// OnNickConflict computes the next nick after err_nicknameinuse.
	// The default appends an incrementing suffix, truncating the base
	// to maxLen (or NICKLEN) as needed.
	OnNickConflict func(maxLen int) string

	// WebIRC, when set, is sent first thing after connecting.
	WebIRC *WebIRC

	// ConnectionTimeout bounds the dial; zero means no limit.
	ConnectionTimeout time.Duration

	// ErrorLog receives noteworthy non-fatal errors; nil uses the
	// standard logger.
	ErrorLog *log.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.Port == 0 {
		cfg.Port = 6667
	}
	if cfg.UserName == "" {
		cfg.UserName = "nodebot"
	}
	if cfg.RealName == "" {
		cfg.RealName = "nodeJS IRC client"
	}
	if cfg.ChannelPrefixes == "" {
		cfg.ChannelPrefixes = "&#"
	}
	if cfg.MessageSplit == 0 {
		cfg.MessageSplit = 512
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.FloodProtectionDelay == 0 {
		cfg.FloodProtectionDelay = time.Second
	}
	if cfg.SaslType == "" {
		cfg.SaslType = "PLAIN"
	}
	return cfg
}

// Client is a stateful IRC protocol engine managing one connection.
type Client struct {
	events emitter

	opt   Config
	state *ClientState

	incomingEncoding encoding.Encoding
	fallbackEncoding encoding.Encoding

	mu       sync.Mutex
	conn     net.Conn
	sender   *sender
	ownsConn bool

	requestedDisconnect atomic.Bool
	destroyed           atomic.Bool

	attempts      int
	prevClashNick string
	saslStarted   bool

	motd        strings.Builder
	channelList []ChannelListItem
}

// New creates a client that owns its socket; Connect dials it.
func New(cfg Config) (*Client, error) {
	return newClient(nil, nil, cfg, true)
}

// NewWithConn creates a client over an externally supplied connection,
// optionally resuming a previously persisted state. External sockets are
// never re-dialed by the client, and it closes them only after a write to
// them fails; when they disconnect the client emits abort(0) and stops.
func NewWithConn(conn net.Conn, state *ClientState, cfg Config) (*Client, error) {
	if conn == nil {
		return nil, errors.New("irc: nil connection")
	}
	return newClient(conn, state, cfg, false)
}

func newClient(conn net.Conn, state *ClientState, cfg Config, owns bool) (*Client, error) {
	if cfg.Nick == "" {
		return nil, errors.New("irc: nick is required")
	}
	if owns && cfg.Server == "" {
		return nil, errors.New("irc: server is required")
	}
	cfg = cfg.withDefaults()
	if state == nil {
		state = NewClientState()
	}
	if state.CurrentNick == "" {
		state.CurrentNick = cfg.Nick
	}
	c := &Client{
		opt:      cfg,
		state:    state,
		conn:     conn,
		ownsConn: owns,
	}
	c.events.disconnecting = c.requestedDisconnect.Load
	if cfg.Encoding != "" {
		c.incomingEncoding = lookupEncoding(cfg.Encoding)
	}
	if cfg.EncodingFallback != "" {
		c.fallbackEncoding = lookupEncoding(cfg.EncodingFallback)
	}
	return c, nil
}

// On subscribes fn to the named event and returns its remove func.
func (c *Client) On(event string, fn HandlerFunc) (off func()) {
	return c.events.on(event, fn, false)
}

// Once subscribes fn for a single delivery of the named event.
func (c *Client) Once(event string, fn HandlerFunc) (off func()) {
	return c.events.on(event, fn, true)
}

func (c *Client) emit(ev Event) {
	c.events.emit(ev)
}

// State exposes the session state. It must only be read from event
// handlers or after the client has stopped.
func (c *Client) State() *ClientState {
	return c.state
}

// Nick returns the server-confirmed current nickname.
func (c *Client) Nick() string {
	return c.state.CurrentNick
}

// MaxLineLength is the number of bytes of a PRIVMSG that survive the
// server re-prefixing the line with our full hostmask.
func (c *Client) MaxLineLength() int {
	return 497 - len(c.state.CurrentNick) - len(c.state.HostMask)
}

// Connect establishes the connection (dialing it when owned) and starts
// the protocol handshake. SASL misconfiguration fails here rather than
// connecting unauthenticated.
func (c *Client) Connect() error {
	if c.opt.Sasl {
		switch c.opt.SaslType {
		case "PLAIN", "EXTERNAL":
		default:
			return errors.Errorf("irc: unsupported SASL method %q", c.opt.SaslType)
		}
	}
	conn := c.conn
	if c.ownsConn {
		var err error
		if conn, err = c.dial(); err != nil {
			return err
		}
	}
	c.startConn(conn)
	return nil
}

func (c *Client) dial() (net.Conn, error) {
	network := "tcp"
	switch c.opt.Family {
	case 4:
		network = "tcp4"
	case 6:
		network = "tcp6"
	}
	d := net.Dialer{Timeout: c.opt.ConnectionTimeout}
	if c.opt.LocalAddress != "" || c.opt.LocalPort != 0 {
		d.LocalAddr = &net.TCPAddr{
			IP:   net.ParseIP(c.opt.LocalAddress),
			Port: c.opt.LocalPort,
		}
	}
	port := strconv.Itoa(c.opt.Port)

	var conn net.Conn
	var err error
	if c.opt.BustRfc3484 {
		conn, err = c.dialShuffled(&d, network, port)
	} else {
		conn, err = d.Dial(network, net.JoinHostPort(c.opt.Server, port))
	}
	if err != nil {
		return nil, errors.Wrap(err, "irc: dial")
	}
	if !c.opt.Secure {
		return conn, nil
	}

	tlsCfg := &tls.Config{}
	if c.opt.TLSConfig != nil {
		tlsCfg = c.opt.TLSConfig.Clone()
	}
	if tlsCfg.ServerName == "" {
		tlsCfg.ServerName = c.opt.Server
	}
	if c.opt.SelfSigned || c.opt.CertExpired {
		tlsCfg.InsecureSkipVerify = true
		tlsCfg.VerifyConnection = c.verifyTLS
	}
	tconn := tls.Client(conn, tlsCfg)
	if err := tconn.Handshake(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "irc: tls handshake")
	}
	return tconn, nil
}

// dialShuffled resolves all addresses and tries them in random order, so
// a round-robin DNS pool is not always hit on the RFC 3484-preferred
// entry.
func (c *Client) dialShuffled(d *net.Dialer, network, port string) (net.Conn, error) {
	addrs, err := net.LookupHost(c.opt.Server)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(addrs), func(i, j int) {
		addrs[i], addrs[j] = addrs[j], addrs[i]
	})
	for _, addr := range addrs {
		conn, err := d.Dial(network, net.JoinHostPort(addr, port))
		if err == nil {
			return conn, nil
		}
	}
	return d.Dial(network, net.JoinHostPort(c.opt.Server, port))
}

// verifyTLS re-runs certificate verification, tolerating only the
// failure classes the configuration explicitly accepts.
func (c *Client) verifyTLS(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return errors.New("irc: no peer certificate")
	}
	opts := x509.VerifyOptions{
		DNSName:       cs.ServerName,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}
	_, err := cs.PeerCertificates[0].Verify(opts)
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case x509.UnknownAuthorityError:
		if c.opt.SelfSigned {
			return nil
		}
	case x509.CertificateInvalidError:
		if e.Reason == x509.Expired && c.opt.CertExpired {
			return nil
		}
	}
	return err
}

func (c *Client) startConn(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.saslStarted = false
	c.sender = newSender(conn, c.floodDelay(), func(at time.Time) {
		c.state.LastSendTime = at
	}, c.writeError)
	c.mu.Unlock()

	c.emit(ConnectEvent{})

	if w := c.opt.WebIRC; w != nil {
		host := w.Host
		if host == "" {
			host = w.IP
		}
		c.Send("WEBIRC", w.Pass, w.User, host, w.IP)
	}
	if c.opt.Password != "" && !c.opt.Sasl {
		c.Send("PASS", c.opt.Password)
	}
	c.Send("CAP", "LS", "302")
	c.Send("NICK", c.opt.Nick)
	c.Send("USER", c.opt.UserName, "8", "*", c.opt.RealName)

	go c.readLoop(conn)
}

func (c *Client) floodDelay() time.Duration {
	if !c.opt.FloodProtection {
		return 0
	}
	return c.opt.FloodProtectionDelay
}

// scanIRCLines splits on CR, LF or CRLF; empty segments between a CR and
// its LF surface as empty tokens and are skipped by the read loop.
func scanIRCLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (c *Client) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), 8192)
	scanner.Split(scanIRCLines)
	conn.SetReadDeadline(time.Now().Add(idleTimeout))
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		line := c.convertEncoding(raw)
		msg := ParseMessage(line, c.opt.StripColors)
		c.emit(RawEvent{Message: msg})
		c.handleMessage(msg)
	}
	c.handleClose(conn, scanner.Err())
}

// writeError surfaces a failed write and forces the read loop down so
// the close path runs exactly once.
func (c *Client) writeError(err error) {
	if c.requestedDisconnect.Load() {
		c.logf("irc: write after disconnect: %v", err)
		return
	}
	c.emit(NetErrorEvent{Err: err})
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) handleClose(conn net.Conn, err error) {
	c.mu.Lock()
	stale := conn != c.conn
	sender := c.sender
	c.mu.Unlock()
	if stale {
		return
	}

	c.state.Registered = false

	if err != nil && !c.requestedDisconnect.Load() {
		c.emit(NetErrorEvent{Err: err})
	}
	if sender != nil {
		sender.close()
	}
	if c.requestedDisconnect.Load() || c.destroyed.Load() {
		return
	}
	if !c.ownsConn {
		c.emit(AbortEvent{RetryCount: 0})
		return
	}
	conn.Close()
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	if c.opt.RetryCount != nil && c.attempts >= *c.opt.RetryCount {
		c.emit(AbortEvent{RetryCount: c.attempts})
		return
	}
	c.attempts++
	time.AfterFunc(c.opt.RetryDelay, c.reconnect)
}

func (c *Client) reconnect() {
	if c.requestedDisconnect.Load() || c.destroyed.Load() {
		return
	}
	conn, err := c.dial()
	if err != nil {
		c.emit(NetErrorEvent{Err: err})
		c.scheduleReconnect()
		return
	}
	// capability negotiation starts over on a fresh connection
	c.state.Capabilities = Capabilities{}
	c.startConn(conn)
}

// Disconnect sends QUIT with the given message (or the default), waits
// for the write queue to drain, and closes an owned socket. No reconnect
// follows.
func (c *Client) Disconnect(message string) {
	if message == "" {
		message = DefaultQuitMessage
	}
	c.mu.Lock()
	sender := c.sender
	conn := c.conn
	c.mu.Unlock()
	if sender != nil && !c.requestedDisconnect.Load() {
		c.Send("QUIT", message)
	}
	c.requestedDisconnect.Store(true)
	if sender != nil {
		<-sender.close()
	}
	if conn != nil && c.ownsConn {
		conn.Close()
	}
}

// Destroy detaches all handlers and stops the client without sending
// QUIT. An external socket is left untouched.
func (c *Client) Destroy() {
	c.destroyed.Store(true)
	c.requestedDisconnect.Store(true)
	c.mu.Lock()
	sender := c.sender
	conn := c.conn
	c.mu.Unlock()
	if sender != nil {
		sender.close()
	}
	if conn != nil && c.ownsConn {
		conn.Close()
	}
	c.events.mu.Lock()
	c.events.handlers = nil
	c.events.mu.Unlock()
}

// Send queues one raw command. The final argument is sent as a trailing
// parameter when it is empty, contains whitespace, or begins with ':'.
// Sends after a requested disconnect are dropped silently.
func (c *Client) Send(args ...string) {
	if len(args) == 0 || c.requestedDisconnect.Load() {
		return
	}
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i == len(args)-1 && needsTrailing(arg) {
			b.WriteByte(':')
		}
		b.WriteString(arg)
	}
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	if sender != nil {
		sender.enqueue(b.String())
	}
}

// Join joins one channel (or a comma-separated list), with optional keys.
func (c *Client) Join(channel string, keys ...string) {
	c.Send(append([]string{"JOIN", channel}, keys...)...)
}

// Part leaves a channel with an optional message.
func (c *Client) Part(channel, message string) {
	if message == "" {
		c.Send("PART", channel)
		return
	}
	c.Send("PART", channel, message)
}

// Say sends text to the target, split to the line budget.
func (c *Client) Say(target, text string) {
	c.speak("PRIVMSG", target, text)
}

// Notice sends a NOTICE to the target, split to the line budget.
func (c *Client) Notice(target, text string) {
	c.speak("NOTICE", target, text)
}

// Action sends a CTCP ACTION ("/me") to the target.
func (c *Client) Action(target, text string) {
	for _, line := range c.getSplitMessages(target, text) {
		c.Send("PRIVMSG", target, "\x01ACTION "+line+"\x01")
		if c.state.Registered {
			c.emit(SelfMessageEvent{To: target, Text: line})
		}
	}
}

// Ctcp sends a CTCP request (or reply, via NOTICE) to the target.
func (c *Client) Ctcp(target, text string, notice bool) {
	cmd := "PRIVMSG"
	if notice {
		cmd = "NOTICE"
	}
	c.Send(cmd, target, "\x01"+text+"\x01")
}

// Whois requests WHOIS information for nick; the accumulated result
// arrives as a whois event.
func (c *Client) Whois(nick string) {
	c.Send("WHOIS", nick)
}

// List requests the channel list; results arrive as channellist events.
func (c *Client) List(args ...string) {
	c.Send(append([]string{"LIST"}, args...)...)
}

func (c *Client) speak(cmd, target, text string) {
	for _, line := range c.getSplitMessages(target, text) {
		c.Send(cmd, target, line)
		// sends during the initial handshake stay silent
		if c.state.Registered {
			c.emit(SelfMessageEvent{To: target, Text: line})
		}
	}
}

// getSplitMessages splits text into lines that fit the effective budget
// for the given target.
func (c *Client) getSplitMessages(target, text string) []string {
	return splitText(text, c.maxTextLength(target))
}

func (c *Client) maxTextLength(target string) int {
	budget := c.MaxLineLength() - len(target)
	if c.opt.MessageSplit < budget {
		budget = c.opt.MessageSplit
	}
	return budget
}

// isChannel reports whether name starts with one of the advertised (or
// configured) channel sigils.
func (c *Client) isChannel(name string) bool {
	types := c.state.Supported.Channel.Types
	if types == "" {
		types = c.opt.ChannelPrefixes
	}
	return name != "" && strings.IndexByte(types, name[0]) >= 0
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.opt.ErrorLog != nil {
		c.opt.ErrorLog.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
