package irc

import (
	"strconv"
	"time"

	"git.sr.ht/~emersion/go-scfg"
	"github.com/pkg/errors"
)

// LoadConfig reads an scfg file into a Config, so bots can keep their
// connection options next to their other settings.
//
//	server irc.libera.chat
//	port 6697
//	nickname mybot
//	tls true
//	sasl true
//	sasl-type PLAIN
//	password hunter2
//	channel "#go-nuts" "#irc"
//	flood-protection true
func LoadConfig(filename string) (Config, error) {
	var cfg Config
	directives, err := scfg.Load(filename)
	if err != nil {
		return cfg, errors.Wrap(err, "irc: parsing config")
	}

	parseBool := func(d *scfg.Directive, dst *bool) error {
		var raw string
		if err := d.ParseParams(&raw); err != nil {
			return err
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.Wrapf(err, "directive %q", d.Name)
		}
		*dst = v
		return nil
	}
	parseInt := func(d *scfg.Directive, dst *int) error {
		var raw string
		if err := d.ParseParams(&raw); err != nil {
			return err
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrapf(err, "directive %q", d.Name)
		}
		*dst = v
		return nil
	}
	parseDuration := func(d *scfg.Directive, dst *time.Duration) error {
		var raw string
		if err := d.ParseParams(&raw); err != nil {
			return err
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return errors.Wrapf(err, "directive %q", d.Name)
		}
		*dst = v
		return nil
	}

	for _, d := range directives {
		switch d.Name {
		case "server":
			err = d.ParseParams(&cfg.Server)
		case "port":
			err = parseInt(d, &cfg.Port)
		case "nickname":
			err = d.ParseParams(&cfg.Nick)
		case "username":
			err = d.ParseParams(&cfg.UserName)
		case "realname":
			err = d.ParseParams(&cfg.RealName)
		case "password":
			err = d.ParseParams(&cfg.Password)
		case "channel":
			cfg.Channels = append(cfg.Channels, d.Params...)
		case "tls":
			err = parseBool(d, &cfg.Secure)
		case "self-signed":
			err = parseBool(d, &cfg.SelfSigned)
		case "cert-expired":
			err = parseBool(d, &cfg.CertExpired)
		case "family":
			err = parseInt(d, &cfg.Family)
		case "local-address":
			err = d.ParseParams(&cfg.LocalAddress)
		case "local-port":
			err = parseInt(d, &cfg.LocalPort)
		case "bust-rfc3484":
			err = parseBool(d, &cfg.BustRfc3484)
		case "auto-rejoin":
			err = parseBool(d, &cfg.AutoRejoin)
		case "retry-count":
			var n int
			if err = parseInt(d, &n); err == nil {
				cfg.RetryCount = &n
			}
		case "retry-delay":
			err = parseDuration(d, &cfg.RetryDelay)
		case "flood-protection":
			err = parseBool(d, &cfg.FloodProtection)
		case "flood-delay":
			err = parseDuration(d, &cfg.FloodProtectionDelay)
		case "sasl":
			err = parseBool(d, &cfg.Sasl)
		case "sasl-type":
			err = d.ParseParams(&cfg.SaslType)
		case "strip-colors":
			err = parseBool(d, &cfg.StripColors)
		case "channel-prefixes":
			err = d.ParseParams(&cfg.ChannelPrefixes)
		case "message-split":
			err = parseInt(d, &cfg.MessageSplit)
		case "encoding":
			err = d.ParseParams(&cfg.Encoding)
		case "encoding-fallback":
			err = d.ParseParams(&cfg.EncodingFallback)
		case "connection-timeout":
			err = parseDuration(d, &cfg.ConnectionTimeout)
		case "webirc":
			w := &WebIRC{}
			for _, child := range d.Children {
				switch child.Name {
				case "pass":
					err = child.ParseParams(&w.Pass)
				case "user":
					err = child.ParseParams(&w.User)
				case "host":
					err = child.ParseParams(&w.Host)
				case "ip":
					err = child.ParseParams(&w.IP)
				default:
					err = errors.Errorf("unknown webirc directive %q", child.Name)
				}
				if err != nil {
					return cfg, err
				}
			}
			cfg.WebIRC = w
		default:
			err = errors.Errorf("unknown directive %q", d.Name)
		}
		if err != nil {
			return cfg, err
		}
	}

	if cfg.Server == "" {
		return cfg, errors.New("irc: server is required")
	}
	if cfg.Nick == "" {
		return cfg, errors.New("irc: nickname is required")
	}
	return cfg, nil
}
