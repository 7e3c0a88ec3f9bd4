// Package irc connects the dispatcher to an IRC network.
//
// Each PRIVMSG is converted to a bot.Message and handled synchronously on the
// connection's read loop, so commands run one at a time in arrival order.
// Replies go out as NOTICE.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/irc.v4"

	"github.com/HendryAvila/paroxysm/internal/bot"
	"github.com/HendryAvila/paroxysm/internal/config"
)

const (
	dialTimeout   = 30 * time.Second
	pingFrequency = 2 * time.Minute
	pingTimeout   = time.Minute
)

// Handler consumes chat lines. *bot.Bot satisfies it.
type Handler interface {
	Handle(ctx context.Context, msg bot.Message, n bot.Notifier) error
}

// Client is a reconnecting IRC connection.
type Client struct {
	cfg     config.IRCConfig
	handler Handler
	log     *zap.Logger
	dial    func(ctx context.Context) (net.Conn, error)
}

// New returns a client for cfg. Call Run to connect.
func New(cfg config.IRCConfig, h Handler, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{cfg: cfg, handler: h, log: log}
	c.dial = c.dialServer
	return c
}

// Run connects and serves until ctx is cancelled, reconnecting after
// cfg.ReconnectDelay whenever the connection drops.
func (c *Client) Run(ctx context.Context) error {
	delay := c.cfg.ReconnectDelay.Duration()
	if delay <= 0 {
		delay = 10 * time.Second
	}
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("irc connection lost", zap.String("server", c.cfg.Server), zap.Error(err), zap.Duration("retry_in", delay))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.cfg.Server, err)
	}
	defer func() { _ = conn.Close() }()
	c.log.Info("irc connected", zap.String("server", c.cfg.Server), zap.Bool("tls", c.cfg.TLS))

	client := irc.NewClient(conn, irc.ClientConfig{
		Nick:          c.cfg.Nick,
		Pass:          c.cfg.Password,
		User:          c.cfg.User,
		Name:          c.cfg.RealName,
		PingFrequency: pingFrequency,
		PingTimeout:   pingTimeout,
		Handler: irc.HandlerFunc(func(cl *irc.Client, m *irc.Message) {
			c.dispatch(ctx, cl, m)
		}),
	})
	return client.RunContext(ctx)
}

func (c *Client) dialServer(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: dialTimeout}
	if !c.cfg.TLS {
		return d.DialContext(ctx, "tcp", c.cfg.Server)
	}
	host, _, err := net.SplitHostPort(c.cfg.Server)
	if err != nil {
		return nil, err
	}
	td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}}
	return td.DialContext(ctx, "tcp", c.cfg.Server)
}

// messageWriter is the part of *irc.Client used to send.
type messageWriter interface {
	WriteMessage(m *irc.Message) error
}

func (c *Client) dispatch(ctx context.Context, w messageWriter, m *irc.Message) {
	switch m.Command {
	case "001":
		for _, ch := range c.cfg.Channels {
			if err := w.WriteMessage(JoinMessage(ch)); err != nil {
				c.log.Warn("join failed", zap.String("channel", ch), zap.Error(err))
				continue
			}
			c.log.Info("joining", zap.String("channel", ch))
		}
	case "PRIVMSG":
		msg, ok := ToMessage(m)
		if !ok {
			return
		}
		if err := c.handler.Handle(ctx, msg, notifier{w}); err != nil {
			c.log.Debug("command not completed", zap.String("sender", msg.Sender), zap.Error(err))
		}
	}
}

// ToMessage converts a PRIVMSG to a dispatcher message. It reports false for
// anything else.
func ToMessage(m *irc.Message) (bot.Message, bool) {
	if m == nil || m.Command != "PRIVMSG" || len(m.Params) < 2 {
		return bot.Message{}, false
	}
	sender := ""
	if m.Prefix != nil {
		sender = m.Prefix.String()
	}
	return bot.Message{Sender: sender, Channel: m.Params[0], Text: m.Trailing()}, true
}

// NoticeMessage builds a NOTICE. Line breaks in text are flattened since
// they would end the IRC line early.
func NoticeMessage(target, text string) *irc.Message {
	text = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(text)
	return &irc.Message{Command: "NOTICE", Params: []string{target, text}}
}

// JoinMessage builds a JOIN for channel.
func JoinMessage(channel string) *irc.Message {
	return &irc.Message{Command: "JOIN", Params: []string{channel}}
}

type notifier struct {
	w messageWriter
}

func (n notifier) Notice(target, text string) error {
	return n.w.WriteMessage(NoticeMessage(target, text))
}
