// Package bot dispatches chat lines to keyword commands.
//
// A Bot parses one line, applies the scope and permission rules, runs the
// command against the keyword aggregate and sends the result back through a
// Notifier. It handles one message at a time; callers must not invoke Handle
// concurrently.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HendryAvila/paroxysm/internal/config"
	"github.com/HendryAvila/paroxysm/internal/grammar"
	"github.com/HendryAvila/paroxysm/internal/keyword"
	"github.com/HendryAvila/paroxysm/internal/metrics"
	"github.com/HendryAvila/paroxysm/internal/store"
)

var (
	// ErrInvalidSource is returned when the sender identity has no "!".
	ErrInvalidSource = errors.New("invalid source")
	// ErrPermissionDenied is returned when a non-admin edits a general keyword.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrScopeViolation is returned for channel-scoped writes from a private message.
	ErrScopeViolation = errors.New("scope violation")
	// ErrThrottled is returned when a nickname exceeds its command rate.
	ErrThrottled = errors.New("rate limited")
)

// Message is one line of chat as delivered by the transport.
type Message struct {
	// Sender is the full identity, nick!user@host.
	Sender string
	// Channel is where the line was sent: a channel name, or the bot's own
	// nick for a private message.
	Channel string
	Text    string
}

// Notifier delivers a notice to a channel or nickname.
type Notifier interface {
	Notice(target, text string) error
}

// NoticeFunc adapts a function to Notifier.
type NoticeFunc func(target, text string) error

func (f NoticeFunc) Notice(target, text string) error { return f(target, text) }

// Admins reports whether a nickname may edit general keywords.
// *config.AdminSet satisfies it.
type Admins interface {
	Contains(nick string) bool
}

// Bot is the command dispatcher.
type Bot struct {
	grammar *grammar.Grammar
	store   keyword.Store
	admins  Admins
	log     *zap.Logger
	metrics *metrics.Metrics
	flood   *limiterPool
	clock   keyword.Clock
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics records command outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bot) { b.metrics = m }
}

// WithFloodLimit allows each nickname rps commands per second with the given
// burst. rps <= 0 disables limiting.
func WithFloodLimit(rps float64, burst int) Option {
	return func(b *Bot) { b.flood = newLimiterPool(rps, burst) }
}

// WithClock overrides the clock used to stamp entries.
func WithClock(c keyword.Clock) Option {
	return func(b *Bot) { b.clock = c }
}

// New builds a dispatcher. g should be shared; it is immutable.
func New(g *grammar.Grammar, st keyword.Store, admins Admins, opts ...Option) *Bot {
	b := &Bot{
		grammar: g,
		store:   st,
		admins:  admins,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Nick returns the part of sender before the first "!".
func Nick(sender string) (string, error) {
	nick, _, ok := strings.Cut(sender, "!")
	if !ok || nick == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, sender)
	}
	return nick, nil
}

// ReplyTarget is channel when it names a channel, otherwise nick.
func ReplyTarget(channel, nick string) string {
	if config.IsChannel(channel) {
		return channel
	}
	return nick
}

// request carries the per-message values the command handlers need.
type request struct {
	nick    string
	channel string
	private bool
	log     *zap.Logger
}

// lookup is the scope keywords are resolved from. Private messages only see
// general keywords.
func (r request) lookup(general bool) string {
	if general || r.private {
		return store.GeneralScope
	}
	return r.channel
}

// Handle processes one chat line. Lines that are not commands are ignored and
// return nil. Any other failure is reported to the sender as a notice and
// also returned, so callers can log it; the Bot stays usable either way.
func (b *Bot) Handle(ctx context.Context, msg Message, n Notifier) error {
	cmd, perr := b.grammar.Parse(msg.Text)
	if errors.Is(perr, grammar.ErrNoMatch) {
		b.metrics.MessageIgnored()
		return nil
	}

	nick, err := Nick(msg.Sender)
	if err != nil {
		b.log.Warn("dropping command", zap.String("sender", msg.Sender), zap.Error(err))
		return err
	}

	name := "invalid"
	if cmd != nil {
		name = grammar.Name(cmd)
	}
	req := request{
		nick:    nick,
		channel: msg.Channel,
		private: !config.IsChannel(msg.Channel),
		log: b.log.With(
			zap.String("cmd_id", uuid.NewString()),
			zap.String("command", name),
			zap.String("nick", nick),
			zap.String("channel", msg.Channel),
		),
	}

	if !b.flood.Allow(nick) {
		req.log.Info("command throttled")
		b.metrics.ObserveCommand(name, metrics.OutcomeThrottled, 0)
		return ErrThrottled
	}

	start := time.Now()
	var replies []string
	err = perr
	if err == nil {
		replies, err = b.run(ctx, req, cmd)
	}
	elapsed := time.Since(start)

	if err != nil {
		b.metrics.ObserveCommand(name, outcome(err), elapsed)
		req.log.Info("command failed", zap.Error(err), zap.Duration("took", elapsed))
		if nerr := b.notice(n, nick, "\x02Error:\x0f "+userMessage(err)); nerr != nil {
			req.log.Warn("error notice not delivered", zap.Error(nerr))
		}
		return err
	}

	b.metrics.ObserveCommand(name, metrics.OutcomeOK, elapsed)
	req.log.Debug("command handled", zap.Int("replies", len(replies)), zap.Duration("took", elapsed))
	target := ReplyTarget(msg.Channel, nick)
	for _, r := range replies {
		if err := b.notice(n, target, r); err != nil {
			return fmt.Errorf("sending notice to %s: %w", target, err)
		}
	}
	return nil
}

func (b *Bot) notice(n Notifier, target, text string) error {
	if err := n.Notice(target, text); err != nil {
		return err
	}
	b.metrics.NoticeSent()
	return nil
}

func (b *Bot) run(ctx context.Context, req request, cmd grammar.Command) ([]string, error) {
	switch c := cmd.(type) {
	case grammar.Learn:
		return b.learn(ctx, req, c)
	case grammar.Swap:
		return b.swap(ctx, req, c)
	case grammar.Delete:
		return b.delete(ctx, req, c)
	case grammar.Increment:
		return b.increment(ctx, req, c)
	case grammar.Query:
		return b.query(ctx, req, c)
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
}

func (b *Bot) opts() []keyword.Option {
	if b.clock == nil {
		return nil
	}
	return []keyword.Option{keyword.WithClock(b.clock)}
}

// authorize fails unless nick may write to a keyword in scope.
func (b *Bot) authorize(req request, scope string) error {
	if scope != store.GeneralScope {
		return nil
	}
	if b.admins != nil && b.admins.Contains(req.nick) {
		return nil
	}
	return fmt.Errorf("%w: only admins may edit general keywords", ErrPermissionDenied)
}

// writable resolves subject for a command that may create it. The admin
// check runs before the keyword is created.
func (b *Bot) writable(ctx context.Context, req request, subject string, general bool) (*keyword.Keyword, error) {
	if req.private && !general {
		return nil, fmt.Errorf("%w: use ??! to teach general keywords from a private message", ErrScopeViolation)
	}
	k, err := b.editable(ctx, req, subject, general)
	if err != nil {
		return nil, err
	}
	if k != nil {
		if err := b.authorize(req, k.Scope()); err != nil {
			return nil, err
		}
		return k, nil
	}

	scope := req.lookup(general)
	if err := b.authorize(req, scope); err != nil {
		return nil, err
	}
	k, err = keyword.Create(ctx, b.store, subject, scope, b.opts()...)
	if err != nil {
		return nil, err
	}
	req.log.Info("keyword created", zap.String("keyword", k.Name()), zap.String("scope", scope))
	return k, nil
}

// editable resolves subject for an edit. A keyword caught in a redirect loop
// is loaded as itself so its "see:" entry can still be removed.
func (b *Bot) editable(ctx context.Context, req request, subject string, general bool) (*keyword.Keyword, error) {
	k, err := keyword.Get(ctx, b.store, subject, req.lookup(general), b.opts()...)
	if errors.Is(err, keyword.ErrRedirectLoop) {
		req.log.Warn("editing keyword without following its redirects", zap.Error(err))
		return keyword.Load(ctx, b.store, subject, req.lookup(general), b.opts()...)
	}
	return k, err
}

// existing resolves subject for a command that only edits what is there.
func (b *Bot) existing(ctx context.Context, req request, subject string, general bool) (*keyword.Keyword, error) {
	k, err := b.editable(ctx, req, subject, general)
	if err != nil {
		return nil, err
	}
	if k == nil {
		return nil, fmt.Errorf("%w: unknown keyword %q", keyword.ErrNotFound, subject)
	}
	if err := b.authorize(req, k.Scope()); err != nil {
		return nil, err
	}
	return k, nil
}

func (b *Bot) learn(ctx context.Context, req request, c grammar.Learn) ([]string, error) {
	k, err := b.writable(ctx, req, c.Subject, c.General)
	if err != nil {
		return nil, err
	}
	pos, err := k.Learn(ctx, req.nick, c.Value)
	if err != nil {
		return nil, err
	}
	req.log.Info("entry learned", zap.String("keyword", k.Name()), zap.Int("position", pos))
	line, _ := k.Format(pos)
	return []string{line}, nil
}

func (b *Bot) swap(ctx context.Context, req request, c grammar.Swap) ([]string, error) {
	k, err := b.existing(ctx, req, c.Subject, c.General)
	if err != nil {
		return nil, err
	}
	if err := k.Swap(ctx, c.From, c.To); err != nil {
		return nil, err
	}
	req.log.Info("entries swapped", zap.String("keyword", k.Name()), zap.Int("from", c.From), zap.Int("to", c.To))
	return []string{fmt.Sprintf("\x02%s\x0f: Swapped entries %d and %d.", k.Name(), c.From, c.To)}, nil
}

func (b *Bot) delete(ctx context.Context, req request, c grammar.Delete) ([]string, error) {
	k, err := b.existing(ctx, req, c.Subject, c.General)
	if err != nil {
		return nil, err
	}
	if err := k.Delete(ctx, c.Position); err != nil {
		return nil, err
	}
	req.log.Info("entry deleted", zap.String("keyword", k.Name()), zap.Int("position", c.Position))
	return []string{fmt.Sprintf("\x02%s\x0f: Deleted entry %d.", k.Name(), c.Position)}, nil
}

func (b *Bot) increment(ctx context.Context, req request, c grammar.Increment) ([]string, error) {
	k, err := b.writable(ctx, req, c.Subject, c.General)
	if err != nil {
		return nil, err
	}
	pos, created, err := k.Increment(ctx, req.nick, c.Delta)
	if err != nil {
		return nil, err
	}
	req.log.Info("counter updated", zap.String("keyword", k.Name()), zap.Int("position", pos), zap.Bool("created", created))
	line, _ := k.Format(pos)
	return []string{line}, nil
}

func (b *Bot) query(ctx context.Context, req request, c grammar.Query) ([]string, error) {
	k, err := keyword.Get(ctx, b.store, c.Subject, req.lookup(c.General), b.opts()...)
	if err != nil {
		return nil, err
	}
	switch {
	case k == nil:
		return []string{c.Subject + ": no entries yet"}, nil
	case k.Len() == 0:
		return []string{c.Subject + ": blank keyword"}, nil
	case c.All:
		out := make([]string, 0, k.Len())
		for i := 1; i <= k.Len(); i++ {
			line, _ := k.Format(i)
			out = append(out, line)
		}
		return out, nil
	}
	line, ok := k.Format(c.Position)
	if !ok {
		return []string{fmt.Sprintf("%s: only has %d entries", c.Subject, k.Len())}, nil
	}
	return []string{line}, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrScopeViolation):
		return metrics.OutcomeDenied
	default:
		return metrics.OutcomeError
	}
}

// userMessage is the text shown in chat for err. Database details stay in
// the logs.
func userMessage(err error) string {
	var se *store.Error
	if errors.As(err, &se) {
		return "the knowledge base is unavailable, try again later"
	}
	return err.Error()
}
