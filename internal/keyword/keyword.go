// Package keyword holds the keyword aggregate: one keyword plus its ordered
// entries, loaded fresh for every command.
//
// The aggregate owns every list-maintenance algorithm (learn, delete with
// reindex, swap, increment). Positions are kept dense (1..N). After any edit
// that can touch more than one row the entry list is re-read from the store
// instead of being patched in memory.
package keyword

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/HendryAvila/paroxysm/internal/store"
)

// RedirectPrefix marks an entry that points at another keyword.
const RedirectPrefix = "see: "

// MaxRedirects bounds how many "see:" hops a lookup follows.
const MaxRedirects = 8

var (
	// ErrNotFound is returned when no entry occupies a requested position.
	ErrNotFound = errors.New("no such entry")
	// ErrRedirectLoop is returned when "see:" entries chain deeper than MaxRedirects.
	ErrRedirectLoop = errors.New("too many redirects")
)

// Store is the persistence the aggregate needs. *store.Store satisfies it.
type Store interface {
	FindKeyword(ctx context.Context, name, channel string) (*store.Keyword, error)
	CreateKeyword(ctx context.Context, name, scope string) (*store.Keyword, error)
	ListEntries(ctx context.Context, keywordID int64) ([]store.Entry, error)
	InsertEntry(ctx context.Context, keywordID int64, position int, text, author string, createdAt time.Time) (*store.Entry, error)
	UpdateEntryPosition(ctx context.Context, entryID int64, position int) error
	UpdateEntryText(ctx context.Context, entryID int64, text string) error
	DeleteEntry(ctx context.Context, entryID int64) error
}

// Clock returns the current time. Tests replace it to pin dates.
type Clock func() time.Time

// Keyword is a keyword with its materialized, position-ordered entries.
type Keyword struct {
	st      Store
	now     Clock
	keyword store.Keyword
	entries []store.Entry
}

// Option configures a loaded Keyword.
type Option func(*Keyword)

// WithClock overrides the clock used to stamp and date entries.
func WithClock(c Clock) Option {
	return func(k *Keyword) {
		if c != nil {
			k.now = c
		}
	}
}

// Get resolves name as seen from channel and loads its entries. A keyword
// whose first entry is a redirect is replaced by its target, which is looked
// up from the same channel. It returns nil (not an error) when no keyword is
// visible.
func Get(ctx context.Context, st Store, name, channel string, opts ...Option) (*Keyword, error) {
	return get(ctx, st, name, channel, 0, opts)
}

func get(ctx context.Context, st Store, name, channel string, depth int, opts []Option) (*Keyword, error) {
	if depth > MaxRedirects {
		return nil, fmt.Errorf("%w: %q", ErrRedirectLoop, name)
	}
	k, err := Load(ctx, st, name, channel, opts...)
	if err != nil || k == nil {
		return nil, err
	}

	target, ok := k.Redirect()
	if !ok {
		return k, nil
	}
	resolved, err := get(ctx, st, target, channel, depth+1, opts)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		// dangling alias, keep the alias itself
		return k, nil
	}
	return resolved, nil
}

// Load resolves name as seen from channel without following redirects. Edits
// of an alias itself, such as removing a looping "see:" entry, go through it.
func Load(ctx context.Context, st Store, name, channel string, opts ...Option) (*Keyword, error) {
	kw, err := st.FindKeyword(ctx, name, channel)
	if err != nil || kw == nil {
		return nil, err
	}
	k := newKeyword(st, *kw, opts)
	if err := k.reload(ctx); err != nil {
		return nil, err
	}
	return k, nil
}

// GetOrCreate behaves like Get but creates an empty keyword scoped to
// channel when none is visible.
func GetOrCreate(ctx context.Context, st Store, name, channel string, opts ...Option) (*Keyword, error) {
	k, err := Get(ctx, st, name, channel, opts...)
	if err != nil || k != nil {
		return k, err
	}
	return Create(ctx, st, name, channel, opts...)
}

// Create makes a new keyword with zero entries.
func Create(ctx context.Context, st Store, name, scope string, opts ...Option) (*Keyword, error) {
	kw, err := st.CreateKeyword(ctx, strings.TrimSpace(name), scope)
	if err != nil {
		return nil, err
	}
	return newKeyword(st, *kw, opts), nil
}

func newKeyword(st Store, kw store.Keyword, opts []Option) *Keyword {
	k := &Keyword{st: st, now: store.Now, keyword: kw}
	for _, o := range opts {
		o(k)
	}
	return k
}

// ID returns the store identifier of the keyword.
func (k *Keyword) ID() int64 { return k.keyword.ID }

// Name returns the keyword name as it was first taught.
func (k *Keyword) Name() string { return k.keyword.Name }

// Scope returns the channel the keyword belongs to, or store.GeneralScope.
func (k *Keyword) Scope() string { return k.keyword.Scope }

// IsGeneral reports whether the keyword is visible from every channel.
func (k *Keyword) IsGeneral() bool { return k.keyword.IsGeneral() }

// Len returns the number of entries.
func (k *Keyword) Len() int { return len(k.entries) }

// Entries returns a copy of the entries in position order.
func (k *Keyword) Entries() []store.Entry {
	out := make([]store.Entry, len(k.entries))
	copy(out, k.entries)
	return out
}

// Redirect reports the keyword named by a "see: " entry at position 1.
func (k *Keyword) Redirect() (string, bool) {
	if len(k.entries) == 0 {
		return "", false
	}
	text := k.entries[0].Text
	if !strings.HasPrefix(text, RedirectPrefix) {
		return "", false
	}
	target := strings.TrimSpace(strings.TrimPrefix(text, RedirectPrefix))
	if target == "" {
		return "", false
	}
	return target, true
}

// Learn appends an entry at the end of the list and returns its position.
func (k *Keyword) Learn(ctx context.Context, author, text string) (int, error) {
	pos := len(k.entries) + 1
	e, err := k.st.InsertEntry(ctx, k.keyword.ID, pos, text, author, k.now())
	if err != nil {
		return 0, err
	}
	k.entries = append(k.entries, *e)
	return pos, nil
}

// Format renders the entry at position for chat. General keywords get an
// orange name. It returns false when position is outside [1, Len()].
func (k *Keyword) Format(position int) (string, bool) {
	if position < 1 || position > len(k.entries) {
		return "", false
	}
	e := k.entries[position-1]
	color := ""
	if k.IsGeneral() {
		color = "\x0307"
	}
	return fmt.Sprintf("\x02%s%s\x0f[%d/%d]: %s \x0314[%s]\x0f",
		color, k.keyword.Name, position, len(k.entries), e.Text, e.CreatedAt.UTC().Format(time.DateOnly)), true
}

// Swap exchanges the entries at positions a and b.
func (k *Keyword) Swap(ctx context.Context, a, b int) error {
	var found []store.Entry
	for _, e := range k.entries {
		if e.Position == a || e.Position == b {
			found = append(found, e)
		}
	}
	if len(found) != 2 {
		return fmt.Errorf("%w: expected entries at %d and %d, found %d", ErrNotFound, a, b, len(found))
	}
	if err := k.st.UpdateEntryPosition(ctx, found[0].ID, found[1].Position); err != nil {
		return err
	}
	if err := k.st.UpdateEntryPosition(ctx, found[1].ID, found[0].Position); err != nil {
		return err
	}
	return k.reload(ctx)
}

// Delete removes the entry at position and closes the gap.
func (k *Keyword) Delete(ctx context.Context, position int) error {
	var victim *store.Entry
	for i := range k.entries {
		if k.entries[i].Position == position {
			victim = &k.entries[i]
			break
		}
	}
	if victim == nil {
		return fmt.Errorf("%w: no entry at position %d", ErrNotFound, position)
	}
	if err := k.st.DeleteEntry(ctx, victim.ID); err != nil {
		return err
	}
	for _, e := range k.entries {
		if e.Position > position {
			if err := k.st.UpdateEntryPosition(ctx, e.ID, e.Position-1); err != nil {
				return err
			}
		}
	}
	return k.reload(ctx)
}

// Move swaps position with target, or deletes position when target is
// negative. Chat commands arrive already split into swaps and deletes; this
// exists for callers holding a single signed target.
func (k *Keyword) Move(ctx context.Context, position, target int) error {
	if target < 0 {
		return k.Delete(ctx, position)
	}
	return k.Swap(ctx, position, target)
}

// Increment adds delta to the newest integer entry created today and returns
// its position. Without such an entry it learns delta as a new entry and
// reports created. When that counter would overflow int64 it is left
// alone and delta is learned instead.
func (k *Keyword) Increment(ctx context.Context, author string, delta int64) (position int, created bool, err error) {
	today := k.now().UTC().Format(time.DateOnly)
	var latest *store.Entry
	var value int64
	for i := range k.entries {
		e := &k.entries[i]
		if e.CreatedAt.UTC().Format(time.DateOnly) != today {
			continue
		}
		val, perr := strconv.ParseInt(strings.TrimSpace(e.Text), 10, 64)
		if perr != nil {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) ||
			(e.CreatedAt.Equal(latest.CreatedAt) && e.ID > latest.ID) {
			latest, value = e, val
		}
	}
	if latest != nil && !overflows(value, delta) {
		text := strconv.FormatInt(value+delta, 10)
		if err := k.st.UpdateEntryText(ctx, latest.ID, text); err != nil {
			return 0, false, err
		}
		latest.Text = text
		return latest.Position, false, nil
	}

	pos, err := k.Learn(ctx, author, strconv.FormatInt(delta, 10))
	if err != nil {
		return 0, false, err
	}
	return pos, true, nil
}

func overflows(v, delta int64) bool {
	return (delta > 0 && v > math.MaxInt64-delta) || (delta < 0 && v < math.MinInt64-delta)
}

func (k *Keyword) reload(ctx context.Context) error {
	entries, err := k.st.ListEntries(ctx, k.keyword.ID)
	if err != nil {
		return err
	}
	k.entries = entries
	return nil
}
