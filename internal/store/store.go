// Package store implements the persistent keyword engine storage for paroxysm.
//
// It uses SQLite to hold two record kinds: keywords (a name plus a scope,
// either a channel or the general sentinel) and the entries taught to them.
// Every call goes straight to the database; nothing is cached, so callers
// always observe the latest committed rows.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// GeneralScope is the scope of keywords visible from every channel.
const GeneralScope = "*"

// timeLayout is how entry timestamps are persisted (always UTC).
const timeLayout = "2006-01-02 15:04:05"

// ─── Types ───────────────────────────────────────────────────────────────────

// Keyword is a named, scoped topic. Name keeps the casing it was created with.
type Keyword struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Scope string `json:"scope"`
}

// IsGeneral reports whether the keyword is visible from every channel.
func (k Keyword) IsGeneral() bool {
	return k.Scope == GeneralScope
}

// Entry is one text contribution at a 1-based position within a keyword.
type Entry struct {
	ID        int64     `json:"id"`
	KeywordID int64     `json:"keyword_id"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Author    string    `json:"author"`
}

// KeywordSummary is a keyword with its entry count and newest entry time.
type KeywordSummary struct {
	Keyword
	Entries   int        `json:"entries"`
	LastEntry *time.Time `json:"last_entry,omitempty"`
}

// Stats holds aggregate knowledge-base statistics.
type Stats struct {
	Keywords        int      `json:"keywords"`
	GeneralKeywords int      `json:"general_keywords"`
	Entries         int      `json:"entries"`
	Authors         int      `json:"authors"`
	Scopes          []string `json:"scopes"`
}

// Error is returned for any failure of the underlying database.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	// Path is the SQLite database file. Parent directories are created.
	Path string
}

// DefaultConfig returns the default configuration for the store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Path: filepath.Join(home, ".paroxysm", "paroxysm.db"),
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the keyword/entry record store backed by SQLite.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a Store with the given configuration.
// It creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("store: database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	db, err := openDB("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// SQLite has a single writer; one connection keeps every read after a
	// write on the same snapshot.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS keywords (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			name      TEXT NOT NULL,
			name_fold TEXT NOT NULL,
			chan      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_keywords_lookup ON keywords(name_fold, chan);

		CREATE TABLE IF NOT EXISTS entries (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			keyword_id  INTEGER NOT NULL,
			idx         INTEGER NOT NULL,
			text        TEXT    NOT NULL,
			creation_ts TEXT    NOT NULL,
			created_by  TEXT    NOT NULL,
			FOREIGN KEY (keyword_id) REFERENCES keywords(id)
		);

		CREATE INDEX IF NOT EXISTS idx_entries_keyword ON entries(keyword_id, idx);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Keywords ────────────────────────────────────────────────────────────────

// FindKeyword looks up a keyword by case-insensitive name that is visible
// from channel: either scoped to that channel or general. When both exist the
// channel-scoped keyword wins. It returns nil (not an error) on a miss.
func (s *Store) FindKeyword(ctx context.Context, name, channel string) (*Keyword, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, chan FROM keywords
		 WHERE name_fold = ?
		   AND (chan = ? OR chan = ?)
		 ORDER BY CASE WHEN chan = ? THEN 1 ELSE 0 END, id
		 LIMIT 1`,
		foldName(name), channel, GeneralScope, GeneralScope,
	)
	var k Keyword
	if err := row.Scan(&k.ID, &k.Name, &k.Scope); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("find keyword", err)
	}
	return &k, nil
}

// CreateKeyword inserts a keyword with the given name and scope.
func (s *Store) CreateKeyword(ctx context.Context, name, scope string) (*Keyword, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, wrap("create keyword", errors.New("empty name"))
	}
	if scope == "" {
		return nil, wrap("create keyword", errors.New("empty scope"))
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO keywords (name, name_fold, chan) VALUES (?, ?, ?)`,
		name, foldName(name), scope,
	)
	if err != nil {
		return nil, wrap("create keyword", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrap("create keyword", err)
	}
	return &Keyword{ID: id, Name: name, Scope: scope}, nil
}

// ListKeywords returns keywords with their entry counts, optionally limited
// to one scope. An empty scope lists every keyword.
func (s *Store) ListKeywords(ctx context.Context, scope string) ([]KeywordSummary, error) {
	query := `
		SELECT k.id, k.name, k.chan, COUNT(e.id), MAX(e.creation_ts)
		FROM keywords k
		LEFT JOIN entries e ON e.keyword_id = k.id
		WHERE 1=1
	`
	args := []any{}
	if scope != "" {
		query += " AND k.chan = ?"
		args = append(args, scope)
	}
	query += " GROUP BY k.id ORDER BY k.name_fold, k.chan"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list keywords", err)
	}
	defer func() { _ = rows.Close() }()

	var results []KeywordSummary
	for rows.Next() {
		var ks KeywordSummary
		var last sql.NullString
		if err := rows.Scan(&ks.ID, &ks.Name, &ks.Scope, &ks.Entries, &last); err != nil {
			return nil, wrap("list keywords", err)
		}
		if last.Valid {
			ts, err := parseTime(last.String)
			if err != nil {
				return nil, wrap("list keywords", err)
			}
			ks.LastEntry = &ts
		}
		results = append(results, ks)
	}
	return results, wrap("list keywords", rows.Err())
}

// ─── Entries ─────────────────────────────────────────────────────────────────

// ListEntries returns the entries of a keyword in ascending position order.
func (s *Store) ListEntries(ctx context.Context, keywordID int64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, keyword_id, idx, text, creation_ts, created_by
		 FROM entries WHERE keyword_id = ?
		 ORDER BY idx ASC, id ASC`,
		keywordID,
	)
	if err != nil {
		return nil, wrap("list entries", err)
	}
	defer func() { _ = rows.Close() }()

	var results []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.KeywordID, &e.Position, &e.Text, &ts, &e.Author); err != nil {
			return nil, wrap("list entries", err)
		}
		if e.CreatedAt, err = parseTime(ts); err != nil {
			return nil, wrap("list entries", err)
		}
		results = append(results, e)
	}
	return results, wrap("list entries", rows.Err())
}

// InsertEntry stores a new entry at the given position.
func (s *Store) InsertEntry(ctx context.Context, keywordID int64, position int, text, author string, createdAt time.Time) (*Entry, error) {
	createdAt = createdAt.UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (keyword_id, idx, text, creation_ts, created_by)
		 VALUES (?, ?, ?, ?, ?)`,
		keywordID, position, text, createdAt.Format(timeLayout), author,
	)
	if err != nil {
		return nil, wrap("insert entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrap("insert entry", err)
	}
	return &Entry{
		ID:        id,
		KeywordID: keywordID,
		Position:  position,
		Text:      text,
		CreatedAt: createdAt,
		Author:    author,
	}, nil
}

// UpdateEntryPosition moves a single entry row to a new position.
func (s *Store) UpdateEntryPosition(ctx context.Context, entryID int64, position int) error {
	return s.execOne(ctx, "update entry position",
		`UPDATE entries SET idx = ? WHERE id = ?`, position, entryID)
}

// UpdateEntryText replaces the text of a single entry row.
func (s *Store) UpdateEntryText(ctx context.Context, entryID int64, text string) error {
	return s.execOne(ctx, "update entry text",
		`UPDATE entries SET text = ? WHERE id = ?`, text, entryID)
}

// DeleteEntry removes a single entry row.
func (s *Store) DeleteEntry(ctx context.Context, entryID int64) error {
	return s.execOne(ctx, "delete entry",
		`DELETE FROM entries WHERE id = ?`, entryID)
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats returns aggregate statistics over the whole database.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM keywords),
			(SELECT COUNT(*) FROM keywords WHERE chan = ?),
			(SELECT COUNT(*) FROM entries),
			(SELECT COUNT(DISTINCT created_by) FROM entries)`,
		GeneralScope,
	).Scan(&st.Keywords, &st.GeneralKeywords, &st.Entries, &st.Authors)
	if err != nil {
		return nil, wrap("stats", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT chan FROM keywords ORDER BY chan`)
	if err != nil {
		return nil, wrap("stats", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, wrap("stats", err)
		}
		st.Scopes = append(st.Scopes, scope)
	}
	return &st, wrap("stats", rows.Err())
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// execOne runs a single-row statement and fails when no row was touched.
func (s *Store) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(op, err)
	}
	if n == 0 {
		return wrap(op, sql.ErrNoRows)
	}
	return nil
}

// foldName returns the case-insensitive comparison key for a keyword name.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

// Now returns the current time truncated to the persisted precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
