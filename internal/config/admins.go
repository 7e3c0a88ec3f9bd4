package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// AdminSet is the set of nicknames allowed to edit general keywords. It is
// safe for concurrent use so that a watcher can swap it while the bot reads.
type AdminSet struct {
	mu    sync.RWMutex
	nicks map[string]struct{}
}

// NewAdminSet builds a set from nicknames. Matching is case-insensitive.
func NewAdminSet(nicks []string) *AdminSet {
	a := &AdminSet{}
	a.Replace(nicks)
	return a
}

// Contains reports whether nick is an administrator.
func (a *AdminSet) Contains(nick string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.nicks[strings.ToLower(nick)]
	return ok
}

// Replace swaps the whole set.
func (a *AdminSet) Replace(nicks []string) {
	m := make(map[string]struct{}, len(nicks))
	for _, n := range nicks {
		if n = strings.TrimSpace(n); n != "" {
			m[strings.ToLower(n)] = struct{}{}
		}
	}
	a.mu.Lock()
	a.nicks = m
	a.mu.Unlock()
}

// List returns the administrators in sorted order.
func (a *AdminSet) List() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.nicks))
	for n := range a.nicks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// WatchAdmins reloads the admin list into admins whenever the config file at
// path changes. It blocks until ctx is cancelled. A file that fails to load
// is logged and leaves the current set untouched.
func WatchAdmins(ctx context.Context, path string, admins *AdminSet, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	// Watch the directory: editors often replace the file instead of writing it.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				log.Warn("admin reload failed", zap.String("path", abs), zap.Error(err))
				continue
			}
			admins.Replace(cfg.Admins)
			log.Info("admins reloaded", zap.Strings("admins", admins.List()))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}
