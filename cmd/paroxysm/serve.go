package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/HendryAvila/paroxysm/internal/bot"
	"github.com/HendryAvila/paroxysm/internal/config"
	"github.com/HendryAvila/paroxysm/internal/grammar"
	"github.com/HendryAvila/paroxysm/internal/irc"
	"github.com/HendryAvila/paroxysm/internal/metrics"
	kbserver "github.com/HendryAvila/paroxysm/internal/server"
	"github.com/HendryAvila/paroxysm/internal/store"
)

// runServe wires the chat side: store, admins, metrics, dispatcher and the
// IRC connection. It returns when interrupted.
func runServe(parent context.Context, a *app) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := a.log
	cfg := a.cfg

	st, err := store.New(store.Config{Path: cfg.Database})
	if err != nil {
		return fmt.Errorf("opening knowledge base: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("store close failed", zap.Error(err))
		}
	}()

	admins := config.NewAdminSet(cfg.Admins)
	m := metrics.New()
	m.WatchStore(st.Stats)

	var wg sync.WaitGroup
	if _, err := os.Stat(a.configPath); err == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := config.WatchAdmins(ctx, a.configPath, admins, log.Named("config")); err != nil {
				log.Warn("admin reload disabled", zap.Error(err))
			}
		}()
	}
	if cfg.Metrics.Listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Serve(ctx, cfg.Metrics.Listen, log.Named("metrics")); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	b := bot.New(grammar.New(), st, admins,
		bot.WithLogger(log.Named("bot")),
		bot.WithMetrics(m),
		bot.WithFloodLimit(cfg.Flood.Rate, cfg.Flood.Burst),
	)

	log.Info("paroxysm starting",
		zap.String("version", kbserver.Version),
		zap.String("database", cfg.Database),
		zap.Strings("admins", admins.List()),
		zap.Strings("channels", cfg.IRC.Channels),
	)
	err = irc.New(cfg.IRC, b, log.Named("irc")).Run(ctx)
	stop()
	wg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("paroxysm stopped")
	return nil
}

// runMCP serves the operator tools on stdio. Logs go to stderr so they
// don't interfere with MCP's stdio transport on stdout.
func runMCP(a *app) error {
	s, cleanup, err := kbserver.New(a.cfg, a.log.Named("mcp"))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	a.log.Info("mcp server starting", zap.String("database", a.cfg.Database))
	return mcpserver.ServeStdio(s)
}
