// Command serenityd runs the breathing pacer and ambience engine headless and
// exposes them over HTTP and websocket.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/j-emboi/sarcastic-serenity/internal/blob"
	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
	"github.com/j-emboi/sarcastic-serenity/internal/config"
	"github.com/j-emboi/sarcastic-serenity/internal/httpapi"
	"github.com/j-emboi/sarcastic-serenity/internal/session"
	"github.com/j-emboi/sarcastic-serenity/internal/store"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	addr := flag.String("addr", ":8080", "Echo listen address")
	dbPath := flag.String("db", "serenity.db", "SQLite database path")
	tracksDir := flag.String("tracks-dir", "", "Track directory path (defaults to <db-dir>/tracks)")
	outputBackend := flag.String("output", "", "Audio output backend: portaudio, speaker or none (defaults to config)")
	pattern := flag.String("pattern", "", "Initial breathing pattern ID (defaults to config)")
	debug := flag.Bool("debug", false, "Enable debug logging (auto-enabled for dev builds)")
	flag.Parse()

	handled, err := RunCLI(flag.Args(), *dbPath, os.Stdout)
	if err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
	if handled {
		return
	}

	level := slog.LevelInfo
	if *debug || strings.Contains(Version, "dev") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.ApplyEnv(config.Load())
	if v := strings.TrimSpace(*outputBackend); v != "" {
		cfg.OutputBackend = v
	}
	if v := strings.TrimSpace(*pattern); v != "" {
		cfg.PatternID = v
	}
	slog.Info("starting serenityd", "version", Version, "addr", *addr, "db", *dbPath, "output", cfg.OutputBackend)

	sqliteStore, err := store.Open(*dbPath)
	if err != nil {
		slog.Error("open sqlite store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			slog.Error("close sqlite store", "err", closeErr)
		}
	}()

	trackRoot := strings.TrimSpace(*tracksDir)
	if trackRoot == "" {
		trackRoot = filepath.Join(filepath.Dir(*dbPath), "tracks")
	}
	slog.Debug("track store", "dir", trackRoot)

	tracks, err := blob.NewStore(trackRoot, sqliteStore)
	if err != nil {
		slog.Error("initialize track store", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := resolveInitialPattern(ctx, sqliteStore, cfg.PatternID)
	if err != nil {
		slog.Warn("initial pattern", "id", cfg.PatternID, "err", err)
		p = breathing.MustPattern("box")
	}

	sess, err := session.Build(p, cfg, session.Options{History: sqliteStore})
	if err != nil {
		slog.Error("build session", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			slog.Error("close session", "err", closeErr)
		}
	}()

	server := httpapi.New(sess, sqliteStore, tracks)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("received interrupt, shutting down")
		cancel()
	}()

	slog.Info("listening", "addr", *addr)
	if err := server.Run(ctx, *addr); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// resolveInitialPattern looks id up in the built-in catalog, then in the
// custom patterns table.
func resolveInitialPattern(ctx context.Context, st *store.Store, id string) (breathing.Pattern, error) {
	if p, err := breathing.PatternByID(id); err == nil {
		return p, nil
	}
	return st.PatternByID(ctx, strings.ToLower(strings.TrimSpace(id)))
}
