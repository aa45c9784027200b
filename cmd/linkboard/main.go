// Linkboard — a personal link dashboard in one binary.
//
// Serves an embedded single-page UI of reorderable link cards, keeps
// the card list in one flat JSON document, records every request to a
// daily access log with a built-in viewer, and can push the document
// to a GitHub repository as a backup.
package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"linkboard/internal/accesslog"
	"linkboard/internal/auth"
	"linkboard/internal/cards"
	"linkboard/internal/config"
	"linkboard/internal/github"
	"linkboard/internal/ratelimit"
	"linkboard/internal/webtls"
)

const version = "1.0.0"

//go:embed all:web
var webFS embed.FS

func main() {
	var (
		flagPort    = flag.Int("port", 0, "Server port (default: 8090)")
		flagHost    = flag.String("host", "", "Bind address (default: 0.0.0.0)")
		flagDataDir = flag.String("data-dir", "", "Directory holding cards.json")
		flagLogDir  = flag.String("log-dir", "", "Directory holding daily access logs")
		flagSync    = flag.Bool("sync", false, "Push the card document to GitHub once and exit")
		flagVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *flagVersion {
		fmt.Println("linkboard", version)
		return
	}

	// Priority: CLI flag > environment variable > .env > default.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "linkboard:", err)
		os.Exit(1)
	}
	if *flagPort > 0 {
		cfg.Port = *flagPort
	}
	if *flagHost != "" {
		cfg.Host = *flagHost
	}
	if *flagDataDir != "" {
		cfg.DataDir = *flagDataDir
	}
	if *flagLogDir != "" {
		cfg.LogDir = *flagLogDir
	}

	logger := newLogger(cfg)

	store := cards.NewStore(filepath.Join(cfg.DataDir, "cards.json"), logger)
	access := accesslog.New(cfg.LogDir, logger)

	var gh *github.Client
	if cfg.SyncConfigured() {
		gh = github.New(github.Config{
			Owner:      cfg.GitHubOwner,
			Repo:       cfg.GitHubRepo,
			Branch:     cfg.GitHubBranch,
			RemotePath: cfg.GitHubPath,
			Token:      cfg.GitHubToken,
			DocPath:    store.Path(),
		}, logger)
	}

	// One-shot mode: sync and exit. This is the only place a failure
	// terminates the process with a non-zero status.
	if *flagSync {
		if gh == nil {
			logger.Error("sync is not configured — set LINKBOARD_GITHUB_TOKEN and LINKBOARD_GITHUB_REPO")
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		msg, err := gh.Sync(ctx)
		if err != nil {
			logger.Error("sync failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(msg)
		return
	}

	authman, err := auth.New(cfg.Password, cfg.TokenTTL, logger)
	if err != nil {
		logger.Error("auth setup failed", "error", err)
		os.Exit(1)
	}
	if cfg.Password == "" {
		logger.Warn("LINKBOARD_PASSWORD is not set — the dashboard is read-only")
	}

	watcher := cards.NewWatcher(store, logger)
	if err := watcher.Start(); err != nil {
		logger.Warn("card document watcher unavailable", "error", err)
	} else {
		defer watcher.Stop()
	}

	limiter := ratelimit.New(cfg.RateLimit, time.Minute, strings.Split(cfg.RateAllow, ","))
	defer limiter.Close()

	srv := newServer(cfg, logger, store, access, gh, authman, watcher, limiter)

	server := &http.Server{
		Addr:        cfg.ListenAddr(),
		Handler:     srv.routes(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /api/events holds an SSE stream open.
		IdleTimeout: 60 * time.Second,
	}

	proto := "http"
	if cfg.EnableTLS {
		certDir := filepath.Join(cfg.DataDir, "tls")
		hostnames := []string{"linkboard.local"}
		if extra := os.Getenv("LINKBOARD_TLS_HOSTNAMES"); extra != "" {
			for _, h := range strings.Split(extra, ",") {
				hostnames = append(hostnames, strings.TrimSpace(h))
			}
		}
		tlsConfig, err := webtls.GenerateOrLoad(certDir, hostnames, logger)
		if err != nil {
			// Serving without TLS beats not starting; the operator can
			// fix the cert directory and restart.
			logger.Error("TLS setup failed, falling back to HTTP", "error", err)
		} else {
			server.TLSConfig = tlsConfig
			proto = "https"
		}
	}

	logger.Info("linkboard starting",
		"addr", cfg.ListenAddr(),
		"proto", proto,
		"data", store.Path(),
		"logs", cfg.LogDir,
		"sync", gh != nil,
	)
	fmt.Fprintf(os.Stdout, "\n  Linkboard v%s\n  → %s://%s\n\n", version, proto, cfg.ListenAddr())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var err error
		if proto == "https" {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	logger.Info("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("goodbye")
}

// newLogger builds the application logger: stdout always, teed into a
// rotating file when LINKBOARD_SERVER_LOG_DIR is set. This is the
// app's own log — the per-request access log is a separate, fixed
// format owned by internal/accesslog.
func newLogger(cfg *config.Config) *slog.Logger {
	var logWriter io.Writer = os.Stdout
	if cfg.ServerLogDir != "" {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.ServerLogDir, "linkboard.log"),
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		logWriter = io.MultiWriter(os.Stdout, rotator)
	}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
