package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"

	"linkboard/internal/accesslog"
	"linkboard/internal/auth"
	"linkboard/internal/cards"
	"linkboard/internal/config"
	"linkboard/internal/github"
	"linkboard/internal/httputil"
	"linkboard/internal/logstats"
	"linkboard/internal/ratelimit"
)

type server struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *cards.Store
	access  *accesslog.Log
	gh      *github.Client // nil when sync is not configured
	auth    *auth.Manager
	watcher *cards.Watcher
	limiter *ratelimit.Limiter
}

func newServer(cfg *config.Config, logger *slog.Logger, store *cards.Store,
	access *accesslog.Log, gh *github.Client, authman *auth.Manager,
	watcher *cards.Watcher, limiter *ratelimit.Limiter) *server {
	return &server{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		access:  access,
		gh:      gh,
		auth:    authman,
		watcher: watcher,
		limiter: limiter,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	// The access log runs before dispatch and never fails the request.
	r.Use(s.access.Middleware)
	r.Use(secureHeaders)

	r.Route("/api", func(api chi.Router) {
		api.Get("/cards", s.handleGetCards)
		api.With(s.auth.Middleware).Post("/cards", s.handleReplaceCards)
		api.With(s.auth.Middleware).Post("/sync", s.handleSync)
		api.With(s.limiter.Middleware(s.logger)).Post("/verify-password", s.handleVerifyPassword)
		api.Get("/logs", s.handleTodayLog)
		api.Get("/logs/files", s.handleLogFiles)
		api.Get("/logs/{filename}", s.handleLogFile)
		api.Get("/logs/{filename}/stats", s.handleLogStats)
		api.Get("/events", s.handleEvents)
	})

	webSub, err := fs.Sub(webFS, "web")
	if err != nil {
		// Embedded assets missing means a corrupted binary; nothing to serve.
		s.logger.Error("failed to load embedded web files", "error", err)
		os.Exit(1)
	}
	r.Handle("/*", http.FileServer(http.FS(webSub)))

	return r
}

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// GET /api/cards — plain JSON array, empty on any read failure.
func (s *server) handleGetCards(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, s.store.Load())
}

// POST /api/cards — replace the whole document.
func (s *server) handleReplaceCards(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var incoming []cards.Card
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		httputil.Fail(w, r, s.logger, http.StatusBadRequest, "request body must be a JSON array of cards")
		return
	}
	seen := make(map[int]bool, len(incoming))
	for _, c := range incoming {
		if seen[c.ID] {
			httputil.Fail(w, r, s.logger, http.StatusBadRequest, fmt.Sprintf("duplicate card id %d", c.ID))
			return
		}
		seen[c.ID] = true
	}

	if err := s.store.Replace(incoming); err != nil {
		s.logger.Error("card document write failed", "error", err)
		httputil.Fail(w, r, s.logger, http.StatusInternalServerError, "failed to save cards")
		return
	}
	httputil.OK(w, map[string]any{"success": true})
}

// POST /api/verify-password — exchange the shared password for a token.
func (s *server) handleVerifyPassword(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Fail(w, r, s.logger, http.StatusBadRequest, "request body must be JSON with a password field")
		return
	}
	if !s.auth.VerifyPassword(req.Password) {
		httputil.Fail(w, r, s.logger, http.StatusUnauthorized, "invalid password")
		return
	}

	token, expiresAt, err := s.auth.Issue()
	if err != nil {
		s.logger.Error("token mint failed", "error", err)
		httputil.Fail(w, r, s.logger, http.StatusInternalServerError, "could not create session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.OK(w, map[string]any{
		"success":    true,
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

// POST /api/sync — push the card document to GitHub.
func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.gh == nil {
		httputil.Fail(w, r, s.logger, http.StatusServiceUnavailable, "sync is not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	msg, err := s.gh.Sync(ctx)
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		httputil.Fail(w, r, s.logger, http.StatusBadGateway, "sync failed: "+err.Error())
		return
	}
	httputil.OK(w, map[string]any{"success": true, "message": msg})
}

// GET /api/logs/files — catalog, newest first.
func (s *server) handleLogFiles(w http.ResponseWriter, r *http.Request) {
	names, err := s.access.List()
	if err != nil {
		s.logger.Error("log directory unreadable", "error", err)
		httputil.Fail(w, r, s.logger, http.StatusInternalServerError, "could not read log directory")
		return
	}
	httputil.OK(w, map[string]any{"success": true, "files": names})
}

// GET /api/logs — today's raw log.
func (s *server) handleTodayLog(w http.ResponseWriter, r *http.Request) {
	s.writeLogText(w, r, s.access.TodayName())
}

// GET /api/logs/{filename} — one raw log by validated name.
func (s *server) handleLogFile(w http.ResponseWriter, r *http.Request) {
	s.writeLogText(w, r, chi.URLParam(r, "filename"))
}

func (s *server) writeLogText(w http.ResponseWriter, r *http.Request, name string) {
	text, err := s.access.Read(name)
	switch {
	case errors.Is(err, accesslog.ErrBadName):
		httputil.Fail(w, r, s.logger, http.StatusBadRequest, "invalid log file name")
	case errors.Is(err, accesslog.ErrNotFound):
		httputil.Fail(w, r, s.logger, http.StatusNotFound, "log file not found")
	case err != nil:
		s.logger.Error("log file unreadable", "file", name, "error", err)
		httputil.Fail(w, r, s.logger, http.StatusInternalServerError, "could not read log file")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, text)
	}
}

// GET /api/logs/{filename}/stats?filter=needle — visit statistics, and
// with a filter also the retained lines with the match span marked.
func (s *server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	text, err := s.access.Read(name)
	switch {
	case errors.Is(err, accesslog.ErrBadName):
		httputil.Fail(w, r, s.logger, http.StatusBadRequest, "invalid log file name")
		return
	case errors.Is(err, accesslog.ErrNotFound):
		httputil.Fail(w, r, s.logger, http.StatusNotFound, "log file not found")
		return
	case err != nil:
		s.logger.Error("log file unreadable", "file", name, "error", err)
		httputil.Fail(w, r, s.logger, http.StatusInternalServerError, "could not read log file")
		return
	}

	resp := map[string]any{"success": true}
	if filter := r.URL.Query().Get("filter"); filter != "" {
		matches := logstats.Filter(text, filter)
		if matches == nil {
			matches = []logstats.Match{}
		}
		var retained strings.Builder
		for _, m := range matches {
			retained.WriteString(m.Text)
			retained.WriteByte('\n')
		}
		text = retained.String()
		resp["lines"] = matches
	}
	stats := logstats.Analyze(text)
	resp["total"] = stats.Total
	resp["unique"] = stats.Unique()
	resp["counts"] = stats.Counts
	resp["top"] = stats.Top()
	httputil.OK(w, resp)
}

// GET /api/events — SSE stream of card-document change events.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.Fail(w, r, s.logger, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	ch, cancel := s.watcher.Subscribe()
	defer cancel()

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
