// Package ratelimit provides a per-IP fixed-window limiter with an
// allow list. Linkboard uses it on the password endpoint only, so the
// window is tuned for humans typing a password, not for API traffic.
package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"linkboard/internal/httputil"
)

// Limiter tracks attempt counts per client IP.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit      int // attempts per window; 0 disables limiting
	window     time.Duration
	allowExact map[string]struct{}
	allowNets  []*net.IPNet // pre-parsed CIDRs

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

type bucket struct {
	remaining int
	resetAt   time.Time
}

// New creates a limiter allowing limit attempts per window per IP.
// Entries in allowList (exact IPs or CIDRs) bypass limiting. A
// background janitor drops stale buckets; call Close when done.
func New(limit int, window time.Duration, allowList []string) *Limiter {
	l := &Limiter{
		buckets:     make(map[string]*bucket),
		limit:       limit,
		window:      window,
		allowExact:  make(map[string]struct{}),
		stopJanitor: make(chan struct{}),
	}
	for _, entry := range allowList {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if _, network, err := net.ParseCIDR(entry); err == nil {
				l.allowNets = append(l.allowNets, network)
			}
			continue
		}
		l.allowExact[entry] = struct{}{}
	}
	if l.enabled() {
		go l.janitor()
	}
	return l
}

func (l *Limiter) enabled() bool { return l.limit > 0 }

// Close stops the janitor goroutine.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopJanitor) })
}

// Allow reports whether another attempt from remoteAddr may proceed.
func (l *Limiter) Allow(remoteAddr string) bool {
	if !l.enabled() {
		return true
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if l.bypass(host) {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[host]
	if !ok || now.After(b.resetAt) {
		l.buckets[host] = &bucket{remaining: l.limit - 1, resetAt: now.Add(l.window)}
		return true
	}
	if b.remaining > 0 {
		b.remaining--
		return true
	}
	return false
}

func (l *Limiter) bypass(host string) bool {
	if _, ok := l.allowExact[host]; ok {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range l.allowNets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware rejects over-limit requests with the standard envelope.
func (l *Limiter) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !l.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(r.RemoteAddr) {
				httputil.Fail(w, r, logger, http.StatusTooManyRequests, "too many attempts, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// janitor drops buckets whose window has long passed so the map does
// not grow with every IP that ever knocked.
func (l *Limiter) janitor() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopJanitor:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-l.window)
			l.mu.Lock()
			for host, b := range l.buckets {
				if b.resetAt.Before(cutoff) {
					delete(l.buckets, host)
				}
			}
			l.mu.Unlock()
		}
	}
}
