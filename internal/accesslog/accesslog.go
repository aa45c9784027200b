// Package accesslog records one line per HTTP request into daily log
// files and reads them back for the log-viewer API.
//
// Line grammar (fixed — the viewer and the analyzer parse it back):
//
//	[2026/1/8 10:00:05] [IP: 1.2.3.4] [GET] /path?q=1 - "Mozilla/5.0"
//
// All dates are shifted into a fixed UTC+8 zone. The display timestamp
// renders month and day unpadded while the file name uses the padded
// access-2006-01-02.log form; both renderings are part of the format
// and must not be "fixed" to match each other.
package accesslog

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// zone is the fixed offset applied to "now" before any date math.
// Rollover to the next file happens lazily on the first write after
// midnight in this zone; there is no clock-driven rotation.
var zone = time.FixedZone("UTC+8", 8*60*60)

// Log appends request lines to one file per (zone-shifted) calendar day.
type Log struct {
	dir    string
	logger *slog.Logger

	mu  sync.Mutex
	now func() time.Time // swapped out in tests
}

// New creates a Log writing under dir. The directory is created on the
// first append, not here, so a read-only deployment can still boot.
func New(dir string, logger *slog.Logger) *Log {
	return &Log{dir: dir, logger: logger, now: time.Now}
}

// Dir returns the log directory.
func (l *Log) Dir() string { return l.dir }

// TodayName returns the file name for the current zone-shifted date.
func (l *Log) TodayName() string {
	return fileName(l.now().In(zone))
}

func fileName(t time.Time) string {
	return "access-" + t.Format("2006-01-02") + ".log"
}

func formatLine(t time.Time, ip, method, target, userAgent string) string {
	// Unpadded month/day, padded clock — required display format.
	return fmt.Sprintf("[%s] [IP: %s] [%s] %s - %q\n",
		t.Format("2006/1/2 15:04:05"), ip, method, target, userAgent)
}

// Append writes one line for the given request data to today's file,
// creating the directory and file on first use.
func (l *Log) Append(ip, method, target, userAgent string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now().In(zone)
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(l.dir, fileName(t)), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(t, ip, method, target, userAgent)); err != nil {
		return fmt.Errorf("append log line: %w", err)
	}
	return nil
}

// Middleware records every request before handler dispatch. Append
// failures are logged and swallowed — the access log must never gate
// the response path.
func (l *Log) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if err := l.Append(ip, r.Method, r.URL.RequestURI(), r.UserAgent()); err != nil {
			l.logger.Warn("access log append failed", "error", err)
		}
		next.ServeHTTP(w, r)
	})
}
