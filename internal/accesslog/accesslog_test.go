package accesslog

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixed(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAppendLineFormat(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, slog.Default())
	// 2026-01-08 02:00:05 UTC is 10:00:05 in the shifted zone.
	l.now = fixed(time.Date(2026, 1, 8, 2, 0, 5, 0, time.UTC))

	if err := l.Append("1.2.3.4", "GET", "/x?q=1", "UA/1.0"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "access-2026-01-08.log"))
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	want := "[2026/1/8 10:00:05] [IP: 1.2.3.4] [GET] /x?q=1 - \"UA/1.0\"\n"
	if string(data) != want {
		t.Errorf("line = %q, want %q", data, want)
	}
}

func TestAppendPadsFileNameNotDisplay(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, slog.Default())
	// Single-digit month and day: display unpadded, file name padded.
	l.now = fixed(time.Date(2026, 3, 4, 1, 2, 3, 0, zone))

	if err := l.Append("5.6.7.8", "POST", "/api/cards", ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "access-2026-03-04.log"))
	if err != nil {
		t.Fatalf("expected padded file name: %v", err)
	}
	if !strings.HasPrefix(string(data), "[2026/3/4 01:02:03]") {
		t.Errorf("display timestamp should be unpadded, got %q", data)
	}
	if !strings.Contains(string(data), `- ""`) {
		t.Errorf("missing User-Agent should render as empty quotes, got %q", data)
	}
}

func TestAppendRollsOverAtShiftedMidnight(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, slog.Default())

	// 15:59 UTC is 23:59 shifted; 16:01 UTC is 00:01 the next day.
	l.now = fixed(time.Date(2026, 1, 8, 15, 59, 0, 0, time.UTC))
	if err := l.Append("1.1.1.1", "GET", "/a", "UA"); err != nil {
		t.Fatal(err)
	}
	l.now = fixed(time.Date(2026, 1, 8, 16, 1, 0, 0, time.UTC))
	if err := l.Append("1.1.1.1", "GET", "/b", "UA"); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"access-2026-01-08.log", "access-2026-01-09.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestMiddlewareLogsBeforeHandler(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, slog.Default())

	var sawLine bool
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The line must already be on disk when the handler runs.
		text, err := l.Read(l.TodayName())
		sawLine = err == nil && strings.Contains(text, "[IP: 9.9.9.9]")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/dash?tab=1", nil)
	req.RemoteAddr = "9.9.9.9:54321"
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !sawLine {
		t.Error("access line should be written before handler dispatch")
	}
	text, err := l.Read(l.TodayName())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !strings.Contains(text, "/dash?tab=1") {
		t.Errorf("line should carry path+query, got %q", text)
	}
}

func TestMiddlewareSwallowsAppendFailure(t *testing.T) {
	// Point the log "directory" at an existing file so MkdirAll fails.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := New(blocker, slog.Default())

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("append failure must not gate the response, got %d", rec.Code)
	}
}

func TestListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, slog.Default())
	for _, name := range []string{
		"access-2025-12-31.log",
		"access-2026-01-02.log",
		"access-2026-01-10.log",
		"notes.txt",             // ignored
		"access-latest.log.bak", // ignored
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	names, err := l.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"access-2026-01-10.log", "access-2026-01-02.log", "access-2025-12-31.log"}
	if len(names) != len(want) {
		t.Fatalf("got %d names, want %d: %v", len(names), len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestListEmptyDir(t *testing.T) {
	l := New(t.TempDir(), slog.Default())
	names, err := l.List()
	if err != nil {
		t.Fatalf("empty dir should not be an error: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no names, got %v", names)
	}
}

func TestListMissingDir(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "nope"), slog.Default())
	if _, err := l.List(); err == nil {
		t.Error("missing directory should be a directory-level error")
	}
}

func TestValidName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"access-2026-01-08.log", true},
		{"access-anything.log", true},
		{"../../etc/passwd", false},
		{"access-2024-01-01.txt", false},
		{"access-.log", false},
		{"access-../../x.log", false},
		{`access-a\b.log`, false},
		{"prefix-access-2026-01-08.log", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidName(c.name); got != c.ok {
			t.Errorf("ValidName(%q) = %v, want %v", c.name, got, c.ok)
		}
	}
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, slog.Default())

	if _, err := l.Read("../../etc/passwd"); !errors.Is(err, ErrBadName) {
		t.Errorf("traversal name should be ErrBadName, got %v", err)
	}
	if _, err := l.Read("access-2026-01-08.log"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file should be ErrNotFound, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "access-2026-01-08.log"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	text, err := l.Read("access-2026-01-08.log")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if text != "hello\n" {
		t.Errorf("Read = %q, want raw content", text)
	}
}
