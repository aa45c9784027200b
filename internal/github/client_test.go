package github

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
)

// fakeGitHub records contents-API calls and plays back canned responses.
type fakeGitHub struct {
	mu        sync.Mutex
	getStatus int
	getBody   string
	putStatus int
	gets      int
	puts      []commitRequest
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if !strings.HasPrefix(r.URL.Path, "/repos/alice/backup/contents/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ghp_test" {
			t.Errorf("Authorization = %q", got)
		}

		switch r.Method {
		case http.MethodGet:
			f.gets++
			w.WriteHeader(f.getStatus)
			w.Write([]byte(f.getBody))
		case http.MethodPut:
			var req commitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad PUT body: %v", err)
			}
			f.puts = append(f.puts, req)
			w.WriteHeader(f.putStatus)
			w.Write([]byte(`{"content":{"sha":"new"}}`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})
}

func newTestClient(t *testing.T, fake *fakeGitHub, doc string) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	docPath := filepath.Join(t.TempDir(), "cards.json")
	if doc != "" {
		if err := os.WriteFile(docPath, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return New(Config{
		Owner:      "alice",
		Repo:       "backup",
		Branch:     "main",
		RemotePath: "cards.json",
		Token:      "ghp_test",
		DocPath:    docPath,
		BaseURL:    srv.URL,
	}, slog.Default())
}

func TestSyncCreatesWhenRemoteMissing(t *testing.T) {
	fake := &fakeGitHub{getStatus: 404, getBody: `{"message":"Not Found"}`, putStatus: 201}
	c := newTestClient(t, fake, `[{"id":1,"title":"a","url":"u","color":"c"}]`)

	msg, err := c.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if !strings.Contains(msg, "created") {
		t.Errorf("outcome = %q, want a create", msg)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("got %d PUTs, want 1", len(fake.puts))
	}
	put := fake.puts[0]
	if put.SHA != "" {
		t.Errorf("create payload must omit sha, got %q", put.SHA)
	}
	if put.Branch != "main" {
		t.Errorf("Branch = %q, want main", put.Branch)
	}
	if put.Message == "" || !strings.Contains(put.Message, "T") {
		t.Errorf("commit message should carry a timestamp, got %q", put.Message)
	}
	decoded, err := base64.StdEncoding.DecodeString(put.Content)
	if err != nil || !strings.Contains(string(decoded), `"title":"a"`) {
		t.Errorf("content should be the base64 document, got %q (err=%v)", decoded, err)
	}
}

func TestSyncUpdatesWithExistingSHA(t *testing.T) {
	fake := &fakeGitHub{getStatus: 200, getBody: `{"sha":"abc123","path":"cards.json"}`, putStatus: 200}
	c := newTestClient(t, fake, `[]x`) // content is irrelevant, just non-empty

	msg, err := c.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if !strings.Contains(msg, "updated") {
		t.Errorf("outcome = %q, want an update", msg)
	}
	if len(fake.puts) != 1 || fake.puts[0].SHA != "abc123" {
		t.Errorf("update payload must carry the exact remote sha, got %+v", fake.puts)
	}
}

func TestSyncAbortsOnEmptyDocument(t *testing.T) {
	fake := &fakeGitHub{getStatus: 200, getBody: `{"sha":"abc"}`, putStatus: 200}
	c := newTestClient(t, fake, "  \n")

	if _, err := c.Sync(context.Background()); err == nil {
		t.Fatal("Sync should fail on an empty document")
	}
	if fake.gets != 0 || len(fake.puts) != 0 {
		t.Errorf("no remote call may happen for an empty document: gets=%d puts=%d", fake.gets, len(fake.puts))
	}
}

func TestSyncAbortsOnMissingDocument(t *testing.T) {
	fake := &fakeGitHub{getStatus: 404, putStatus: 201}
	c := newTestClient(t, fake, "")

	if _, err := c.Sync(context.Background()); err == nil {
		t.Fatal("Sync should fail when the document is unreadable")
	}
	if len(fake.puts) != 0 {
		t.Error("no write may happen when the document is unreadable")
	}
}

func TestSyncFatalOnMetadataError(t *testing.T) {
	fake := &fakeGitHub{getStatus: 500, getBody: `{"message":"boom"}`, putStatus: 200}
	c := newTestClient(t, fake, `[]`)

	_, err := c.Sync(context.Background())
	if err == nil {
		t.Fatal("non-404 metadata error must be fatal")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error should surface the API message, got %v", err)
	}
	if len(fake.puts) != 0 {
		t.Error("no write may happen after a metadata error")
	}
}

func TestSyncSurfacesConflict(t *testing.T) {
	fake := &fakeGitHub{getStatus: 200, getBody: `{"sha":"stale"}`, putStatus: 409}
	c := newTestClient(t, fake, `[]`)

	if _, err := c.Sync(context.Background()); err == nil {
		t.Fatal("conflict on commit must fail the sync")
	}
}

func TestSyncFatalOnBadMetadataJSON(t *testing.T) {
	fake := &fakeGitHub{getStatus: 200, getBody: `{{{`, putStatus: 200}
	c := newTestClient(t, fake, `[]`)

	if _, err := c.Sync(context.Background()); err == nil {
		t.Fatal("unparseable metadata must be fatal")
	}
	if len(fake.puts) != 0 {
		t.Error("no write may happen after a parse failure")
	}
}
