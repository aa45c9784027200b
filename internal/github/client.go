// Package github pushes the local card document to a GitHub repository
// through the contents API.
//
// Sync is a single create-or-update call guarded by the remote file's
// content SHA: if someone edited the remote copy since the last sync,
// GitHub rejects the stale SHA and the whole operation fails. There is
// no retry and no merge — the operator re-runs sync after looking.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const defaultBaseURL = "https://api.github.com"

// Config identifies the sync target.
type Config struct {
	Owner      string
	Repo       string
	Branch     string
	RemotePath string // path of the file inside the repository
	Token      string
	DocPath    string // local card document
	BaseURL    string // overridden in tests; defaults to api.github.com
}

// Client performs the sync.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates a Client. The HTTP timeout covers each individual call;
// callers wrap Sync in a context for an overall deadline.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type contentMeta struct {
	SHA string `json:"sha"`
}

type commitRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// Sync pushes the local document to the remote path. It returns a
// human-readable outcome message on success. Any failure — empty or
// unreadable local document, network error, unexpected status, bad
// JSON — aborts the whole operation; there is no partial success.
func (c *Client) Sync(ctx context.Context) (string, error) {
	data, err := os.ReadFile(c.cfg.DocPath)
	if err != nil {
		return "", fmt.Errorf("read card document: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", fmt.Errorf("card document %s is empty, refusing to sync", c.cfg.DocPath)
	}

	sha, exists, err := c.fetchRemoteSHA(ctx)
	if err != nil {
		return "", err
	}

	payload := commitRequest{
		Message: fmt.Sprintf("linkboard sync %s", time.Now().Format(time.RFC3339)),
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  c.cfg.Branch,
	}
	if exists {
		payload.SHA = sha
	}

	if err := c.putContents(ctx, payload); err != nil {
		return "", err
	}

	action := "created"
	if exists {
		action = "updated"
	}
	c.logger.Info("card document synced",
		"repo", c.cfg.Owner+"/"+c.cfg.Repo,
		"branch", c.cfg.Branch,
		"path", c.cfg.RemotePath,
		"action", action,
		"bytes", len(data),
	)
	return fmt.Sprintf("%s %s in %s/%s@%s (%d bytes)",
		action, c.cfg.RemotePath, c.cfg.Owner, c.cfg.Repo, c.cfg.Branch, len(data)), nil
}

// fetchRemoteSHA looks up the remote file's content hash. A 404 means
// the file does not exist yet and the commit proceeds as a create; any
// other non-200 response is fatal.
func (c *Client) fetchRemoteSHA(ctx context.Context) (sha string, exists bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.contentsURL()+"?ref="+url.QueryEscape(c.cfg.Branch), nil)
	if err != nil {
		return "", false, fmt.Errorf("build metadata request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetch remote metadata: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var meta contentMeta
		if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
			return "", false, fmt.Errorf("decode remote metadata: %w", err)
		}
		return meta.SHA, true, nil
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("fetch remote metadata: %s", responseError(resp))
	}
}

func (c *Client) putContents(ctx context.Context, payload commitRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode commit payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.contentsURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build commit request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("commit to remote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// A stale SHA comes back as a conflict here; it is reported
		// like any other failure and the operator re-runs sync.
		return fmt.Errorf("commit to remote: %s", responseError(resp))
	}
	return nil
}

func (c *Client) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.cfg.BaseURL, c.cfg.Owner, c.cfg.Repo, c.cfg.RemotePath)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "linkboard/1.0")
}

// responseError renders a non-2xx response as "status: message", using
// the API's JSON message field when present.
func responseError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var apiErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		return fmt.Sprintf("%s: %s", resp.Status, apiErr.Message)
	}
	return resp.Status
}
