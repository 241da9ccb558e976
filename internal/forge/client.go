// Package forge talks to the remote forge's commit API: resolving branch
// heads and comparing commit ranges for incremental updates.
package forge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrNotFound marks a forge resource that does not exist. During commit
// comparison it means the base commit vanished from remote history, which
// the coordinator classifies as a force-push.
var ErrNotFound = errors.New("forge resource not found")

// FileStatus categorizes one changed file in a commit comparison.
type FileStatus string

const (
	FileAdded    FileStatus = "added"
	FileModified FileStatus = "modified"
	FileDeleted  FileStatus = "deleted"
	FileRenamed  FileStatus = "renamed"
)

// Commit describes the head commit of a branch.
type Commit struct {
	SHA     string
	Message string
	Author  string
	Date    time.Time
}

// ChangedFile is one file delta in a comparison.
type ChangedFile struct {
	Path         string
	Status       FileStatus
	PreviousPath string // set iff Status == FileRenamed
}

// Comparison is the result of comparing two commits.
type Comparison struct {
	BaseSHA      string
	HeadSHA      string
	TotalCommits int
	Files        []ChangedFile
}

// Client resolves remote repository state. Implementations must return
// ErrNotFound (possibly wrapped) for missing refs or commits.
type Client interface {
	// GetHeadCommit returns the tip commit of a branch.
	GetHeadCommit(ctx context.Context, owner, repo, branch, correlationID string) (*Commit, error)

	// CompareCommits returns the file-level delta between base and head.
	CompareCommits(ctx context.Context, owner, repo, base, head, correlationID string) (*Comparison, error)
}

// httpClient implements Client against a GitHub-compatible REST API.
type httpClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a forge client for a GitHub-compatible API base URL
// (e.g. https://api.github.com). The token is optional.
func NewHTTPClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// commitResponse mirrors the forge's commit payload.
type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// compareResponse mirrors the forge's compare payload.
type compareResponse struct {
	BaseCommit   commitResponse `json:"base_commit"`
	TotalCommits int            `json:"total_commits"`
	Files        []struct {
		Filename         string `json:"filename"`
		Status           string `json:"status"`
		PreviousFilename string `json:"previous_filename"`
	} `json:"files"`
}

func (c *httpClient) GetHeadCommit(ctx context.Context, owner, repo, branch, correlationID string) (*Commit, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s", c.baseURL, owner, repo, branch)
	c.logger.Debug("fetching head commit",
		"owner", owner, "repo", repo, "branch", branch, "correlation_id", correlationID)

	var resp commitResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	return &Commit{
		SHA:     resp.SHA,
		Message: resp.Commit.Message,
		Author:  resp.Commit.Author.Name,
		Date:    resp.Commit.Author.Date,
	}, nil
}

func (c *httpClient) CompareCommits(ctx context.Context, owner, repo, base, head, correlationID string) (*Comparison, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/compare/%s...%s", c.baseURL, owner, repo, base, head)
	c.logger.Debug("comparing commits",
		"owner", owner, "repo", repo, "base", base, "head", head, "correlation_id", correlationID)

	var resp compareResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	files := make([]ChangedFile, 0, len(resp.Files))
	for _, f := range resp.Files {
		files = append(files, ChangedFile{
			Path:         f.Filename,
			Status:       mapFileStatus(f.Status),
			PreviousPath: f.PreviousFilename,
		})
	}

	return &Comparison{
		BaseSHA:      resp.BaseCommit.SHA,
		HeadSHA:      head,
		TotalCommits: resp.TotalCommits,
		Files:        files,
	}, nil
}

// getJSON performs a GET and decodes the response, mapping 404 to ErrNotFound.
func (c *httpClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("forge request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("forge returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode forge response: %w", err)
	}
	return nil
}

// mapFileStatus normalizes forge status strings; GitHub reports deletions
// as "removed".
func mapFileStatus(status string) FileStatus {
	switch status {
	case "added":
		return FileAdded
	case "removed", "deleted":
		return FileDeleted
	case "renamed":
		return FileRenamed
	default:
		return FileModified
	}
}
