// Package remote queries the GitHub API for the head of the tracked branch.
// It is a diagnostic aid: the supervisor itself only talks to the remote
// through git.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/agenthatchery/watchdog/internal/branding"
)

const defaultAPIBase = "https://api.github.com"

var (
	// ErrNotFound means the repository or branch does not exist, or the
	// credential cannot see it (GitHub answers 404 for private repositories).
	ErrNotFound = errors.New("repository or branch not found")
	// ErrUnauthorized means the credential was rejected.
	ErrUnauthorized = errors.New("credential rejected by GitHub")
	// ErrRateLimited means the API refused the request for quota reasons.
	ErrRateLimited = errors.New("GitHub API rate limit exceeded")
)

// BranchHead is the tip of a remote branch.
type BranchHead struct {
	Name      string
	SHA       string
	Message   string
	Committed time.Time
}

type branchResponse struct {
	Name   string `json:"name"`
	Commit struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message   string `json:"message"`
			Committer struct {
				Date time.Time `json:"date"`
			} `json:"committer"`
		} `json:"commit"`
	} `json:"commit"`
}

// Client talks to the GitHub REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL points the client at another API root, e.g. GitHub Enterprise
// or an httptest server.
func WithBaseURL(base string) Option {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(base, "/")
	}
}

// WithToken authenticates requests with a personal access token.
func WithToken(token string) Option {
	return func(cl *Client) {
		cl.token = token
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultAPIBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BranchHead fetches the head commit of owner/repo@branch.
func (c *Client) BranchHead(ctx context.Context, owner, repo, branch string) (*BranchHead, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/branches/%s", c.baseURL,
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", branding.CLIName())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching branch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0",
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	var br branchResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, fmt.Errorf("parsing branch JSON: %w", err)
	}

	return &BranchHead{
		Name:      br.Name,
		SHA:       br.Commit.SHA,
		Message:   firstLine(br.Commit.Commit.Message),
		Committed: br.Commit.Commit.Committer.Date,
	}, nil
}

// ParseGitHubURL extracts owner and repository from a GitHub clone URL. It
// reports false for remotes on other hosts or in other shapes.
func ParseGitHubURL(remote string) (owner, repo string, ok bool) {
	u, err := url.Parse(remote)
	if err != nil || u.Host != branding.GitHubHost() {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(path.Clean(u.Path), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
