package vcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"go.trai.ch/zerr"
	"golang.org/x/oauth2"
)

// DefaultRawBaseURL serves file contents of public GitHub repositories.
const DefaultRawBaseURL = "https://raw.githubusercontent.com/"

// GitHubResolver resolves refs of github.com remotes through the REST API.
type GitHubResolver struct {
	Client *github.Client
	HTTP   *http.Client
	// RawBaseURL is the raw content host, with a trailing slash.
	RawBaseURL string
	Logger     *slog.Logger
}

// loggingRoundTripper writes one debug record per API request.
type loggingRoundTripper struct {
	base http.RoundTripper
	log  *slog.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.log.Debug("github request failed", "method", req.Method, "url", req.URL.String(), "error", err)
		return resp, err
	}
	t.log.Debug("github request", "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode,
		"duration", time.Since(start).Truncate(time.Millisecond))
	return resp, nil
}

// NewGitHubResolver builds a resolver. An empty token uses anonymous access.
func NewGitHubResolver(token string, log *slog.Logger) *GitHubResolver {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var transport http.RoundTripper = &loggingRoundTripper{base: http.DefaultTransport, log: log}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	tc := &http.Client{Transport: transport}
	return &GitHubResolver{
		Client:     github.NewClient(tc),
		HTTP:       tc,
		RawBaseURL: DefaultRawBaseURL,
		Logger:     log,
	}
}

// Handles reports whether location is a github.com repository.
func (g *GitHubResolver) Handles(location string) bool {
	loc, err := ParseLocation(location)
	if err != nil {
		return false
	}
	_, _, ok := loc.GitHubRepo()
	return ok
}

func (g *GitHubResolver) repo(location string) (owner, name string, err error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return "", "", err
	}
	owner, name, ok := loc.GitHubRepo()
	if !ok {
		return "", "", zerr.With(zerr.Wrap(ErrUnsupportedVCS, "not a GitHub repository"), "location", location)
	}
	return owner, name, nil
}

// ResolveRef returns the commit id of ref. An empty ref resolves the default branch.
func (g *GitHubResolver) ResolveRef(ctx context.Context, location, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if IsCommit(ref) {
		return strings.ToLower(ref), nil
	}
	owner, name, err := g.repo(location)
	if err != nil {
		return "", err
	}

	target := ref
	if target == "" {
		repo, resp, err := g.Client.Repositories.Get(ctx, owner, name)
		if err != nil {
			return "", g.classify(ctx, location, ref, resp, err)
		}
		target = repo.GetDefaultBranch()
		if target == "" {
			return "", notFound(location, ref)
		}
	}

	sha, resp, err := g.Client.Repositories.GetCommitSHA1(ctx, owner, name, target, "")
	if err != nil {
		return "", g.classify(ctx, location, ref, resp, err)
	}
	if !IsCommit(sha) {
		return "", notFound(location, ref)
	}
	return strings.ToLower(sha), nil
}

func (g *GitHubResolver) classify(ctx context.Context, location, ref string, resp *github.Response, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusUnprocessableEntity:
			return notFound(location, ref)
		}
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return unreachable(location, fmt.Errorf("GitHub API rate limit exceeded, set GITHUB_TOKEN: %w", err))
	}
	return unreachable(location, err)
}

// FetchFile downloads path at commit from the raw content host.
func (g *GitHubResolver) FetchFile(ctx context.Context, location, commit, path string) ([]byte, error) {
	owner, name, err := g.repo(location)
	if err != nil {
		return nil, err
	}
	base := g.RawBaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	rawURL := base + strings.Join([]string{
		url.PathEscape(owner), url.PathEscape(name), url.PathEscape(commit), strings.TrimPrefix(path, "/"),
	}, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to build request"), "url", rawURL)
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return nil, unreachable(location, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, zerr.With(zerr.Wrap(ErrFileNotFound, path+" at "+commit), "location", location)
	case resp.StatusCode != http.StatusOK:
		return nil, unreachable(location, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unreachable(location, err)
	}
	return data, nil
}
