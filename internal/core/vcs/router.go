package vcs

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Router sends github.com remotes to the GitHub backend when one is
// configured and everything else to the git command line. A GitHub lookup
// that cannot see the repository is retried with git, which may hold
// credentials the API token lacks. Concurrent lookups of the same
// (location, ref) share one backend call.
type Router struct {
	Git    Backend
	GitHub Backend
	// IsGitHub decides whether a location goes to the GitHub backend.
	IsGitHub func(location string) bool
	Logger   *slog.Logger

	refs singleflight.Group
}

// NewRouter wires the backends. github may be nil to disable API access.
func NewRouter(git Backend, github *GitHubResolver) *Router {
	r := &Router{Git: git}
	if github != nil {
		r.GitHub = github
		r.IsGitHub = github.Handles
		r.Logger = github.Logger
	}
	return r
}

func (r *Router) useGitHub(location string) bool {
	return r.GitHub != nil && r.IsGitHub != nil && r.IsGitHub(location)
}

func (r *Router) backend(location string) Backend {
	if r.useGitHub(location) {
		return r.GitHub
	}
	return r.Git
}

func (r *Router) resolve(ctx context.Context, location, ref string) (string, error) {
	if !r.useGitHub(location) {
		return r.Git.ResolveRef(ctx, location, ref)
	}
	commit, err := r.GitHub.ResolveRef(ctx, location, ref)
	if err == nil {
		return commit, nil
	}
	if !errors.Is(err, ErrRefNotFound) && !errors.Is(err, ErrUnreachableRemote) {
		return "", err
	}
	if r.Logger != nil {
		r.Logger.Debug("github api lookup failed, retrying with git", "location", location, "ref", ref, "error", err)
	}
	return r.Git.ResolveRef(ctx, location, ref)
}

// ResolveRef implements RefResolver.
func (r *Router) ResolveRef(ctx context.Context, location, ref string) (string, error) {
	if IsCommit(ref) {
		return r.resolve(ctx, location, ref)
	}
	v, err, _ := r.refs.Do(location+"\x00"+ref, func() (any, error) {
		return r.resolve(ctx, location, ref)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// FetchFile implements FileFetcher.
func (r *Router) FetchFile(ctx context.Context, location, commit, path string) ([]byte, error) {
	return r.backend(location).FetchFile(ctx, location, commit, path)
}
