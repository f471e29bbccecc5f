package vcs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"go.trai.ch/zerr"
)

// GitResolver talks to git through the command line.
type GitResolver struct {
	Runner Runner
	Logger *slog.Logger
	// Binary is the git executable, "git" when empty.
	Binary string
}

// NewGitResolver returns a GitResolver backed by os/exec.
func NewGitResolver(log *slog.Logger) *GitResolver {
	return &GitResolver{Runner: ExecRunner{Env: []string{"GIT_TERMINAL_PROMPT=0"}}, Logger: log}
}

func (g *GitResolver) bin() string {
	if g.Binary != "" {
		return g.Binary
	}
	return "git"
}

func (g *GitResolver) log() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// ResolveRef resolves ref against location. Local repositories use
// rev-parse, remotes use ls-remote.
func (g *GitResolver) ResolveRef(ctx context.Context, location, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if IsCommit(ref) {
		return strings.ToLower(ref), nil
	}
	loc, err := ParseLocation(location)
	if err != nil {
		return "", err
	}
	if loc.IsLocal() {
		return g.revParse(ctx, loc, ref)
	}
	return g.lsRemote(ctx, location, ref)
}

func (g *GitResolver) revParse(ctx context.Context, loc Location, ref string) (string, error) {
	if _, err := os.Stat(loc.Path); err != nil {
		return "", unreachable(loc.Raw, err)
	}
	target := ref
	if target == "" {
		target = "HEAD"
	}
	g.log().Debug("git rev-parse", "repo", loc.Path, "ref", target)
	out, err := g.Runner.Run(ctx, loc.Path, g.bin(), "rev-parse", "--verify", "--quiet", target+"^{commit}")
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 {
			return "", notFound(loc.Raw, ref)
		}
		return "", unreachable(loc.Raw, err)
	}
	commit := strings.TrimSpace(string(out))
	if !IsCommit(commit) {
		return "", notFound(loc.Raw, ref)
	}
	return strings.ToLower(commit), nil
}

func (g *GitResolver) lsRemote(ctx context.Context, location, ref string) (string, error) {
	pattern := ref
	if pattern == "" {
		pattern = "HEAD"
	}
	g.log().Debug("git ls-remote", "location", location, "ref", pattern)
	out, err := g.Runner.Run(ctx, "", g.bin(), "ls-remote", location, pattern)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", unreachable(location, err)
	}

	refs := parseLsRemote(out)
	if ref == "" {
		if c, ok := refs["HEAD"]; ok {
			return c, nil
		}
		return "", notFound(location, ref)
	}
	// Annotated tags resolve to the peeled commit, then branches win over tags.
	for _, name := range []string{
		"refs/tags/" + ref + "^{}",
		"refs/heads/" + ref,
		"refs/tags/" + ref,
		ref,
	} {
		if c, ok := refs[name]; ok {
			return c, nil
		}
	}
	if len(ref) >= 7 && isHex(ref) {
		return "", zerr.Wrap(notFound(location, ref), "abbreviated commit ids cannot be resolved remotely, use the full 40 character id")
	}
	return "", notFound(location, ref)
}

func parseLsRemote(out []byte) map[string]string {
	refs := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 || !IsCommit(fields[0]) {
			continue
		}
		refs[fields[1]] = strings.ToLower(fields[0])
	}
	return refs
}

func isHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// FetchFile reads path at commit. Only local repositories are supported;
// remote git hosts without an API report ErrFileNotFound.
func (g *GitResolver) FetchFile(ctx context.Context, location, commit, path string) ([]byte, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	if !loc.IsLocal() {
		return nil, zerr.With(zerr.Wrap(ErrFileNotFound, "remote file access needs a hosting API"), "location", location)
	}
	out, err := g.Runner.Run(ctx, loc.Path, g.bin(), "show", commit+":"+path)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return nil, zerr.With(zerr.Wrap(ErrFileNotFound, path+" at "+commit), "location", location)
		}
		return nil, unreachable(location, err)
	}
	return out, nil
}
