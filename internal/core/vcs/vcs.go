// Package vcs resolves symbolic refs of version control locations to full
// commit ids and reads single files at a commit.
package vcs

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.trai.ch/zerr"
)

//go:generate go run go.uber.org/mock/mockgen -source=vcs.go -destination=mocks/mock_vcs.go -package=mocks

var (
	// ErrRefNotFound is returned when the remote has no ref by that name.
	ErrRefNotFound = zerr.New("ref not found")

	// ErrUnreachableRemote is returned when the remote cannot be contacted.
	ErrUnreachableRemote = zerr.New("remote unreachable")

	// ErrUnsupportedVCS is returned for locations no backend can handle.
	ErrUnsupportedVCS = zerr.New("unsupported version control location")

	// ErrFileNotFound is returned when a file does not exist at the commit.
	ErrFileNotFound = zerr.New("file not found at commit")
)

// RefResolver turns a (location, ref) pair into a full commit id. An empty
// ref means the remote's default branch head.
type RefResolver interface {
	ResolveRef(ctx context.Context, location, ref string) (string, error)
}

// FileFetcher reads a single file of a repository at a commit.
type FileFetcher interface {
	FetchFile(ctx context.Context, location, commit, path string) ([]byte, error)
}

// Backend is a VCS host that can do both.
type Backend interface {
	RefResolver
	FileFetcher
}

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

var commitPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// IsCommit reports whether ref is already a full commit id.
func IsCommit(ref string) bool {
	return commitPattern.MatchString(ref)
}

func notFound(location, ref string) error {
	return zerr.With(zerr.With(zerr.Wrap(ErrRefNotFound, displayRef(ref)+" in "+location), "location", location), "ref", ref)
}

func unreachable(location string, cause error) error {
	err := ErrUnreachableRemote
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrUnreachableRemote, cause)
	}
	return zerr.With(zerr.Wrap(err, location), "location", location)
}

func displayRef(ref string) string {
	if strings.TrimSpace(ref) == "" {
		return "HEAD"
	}
	return ref
}
