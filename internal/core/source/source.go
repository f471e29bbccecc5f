// Package source turns a dependency declaration into a concrete, pinned
// origin: an index release, a commit, a downloaded archive or a local path.
package source

import (
	"context"
	"log/slog"

	"github.com/nightconcept/pyrope-go/internal/core/index"
	"github.com/nightconcept/pyrope-go/internal/core/lockfile"
	"github.com/nightconcept/pyrope-go/internal/core/pkgname"
	"github.com/nightconcept/pyrope-go/internal/core/project"
)

// Kind is the origin category of a declaration.
type Kind string

// Origin categories.
const (
	KindRegistry Kind = "registry"
	KindVCS      Kind = "vcs"
	KindURL      Kind = "url"
	KindPath     Kind = "path"
)

// Classify returns the origin category of a declaration.
func Classify(decl project.Declaration) Kind {
	switch decl.Source.(type) {
	case project.VersionSpec:
		return KindRegistry
	case project.VCSSpec:
		return KindVCS
	case project.URLSpec:
		return KindURL
	case project.PathSpec:
		return KindPath
	}
	return ""
}

// Resolution is the outcome of resolving one declaration.
type Resolution struct {
	// Name is the distribution name as the package itself declares it, or
	// the declared name when the package carries no metadata.
	Name   string
	Origin lockfile.Origin
	Hashes []string
	// Requires lists the requirement lines of the distribution (Requires-Dist).
	Requires []string
}

// Entry builds the lock entry for a declaration resolved to r.
func (r *Resolution) Entry(decl project.Declaration) lockfile.Entry {
	return lockfile.Entry{
		Name:     pkgname.Canonical(r.Name),
		Origin:   r.Origin,
		Editable: decl.Editable,
		Hashes:   r.Hashes,
		Markers:  decl.Markers,
		Extras:   decl.Extras,
	}
}

// IndexClient looks releases up on a package index.
type IndexClient interface {
	Lookup(ctx context.Context, src project.IndexSource, name, constraint string) (*index.Release, error)
}

// Fetcher downloads archive content.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// DeclarationResolver resolves declarations. *Resolver is the production implementation.
type DeclarationResolver interface {
	Resolve(ctx context.Context, decl project.Declaration) (*Resolution, error)
}

var _ DeclarationResolver = (*Resolver)(nil)

func discard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return log
}
