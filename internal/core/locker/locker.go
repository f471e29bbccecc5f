// Package locker resolves every declaration of a project and assembles a
// fresh lock document.
package locker

import (
	"context"
	"log/slog"
	"runtime"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"github.com/nightconcept/pyrope-go/internal/core/downloader"
	"github.com/nightconcept/pyrope-go/internal/core/envsubst"
	"github.com/nightconcept/pyrope-go/internal/core/index"
	"github.com/nightconcept/pyrope-go/internal/core/lockfile"
	"github.com/nightconcept/pyrope-go/internal/core/pep508"
	"github.com/nightconcept/pyrope-go/internal/core/pkgname"
	"github.com/nightconcept/pyrope-go/internal/core/project"
	"github.com/nightconcept/pyrope-go/internal/core/source"
	"github.com/nightconcept/pyrope-go/internal/core/vcs"
)

// Options configure the production wiring built by New.
type Options struct {
	MaxWorkers int
	// GitHubToken authenticates API calls; empty means anonymous.
	GitHubToken string
	// NoGitHubAPI sends github.com remotes through git as well.
	NoGitHubAPI bool
	// VerifySSL applies to direct archive downloads.
	VerifySSL bool
	Env       envsubst.Lookup
	Logger    *slog.Logger
}

// Locker turns a project into a lock document.
type Locker struct {
	Resolver   source.DeclarationResolver
	MaxWorkers int
	Logger     *slog.Logger
}

// New wires a Locker for the project rooted at root.
func New(opts Options, p *project.Project, root string) *Locker {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	env := opts.Env
	if env == nil {
		env = envsubst.OSLookup
	}

	var gh *vcs.GitHubResolver
	if !opts.NoGitHubAPI {
		gh = vcs.NewGitHubResolver(opts.GitHubToken, log)
	}
	return &Locker{
		Resolver: &source.Resolver{
			Sources: p.Sources,
			Index:   index.NewClient(env, log),
			VCS:     vcs.NewRouter(vcs.NewGitResolver(log), gh),
			Fetcher: downloader.New(opts.VerifySSL),
			Env:     env,
			BaseDir: root,
			Logger:  log,
		},
		MaxWorkers: opts.MaxWorkers,
		Logger:     log,
	}
}

func (l *Locker) workers() int {
	if l.MaxWorkers > 0 {
		return l.MaxWorkers
	}
	return runtime.NumCPU()
}

func (l *Locker) log() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.Logger
}

// pending is a requirement waiting to be resolved.
type pending struct {
	dev    bool
	decl   project.Declaration
	parent string // empty for direct declarations
	spec   string // version clauses the parent asked for
}

// Lock resolves all declarations of p. Nothing is read from an existing lock.
func (l *Locker) Lock(ctx context.Context, p *project.Project) (*lockfile.Lockfile, error) {
	hash, err := lockfile.ManifestHash(p)
	if err != nil {
		return nil, err
	}
	b := lockfile.NewBuilder(lockfile.Meta{
		PipfileHash: hash,
		Requires:    p.Requires,
		Sources:     p.Sources,
	}, l.log())

	var direct []pending
	for _, dev := range []bool{false, true} {
		p.Section(dev).Each(func(_ pkgname.Key, d project.Declaration) {
			direct = append(direct, pending{dev: dev, decl: d})
		})
	}

	results, err := l.resolveAll(ctx, direct)
	if err != nil {
		return nil, err
	}
	var next []pending
	for i, item := range direct {
		res := results[i]
		if err := b.AddDirect(item.dev, item.decl.Name, res.Entry(item.decl)); err != nil {
			return nil, err
		}
		next = append(next, l.requirements(item, res)...)
	}

	for depth := 1; len(next) > 0; depth++ {
		level, dupes := l.filterKnown(b, next)
		l.log().Debug("resolving transitive requirements", "depth", depth, "count", len(level))
		results, err := l.resolveAll(ctx, level)
		if err != nil {
			return nil, err
		}
		next = nil
		for i, item := range level {
			res := results[i]
			locked, added := b.AddTransitive(item.dev, res.Entry(item.decl))
			if !added {
				l.checkConflict(item, locked)
				continue
			}
			next = append(next, l.requirements(item, res)...)
		}
		for _, item := range dupes {
			if locked, ok := b.Get(item.dev, item.decl.Name); ok {
				l.checkConflict(item, locked)
			}
		}
	}
	return b.Lockfile(), nil
}

// Update locks p and atomically replaces the lock document under root.
func (l *Locker) Update(ctx context.Context, root string, p *project.Project) (*lockfile.Lockfile, error) {
	lf, err := l.Lock(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := lockfile.Save(root, lf); err != nil {
		return nil, err
	}
	return lf, nil
}

func (l *Locker) resolveAll(ctx context.Context, items []pending) ([]*source.Resolution, error) {
	results := make([]*source.Resolution, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers())
	for i, item := range items {
		g.Go(func() error {
			res, err := l.Resolver.Resolve(ctx, item.decl)
			if err != nil {
				if item.parent != "" {
					return zerr.With(zerr.Wrap(err, "failed to resolve requirement of "+item.parent), "required_by", item.parent)
				}
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// requirements turns the Requires-Dist lines of a resolved package into
// pending transitive declarations of the same section.
func (l *Locker) requirements(parent pending, res *source.Resolution) []pending {
	var out []pending
	for _, line := range res.Requires {
		req, err := pep508.Parse(line)
		if err != nil {
			l.log().Warn("skipping unparseable requirement", "package", res.Name, "requirement", line, "error", err)
			continue
		}
		if !req.ActiveFor(parent.decl.Extras) {
			continue
		}
		carried := req.CarriedMarker()
		req.Marker = ""
		decl, err := project.ParseRequirement(req.String(), false)
		if err != nil {
			l.log().Warn("skipping unsupported requirement", "package", res.Name, "requirement", line, "error", err)
			continue
		}
		decl.Markers = carried
		out = append(out, pending{dev: parent.dev, decl: decl, parent: res.Name, spec: req.Specifier})
	}
	return out
}

// filterKnown drops requirements whose key is already locked, warning when
// the locked version misses their constraint. Only the first of duplicates
// within the level is resolved; the rest are returned for a later check.
func (l *Locker) filterKnown(b *lockfile.Builder, items []pending) (level, dupes []pending) {
	seen := map[bool]map[string]bool{false: {}, true: {}}
	for _, item := range items {
		if locked, ok := b.Get(item.dev, item.decl.Name); ok {
			l.checkConflict(item, locked)
			continue
		}
		norm := pkgname.Normalize(item.decl.Name)
		if seen[item.dev][norm] {
			dupes = append(dupes, item)
			continue
		}
		seen[item.dev][norm] = true
		level = append(level, item)
	}
	return level, dupes
}

func (l *Locker) checkConflict(item pending, locked lockfile.Entry) {
	reg, ok := locked.Origin.(lockfile.RegistryOrigin)
	if !ok || item.spec == "" {
		return
	}
	spec, err := index.ParseSpecifier(item.spec)
	if err != nil {
		return
	}
	v, err := index.ParseVersion(reg.Version)
	if err != nil {
		return
	}
	if !spec.Check(v) {
		l.log().Warn("locked version does not satisfy a requirement, keeping the first pick",
			"package", string(locked.Name), "locked", reg.Version, "required", item.spec, "required_by", item.parent)
	}
}
