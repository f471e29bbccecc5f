package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"

	"github.com/nightconcept/pyrope-go/internal/core/distmeta"
	"github.com/nightconcept/pyrope-go/internal/core/downloader"
	"github.com/nightconcept/pyrope-go/internal/core/envsubst"
	"github.com/nightconcept/pyrope-go/internal/core/hasher"
	"github.com/nightconcept/pyrope-go/internal/core/index"
	"github.com/nightconcept/pyrope-go/internal/core/lockfile"
	"github.com/nightconcept/pyrope-go/internal/core/project"
	"github.com/nightconcept/pyrope-go/internal/core/vcs"
)

// Errors surfaced by resolution, re-exported so callers need a single import.
var (
	ErrAmbiguousSource    = project.ErrAmbiguousSource
	ErrUnreachableRemote  = vcs.ErrUnreachableRemote
	ErrRefNotFound        = vcs.ErrRefNotFound
	ErrUnsupportedVCS     = vcs.ErrUnsupportedVCS
	ErrUnresolvedVariable = envsubst.ErrUnresolvedVariable
	ErrNoMatchingVersion  = index.ErrNoMatchingVersion

	// ErrPathNotFound is returned when a local path declaration does not exist.
	ErrPathNotFound = zerr.New("local path not found")
)

// Resolver resolves declarations against indexes, VCS hosts, URLs and the
// local filesystem. Placeholders are expanded with Env only when a location
// is dereferenced; origins keep the declared text.
type Resolver struct {
	Sources []project.IndexSource
	Index   IndexClient
	VCS     vcs.Backend
	Fetcher Fetcher
	Env     envsubst.Lookup
	// BaseDir anchors relative paths, normally the directory of the Pipfile.
	BaseDir string
	Logger  *slog.Logger
}

// Resolve pins decl to a concrete origin.
func (r *Resolver) Resolve(ctx context.Context, decl project.Declaration) (*Resolution, error) {
	if err := decl.Validate(); err != nil {
		return nil, err
	}
	var (
		res *Resolution
		err error
	)
	switch s := decl.Source.(type) {
	case project.VersionSpec:
		res, err = r.resolveRegistry(ctx, decl, s)
	case project.VCSSpec:
		res, err = r.resolveVCS(ctx, decl, s)
	case project.URLSpec:
		res, err = r.resolveURL(ctx, decl, s)
	case project.PathSpec:
		res, err = r.resolvePath(decl, s)
	default:
		return nil, zerr.With(zerr.Wrap(project.ErrInvalidDeclaration, fmt.Sprintf("unknown source %T", s)), "package", decl.Name)
	}
	if err != nil {
		return nil, zerr.With(err, "package", decl.Name)
	}
	discard(r.Logger).Debug("resolved", "package", decl.Name, "distribution", res.Name, "origin", res.Origin.Describe())
	return res, nil
}

func (r *Resolver) resolveRegistry(ctx context.Context, decl project.Declaration, s project.VersionSpec) (*Resolution, error) {
	sources := r.Sources
	if len(sources) == 0 {
		sources = project.NewProject().Sources
	}
	if decl.Index != "" {
		var pinned []project.IndexSource
		for _, src := range sources {
			if strings.EqualFold(src.Name, decl.Index) {
				pinned = append(pinned, src)
			}
		}
		if len(pinned) == 0 {
			return nil, zerr.With(zerr.Wrap(project.ErrInvalidDeclaration, fmt.Sprintf("unknown index %q", decl.Index)), "index", decl.Index)
		}
		sources = pinned
	}

	var lastErr error
	for _, src := range sources {
		rel, err := r.Index.Lookup(ctx, src, decl.Name, s.Constraint)
		if errors.Is(err, index.ErrPackageNotFound) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return &Resolution{
			Name:     rel.Name,
			Origin:   lockfile.RegistryOrigin{Version: rel.Version, Index: src.Name},
			Hashes:   rel.Hashes,
			Requires: rel.RequiresDist,
		}, nil
	}
	return nil, lastErr
}

func (r *Resolver) resolveVCS(ctx context.Context, decl project.Declaration, s project.VCSSpec) (*Resolution, error) {
	if s.VCS != "git" {
		return nil, zerr.With(zerr.Wrap(ErrUnsupportedVCS, s.VCS+" repositories are not supported, only git"), "vcs", s.VCS)
	}
	location, err := envsubst.Expand(s.Location, r.Env)
	if err != nil {
		return nil, err
	}
	location = r.anchorLocal(location)

	commit, err := r.VCS.ResolveRef(ctx, location, s.Ref)
	if err != nil {
		return nil, err
	}
	res := &Resolution{
		Name:   decl.Name,
		Origin: lockfile.VCSOrigin{Location: s.Location, Commit: commit, Subdirectory: s.Subdirectory},
	}

	file := path.Join(s.Subdirectory, "pyproject.toml")
	data, err := r.VCS.FetchFile(ctx, location, commit, file)
	if err != nil {
		discard(r.Logger).Debug("no project metadata at commit", "package", decl.Name, "file", file, "error", err)
		return res, nil
	}
	md, err := distmeta.ParsePyProject(data)
	if err != nil {
		discard(r.Logger).Debug("unusable pyproject.toml", "package", decl.Name, "error", err)
		return res, nil
	}
	res.Name = md.Name
	res.Requires = md.RequiresDist
	return res, nil
}

// anchorLocal makes relative local repository paths relative to BaseDir.
func (r *Resolver) anchorLocal(location string) string {
	loc, err := vcs.ParseLocation(location)
	if err != nil || !loc.IsLocal() || strings.Contains(location, "://") || filepath.IsAbs(loc.Path) {
		return location
	}
	return filepath.Join(r.BaseDir, loc.Path)
}

func (r *Resolver) resolveURL(ctx context.Context, decl project.Declaration, s project.URLSpec) (*Resolution, error) {
	expanded, err := envsubst.Expand(s.URL, r.Env)
	if err != nil {
		return nil, err
	}
	fetchURL, stored := expanded, s.URL
	if strings.HasPrefix(strings.ToLower(expanded), "file:") {
		if fetchURL, err = r.normalizeFileURL(expanded); err != nil {
			return nil, err
		}
		if !envsubst.Contains(s.URL) {
			stored = fetchURL
		}
	}

	content, err := r.Fetcher.Fetch(ctx, fetchURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, zerr.With(zerr.Wrap(fmt.Errorf("%w: %w", ErrUnreachableRemote, err), "failed to download archive"), "url", stored)
	}
	hash, err := hasher.CalculateSHA256(content)
	if err != nil {
		return nil, err
	}

	res := &Resolution{Name: decl.Name, Origin: lockfile.URLOrigin{URL: stored}, Hashes: []string{hash}}
	r.applyArchiveMetadata(res, archiveName(fetchURL), content)
	return res, nil
}

// normalizeFileURL turns any file: URL into an absolute file:/// URL.
func (r *Resolver) normalizeFileURL(raw string) (string, error) {
	p, err := downloader.FilePath(raw)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.BaseDir, p)
	}
	return downloader.FileURL(p)
}

func archiveName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}

func (r *Resolver) applyArchiveMetadata(res *Resolution, filename string, content []byte) {
	md, err := distmeta.FromArchive(filename, content)
	if err == nil {
		res.Name = md.Name
		res.Requires = md.RequiresDist
		return
	}
	discard(r.Logger).Debug("no metadata in archive", "file", filename, "error", err)
	if name := distmeta.NameFromFilename(filename); name != "" {
		res.Name = name
	}
}

func (r *Resolver) resolvePath(decl project.Declaration, s project.PathSpec) (*Resolution, error) {
	expanded, err := envsubst.Expand(s.Path, r.Env)
	if err != nil {
		return nil, err
	}
	abs := expandHome(expanded)
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.BaseDir, abs)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(fmt.Errorf("%w: %w", ErrPathNotFound, err), s.Path), "path", abs)
	}

	res := &Resolution{Name: decl.Name, Origin: lockfile.PathOrigin{Path: s.Path}}
	if info.IsDir() {
		md, err := distmeta.FromDir(abs)
		if err != nil {
			discard(r.Logger).Debug("no metadata in directory", "path", abs, "error", err)
			return res, nil
		}
		res.Name = md.Name
		res.Requires = md.RequiresDist
		return res, nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read archive"), "path", abs)
	}
	hash, err := hasher.CalculateSHA256(content)
	if err != nil {
		return nil, err
	}
	res.Hashes = []string{hash}
	r.applyArchiveMetadata(res, filepath.Base(abs), content)
	return res, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
