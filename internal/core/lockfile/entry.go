package lockfile

import (
	"fmt"
	"slices"
	"strings"

	"go.trai.ch/zerr"

	"github.com/nightconcept/pyrope-go/internal/core/pkgname"
)

// ErrInvalidEntry is returned when a lock record does not describe exactly one origin.
var ErrInvalidEntry = zerr.New("invalid lock entry")

// Origin is where a locked package comes from. Exactly one of RegistryOrigin,
// VCSOrigin, URLOrigin or PathOrigin.
type Origin interface {
	isOrigin()
	Kind() string
	// Describe renders the origin for listings.
	Describe() string
}

// RegistryOrigin is a release picked from a package index.
type RegistryOrigin struct {
	Version string
	Index   string
}

// VCSOrigin is a repository pinned to a commit. Location is kept exactly as
// declared, placeholders included.
type VCSOrigin struct {
	Location     string
	Commit       string
	Subdirectory string
}

// URLOrigin is a downloaded archive.
type URLOrigin struct {
	URL string
}

// PathOrigin is a local directory or archive.
type PathOrigin struct {
	Path string
}

func (RegistryOrigin) isOrigin() {}
func (VCSOrigin) isOrigin()      {}
func (URLOrigin) isOrigin()      {}
func (PathOrigin) isOrigin()     {}

func (RegistryOrigin) Kind() string { return "registry" }
func (VCSOrigin) Kind() string      { return "git" }
func (URLOrigin) Kind() string      { return "file" }
func (PathOrigin) Kind() string     { return "path" }

func (o RegistryOrigin) Describe() string { return "==" + o.Version + " (" + o.Index + ")" }
func (o VCSOrigin) Describe() string {
	short := o.Commit
	if len(short) > 12 {
		short = short[:12]
	}
	return o.Location + "@" + short
}
func (o URLOrigin) Describe() string  { return o.URL }
func (o PathOrigin) Describe() string { return o.Path }

// Entry is one locked package.
type Entry struct {
	Name     pkgname.Key
	Origin   Origin
	Editable bool
	Hashes   []string
	Markers  string
	Extras   []string
}

// record is the on-disk form of an Entry.
type record struct {
	Version      string   `toml:"version,omitempty"`
	Hashes       []string `toml:"hashes,omitempty"`
	Index        string   `toml:"index,omitempty"`
	Git          string   `toml:"git,omitempty"`
	Ref          string   `toml:"ref,omitempty"`
	Subdirectory string   `toml:"subdirectory,omitempty"`
	File         string   `toml:"file,omitempty"`
	Path         string   `toml:"path,omitempty"`
	Editable     bool     `toml:"editable,omitempty"`
	Markers      string   `toml:"markers,omitempty"`
	Extras       []string `toml:"extras,omitempty"`
}

func (e Entry) toRecord() (record, error) {
	r := record{
		Editable: e.Editable,
		Markers:  e.Markers,
		Hashes:   sortedUnique(e.Hashes),
		Extras:   sortedUnique(e.Extras),
	}
	switch o := e.Origin.(type) {
	case RegistryOrigin:
		r.Version = "==" + o.Version
		r.Index = o.Index
	case VCSOrigin:
		r.Git = o.Location
		r.Ref = o.Commit
		r.Subdirectory = o.Subdirectory
	case URLOrigin:
		r.File = o.URL
	case PathOrigin:
		r.Path = o.Path
	default:
		return r, zerr.With(zerr.Wrap(ErrInvalidEntry, fmt.Sprintf("no origin for %s", e.Name)), "package", string(e.Name))
	}
	return r, nil
}

func (r record) toEntry(name string) (Entry, error) {
	e := Entry{
		Name:     pkgname.Canonical(name),
		Editable: r.Editable,
		Hashes:   r.Hashes,
		Markers:  r.Markers,
		Extras:   r.Extras,
	}
	var origins []Origin
	if r.Version != "" {
		origins = append(origins, RegistryOrigin{Version: strings.TrimPrefix(r.Version, "=="), Index: r.Index})
	}
	if r.Git != "" {
		origins = append(origins, VCSOrigin{Location: r.Git, Commit: r.Ref, Subdirectory: r.Subdirectory})
	}
	if r.File != "" {
		origins = append(origins, URLOrigin{URL: r.File})
	}
	if r.Path != "" {
		origins = append(origins, PathOrigin{Path: r.Path})
	}
	if len(origins) != 1 {
		return e, zerr.With(zerr.Wrap(ErrInvalidEntry, fmt.Sprintf("%s has %d origins", name, len(origins))), "package", name)
	}
	e.Origin = origins[0]
	return e, nil
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// SameOrigin reports whether two origins point at the same artifact.
func SameOrigin(a, b Origin) bool {
	return a == b
}
