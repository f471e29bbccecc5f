// Package lockfile reads, builds and atomically writes pyro-lock.toml.
package lockfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"go.trai.ch/zerr"

	"github.com/nightconcept/pyrope-go/internal/core/hasher"
	"github.com/nightconcept/pyrope-go/internal/core/pkgname"
	"github.com/nightconcept/pyrope-go/internal/core/project"
)

// LockfileName is the lock document written next to the Pipfile.
const LockfileName = "pyro-lock.toml"

// APIVersion is the lock document format version.
const APIVersion = "1"

// Section names of the lock document.
const (
	SectionDefault = "default"
	SectionDevelop = "develop"
)

// Meta describes the inputs the lock was built from.
type Meta struct {
	PipfileHash string                `toml:"pipfile_hash"`
	Requires    project.Requires      `toml:"requires"`
	Sources     []project.IndexSource `toml:"sources"`
}

// Lockfile is the in-memory lock document.
type Lockfile struct {
	APIVersion string
	Meta       Meta
	Default    map[pkgname.Key]Entry
	Develop    map[pkgname.Key]Entry
}

type document struct {
	APIVersion string            `toml:"api_version"`
	Meta       Meta              `toml:"meta"`
	Default    map[string]record `toml:"default"`
	Develop    map[string]record `toml:"develop"`
}

// New creates a new Lockfile instance with default values.
func New() *Lockfile {
	return &Lockfile{
		APIVersion: APIVersion,
		Default:    make(map[pkgname.Key]Entry),
		Develop:    make(map[pkgname.Key]Entry),
	}
}

// Section returns the entries of the default or develop section.
func (lf *Lockfile) Section(dev bool) map[pkgname.Key]Entry {
	if dev {
		return lf.Develop
	}
	return lf.Default
}

// Get looks a package up in one section, ignoring case and separator style.
func (lf *Lockfile) Get(name string, dev bool) (Entry, bool) {
	sec := lf.Section(dev)
	if e, ok := sec[pkgname.Canonical(name)]; ok {
		return e, true
	}
	for k, e := range sec {
		if pkgname.Equal(string(k), name) {
			return e, true
		}
	}
	return Entry{}, false
}

// Keys returns the sorted keys of a section.
func (lf *Lockfile) Keys(dev bool) []pkgname.Key {
	sec := lf.Section(dev)
	keys := make([]pkgname.Key, 0, len(sec))
	for k := range sec {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Encode renders the document. Tables are sorted, so equal locks encode to identical bytes.
func Encode(lf *Lockfile) ([]byte, error) {
	def, err := records(lf.Default)
	if err != nil {
		return nil, err
	}
	dev, err := records(lf.Develop)
	if err != nil {
		return nil, err
	}
	doc := document{APIVersion: lf.APIVersion, Meta: lf.Meta, Default: def, Develop: dev}
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(doc); err != nil {
		return nil, zerr.Wrap(err, "failed to encode lockfile")
	}
	return buf.Bytes(), nil
}

func records(entries map[pkgname.Key]Entry) (map[string]record, error) {
	out := make(map[string]record, len(entries))
	for k, e := range entries {
		r, err := e.toRecord()
		if err != nil {
			return nil, err
		}
		out[string(k)] = r
	}
	return out, nil
}

// Decode parses lock document content.
func Decode(data []byte) (*Lockfile, error) {
	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, zerr.Wrap(err, "failed to decode lockfile")
	}
	lf := New()
	lf.Meta = doc.Meta
	if doc.APIVersion != "" {
		lf.APIVersion = doc.APIVersion
	}
	for name, r := range doc.Default {
		e, err := r.toEntry(name)
		if err != nil {
			return nil, zerr.With(err, "section", SectionDefault)
		}
		lf.Default[e.Name] = e
	}
	for name, r := range doc.Develop {
		e, err := r.toEntry(name)
		if err != nil {
			return nil, zerr.With(err, "section", SectionDevelop)
		}
		lf.Develop[e.Name] = e
	}
	return lf, nil
}

// Load loads the lockfile from the given project root path.
// If the lockfile doesn't exist, it returns a new Lockfile instance.
func Load(projectRoot string) (*Lockfile, error) {
	path := filepath.Join(projectRoot, LockfileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read lockfile"), "path", path)
	}
	lf, err := Decode(data)
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return lf, nil
}

// Exists reports whether a lock document is present in projectRoot.
func Exists(projectRoot string) bool {
	_, err := os.Stat(filepath.Join(projectRoot, LockfileName))
	return err == nil
}

// Save writes the lockfile atomically: the content goes to a temporary file
// in the same directory which then replaces the previous document. On error
// the previous document is left untouched.
func Save(projectRoot string, lf *Lockfile) error {
	data, err := Encode(lf)
	if err != nil {
		return err
	}
	return WriteAtomic(filepath.Join(projectRoot, LockfileName), data)
}

// WriteAtomic replaces path with data through a rename.
func WriteAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create temporary file"), "dir", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write temporary file"), "path", tmpName)
	}
	if err = tmp.Sync(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to sync temporary file"), "path", tmpName)
	}
	if err = tmp.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to close temporary file"), "path", tmpName)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to set permissions"), "path", tmpName)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to replace file"), "path", path)
	}
	return nil
}

// ManifestHash digests the parts of a Pipfile that affect resolution:
// packages, dev-packages, sources and requires. Scripts are left out.
func ManifestHash(p *project.Project) (string, error) {
	canonical := &project.Project{
		Sources:     p.Sources,
		Packages:    p.Packages,
		DevPackages: p.DevPackages,
		Requires:    p.Requires,
	}
	data, err := project.Encode(canonical)
	if err != nil {
		return "", err
	}
	return hasher.CalculateSHA256(data)
}
