// Package project models the Pipfile: package indexes, declared dependencies,
// scripts and interpreter requirements.
package project

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.trai.ch/zerr"

	"github.com/nightconcept/pyrope-go/internal/core/pkgname"
)

// Section names of the two dependency partitions.
const (
	SectionPackages    = "packages"
	SectionDevPackages = "dev-packages"
)

// DefaultIndexName and DefaultIndexURL describe the source written by init and
// used when a Pipfile declares none.
const (
	DefaultIndexName = "pypi"
	DefaultIndexURL  = "https://pypi.org/simple"
)

// IndexSource is a [[source]] entry. URL may contain ${VAR} placeholders.
type IndexSource struct {
	Name      string `toml:"name"`
	URL       string `toml:"url"`
	VerifySSL bool   `toml:"verify_ssl"`
}

// Requires holds the [requires] table.
type Requires struct {
	PythonVersion     string `toml:"python_version,omitempty"`
	PythonFullVersion string `toml:"python_full_version,omitempty"`
}

// Project is the in-memory form of a Pipfile.
type Project struct {
	Sources     []IndexSource
	Packages    *pkgname.Map[Declaration]
	DevPackages *pkgname.Map[Declaration]
	Scripts     map[string]string
	Requires    Requires
}

// document mirrors the TOML layout of a Pipfile.
type document struct {
	Source      []IndexSource     `toml:"source"`
	Packages    map[string]any    `toml:"packages"`
	DevPackages map[string]any    `toml:"dev-packages"`
	Scripts     map[string]string `toml:"scripts,omitempty"`
	Requires    *Requires         `toml:"requires,omitempty"`
}

// NewProject creates and returns a new Project with the default index.
func NewProject() *Project {
	return &Project{
		Sources:     []IndexSource{{Name: DefaultIndexName, URL: DefaultIndexURL, VerifySSL: true}},
		Packages:    pkgname.NewMap[Declaration](),
		DevPackages: pkgname.NewMap[Declaration](),
		Scripts:     make(map[string]string),
	}
}

// Decode parses Pipfile content. Declarations keep the order they have in the document.
func Decode(data []byte) (*Project, error) {
	var doc document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to decode Pipfile")
	}

	p := &Project{
		Sources:     doc.Source,
		Packages:    pkgname.NewMap[Declaration](),
		DevPackages: pkgname.NewMap[Declaration](),
		Scripts:     doc.Scripts,
	}
	if p.Scripts == nil {
		p.Scripts = make(map[string]string)
	}
	if doc.Requires != nil {
		p.Requires = *doc.Requires
	}
	if len(p.Sources) == 0 {
		p.Sources = []IndexSource{{Name: DefaultIndexName, URL: DefaultIndexURL, VerifySSL: true}}
	}

	sections := []struct {
		name string
		raw  map[string]any
		dst  *pkgname.Map[Declaration]
	}{
		{SectionPackages, doc.Packages, p.Packages},
		{SectionDevPackages, doc.DevPackages, p.DevPackages},
	}
	for _, sec := range sections {
		for _, name := range orderedKeys(md, sec.name, sec.raw) {
			decl, err := ParseDeclaration(name, sec.raw[name])
			if err != nil {
				return nil, zerr.With(err, "section", sec.name)
			}
			if sec.dst.Has(name) {
				return nil, zerr.With(zerr.Wrap(ErrInvalidDeclaration, fmt.Sprintf("%s is declared twice in [%s]", name, sec.name)), "package", name)
			}
			sec.dst.Set(name, decl)
		}
	}
	return p, nil
}

// orderedKeys returns the keys of a section in document order.
func orderedKeys(md toml.MetaData, section string, raw map[string]any) []string {
	seen := make(map[string]bool, len(raw))
	var keys []string
	for _, k := range md.Keys() {
		if len(k) < 2 || k[0] != section {
			continue
		}
		if _, ok := raw[k[1]]; ok && !seen[k[1]] {
			seen[k[1]] = true
			keys = append(keys, k[1])
		}
	}
	// Keys the metadata did not report (should not happen) are appended sorted.
	var rest []string
	for k := range raw {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// Encode renders the project as Pipfile TOML.
func Encode(p *Project) ([]byte, error) {
	doc := document{
		Source:      p.Sources,
		Packages:    rawSection(p.Packages),
		DevPackages: rawSection(p.DevPackages),
		Scripts:     p.Scripts,
	}
	if len(doc.Scripts) == 0 {
		doc.Scripts = nil
	}
	if p.Requires != (Requires{}) {
		r := p.Requires
		doc.Requires = &r
	}

	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(doc); err != nil {
		return nil, zerr.Wrap(err, "failed to encode Pipfile")
	}
	return buf.Bytes(), nil
}

func rawSection(m *pkgname.Map[Declaration]) map[string]any {
	out := make(map[string]any, m.Len())
	m.Each(func(_ pkgname.Key, d Declaration) {
		out[d.Name] = d.Raw()
	})
	return out
}

// Section returns the declarations of [packages] or [dev-packages].
func (p *Project) Section(dev bool) *pkgname.Map[Declaration] {
	if dev {
		return p.DevPackages
	}
	return p.Packages
}

// AddDeclaration stores decl, replacing any declaration of the same package
// regardless of the casing it was declared with.
func (p *Project) AddDeclaration(decl Declaration, dev bool) error {
	if err := decl.Validate(); err != nil {
		return err
	}
	if decl.Index != "" {
		if _, ok := p.FindSource(decl.Index); !ok {
			return zerr.With(zerr.Wrap(ErrInvalidDeclaration, fmt.Sprintf("unknown index %q", decl.Index)), "package", decl.Name)
		}
	}
	sec := p.Section(dev)
	if existing, ok := sec.Get(decl.Name); ok && existing.Name != decl.Name {
		sec.Delete(existing.Name)
	}
	sec.Set(decl.Name, decl)
	return nil
}

// RemoveDeclaration deletes a package from both sections and reports whether it was found.
func (p *Project) RemoveDeclaration(name string) bool {
	a := p.Packages.Delete(name)
	b := p.DevPackages.Delete(name)
	return a || b
}

// FindSource returns the [[source]] entry with the given name.
func (p *Project) FindSource(name string) (IndexSource, bool) {
	for _, s := range p.Sources {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return IndexSource{}, false
}

// DefaultSource returns the first declared index.
func (p *Project) DefaultSource() IndexSource {
	if len(p.Sources) == 0 {
		return IndexSource{Name: DefaultIndexName, URL: DefaultIndexURL, VerifySSL: true}
	}
	return p.Sources[0]
}
