package lockfile

import (
	"fmt"
	"log/slog"

	"go.trai.ch/zerr"

	"github.com/nightconcept/pyrope-go/internal/core/pkgname"
)

// ErrNameCollision is returned when two declarations lock to the same key
// from different origins.
var ErrNameCollision = zerr.New("package name collision")

// Builder assembles a fresh lock document. Direct declarations are added
// first; transitive requirements never replace an existing entry.
type Builder struct {
	lf     *Lockfile
	direct map[bool]map[pkgname.Key]string // key -> declared name
	log    *slog.Logger
}

// NewBuilder starts a document with the given meta.
func NewBuilder(meta Meta, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	lf := New()
	lf.Meta = meta
	return &Builder{
		lf:     lf,
		direct: map[bool]map[pkgname.Key]string{false: {}, true: {}},
		log:    log,
	}
}

// AddDirect stores the entry of a declared dependency. declared is the name
// the user wrote; a different distribution name is logged.
func (b *Builder) AddDirect(dev bool, declared string, e Entry) error {
	if e.Origin == nil {
		return zerr.With(zerr.Wrap(ErrInvalidEntry, "missing origin"), "package", declared)
	}
	e.Name = pkgname.Canonical(string(e.Name))
	if !pkgname.Equal(declared, string(e.Name)) {
		b.log.Warn("declared name differs from the distribution name, locking under the distribution name",
			"declared", declared, "distribution", string(e.Name))
	}

	sec := b.lf.Section(dev)
	if prev, ok := b.lookup(sec, e.Name); ok {
		if other, isDirect := b.direct[dev][prev.Name]; isDirect {
			if SameOrigin(prev.Origin, e.Origin) {
				b.log.Debug("duplicate declaration with identical origin", "package", string(e.Name))
				return nil
			}
			return zerr.With(zerr.With(zerr.Wrap(ErrNameCollision,
				fmt.Sprintf("%s and %s both lock as %s from different sources", other, declared, e.Name)),
				"package", string(e.Name)), "declared", declared)
		}
		delete(sec, prev.Name)
	}
	sec[e.Name] = e
	b.direct[dev][e.Name] = declared
	return nil
}

// AddTransitive stores a requirement pulled in by another package unless an
// entry for it already exists. It returns the entry that ends up locked and
// whether e was added.
func (b *Builder) AddTransitive(dev bool, e Entry) (Entry, bool) {
	e.Name = pkgname.Canonical(string(e.Name))
	sec := b.lf.Section(dev)
	if prev, ok := b.lookup(sec, e.Name); ok {
		return prev, false
	}
	sec[e.Name] = e
	return e, true
}

// Get returns the entry currently locked for name.
func (b *Builder) Get(dev bool, name string) (Entry, bool) {
	return b.lookup(b.lf.Section(dev), pkgname.Key(name))
}

// IsDirect reports whether name was declared rather than pulled in.
func (b *Builder) IsDirect(dev bool, name string) bool {
	for k := range b.direct[dev] {
		if pkgname.Equal(string(k), name) {
			return true
		}
	}
	return false
}

func (b *Builder) lookup(sec map[pkgname.Key]Entry, key pkgname.Key) (Entry, bool) {
	if e, ok := sec[pkgname.Canonical(string(key))]; ok {
		return e, true
	}
	for k, e := range sec {
		if pkgname.Equal(string(k), string(key)) {
			return e, true
		}
	}
	return Entry{}, false
}

// Lockfile returns the assembled document.
func (b *Builder) Lockfile() *Lockfile {
	return b.lf
}
