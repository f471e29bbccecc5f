package project

import (
	"fmt"
	"sort"
	"strings"

	"go.trai.ch/zerr"
)

var (
	// ErrAmbiguousSource is returned when a declaration populates more than one source kind.
	ErrAmbiguousSource = zerr.New("ambiguous dependency source")

	// ErrInvalidEditable is returned when editable is set on a registry or URL declaration.
	ErrInvalidEditable = zerr.New("editable requires a VCS or local path source")

	// ErrInvalidDeclaration is returned for declarations with malformed fields.
	ErrInvalidDeclaration = zerr.New("invalid dependency declaration")
)

// Source describes where a declared dependency comes from.
// Exactly one of VersionSpec, VCSSpec, URLSpec or PathSpec.
type Source interface {
	isSource()
	// Kind is a short label used in messages and listings.
	Kind() string
}

// VersionSpec selects a release from a package index.
type VersionSpec struct {
	Constraint string // "*" for any version
}

// VCSSpec points at a version control repository.
type VCSSpec struct {
	VCS          string // git, hg, svn or bzr
	Location     string // stored unexpanded, may contain ${VAR}
	Ref          string // tag, branch or commit-ish, empty for the default branch
	Subdirectory string
}

// URLSpec points at a remote or file: URL of an archive.
type URLSpec struct {
	URL string
}

// PathSpec points at a local directory or archive.
type PathSpec struct {
	Path string
}

func (VersionSpec) isSource() {}
func (VCSSpec) isSource()     {}
func (URLSpec) isSource()     {}
func (PathSpec) isSource()    {}

func (VersionSpec) Kind() string { return "registry" }
func (s VCSSpec) Kind() string   { return s.VCS }
func (URLSpec) Kind() string     { return "file" }
func (PathSpec) Kind() string    { return "path" }

// Declaration is one entry of [packages] or [dev-packages].
type Declaration struct {
	Name     string // as typed by the user
	Source   Source
	Editable bool
	Markers  string
	Extras   []string
	Index    string // name of a [[source]] to pin registry lookups to
}

// Validate checks the invariants of a declaration.
func (d Declaration) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return zerr.Wrap(ErrInvalidDeclaration, "empty package name")
	}
	switch s := d.Source.(type) {
	case VersionSpec:
		if d.Editable {
			return zerr.With(zerr.Wrap(ErrInvalidEditable, d.Name), "package", d.Name)
		}
	case URLSpec:
		if d.Editable {
			return zerr.With(zerr.Wrap(ErrInvalidEditable, d.Name), "package", d.Name)
		}
		if s.URL == "" {
			return zerr.With(zerr.Wrap(ErrInvalidDeclaration, "empty file URL"), "package", d.Name)
		}
	case VCSSpec:
		if s.Location == "" {
			return zerr.With(zerr.Wrap(ErrInvalidDeclaration, "empty VCS location"), "package", d.Name)
		}
	case PathSpec:
		if s.Path == "" {
			return zerr.With(zerr.Wrap(ErrInvalidDeclaration, "empty path"), "package", d.Name)
		}
	case nil:
		return zerr.With(zerr.Wrap(ErrInvalidDeclaration, "no source"), "package", d.Name)
	default:
		return fmt.Errorf("unknown source type %T", s)
	}
	return nil
}

var vcsKeys = []string{"git", "hg", "svn", "bzr"}

// ParseDeclaration converts a raw TOML value from the Pipfile into a Declaration.
// raw is either a constraint string or a table.
func ParseDeclaration(name string, raw any) (Declaration, error) {
	decl := Declaration{Name: name}
	switch v := raw.(type) {
	case string:
		decl.Source = VersionSpec{Constraint: normalizeConstraint(v)}
		return decl, decl.Validate()
	case map[string]any:
		return parseTable(decl, v)
	default:
		return decl, zerr.With(zerr.Wrap(ErrInvalidDeclaration, fmt.Sprintf("unsupported value of type %T", raw)), "package", name)
	}
}

func parseTable(decl Declaration, t map[string]any) (Declaration, error) {
	str := func(key string) (string, error) {
		v, ok := t[key]
		if !ok {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return "", zerr.With(zerr.Wrap(ErrInvalidDeclaration, fmt.Sprintf("%q must be a string", key)), "package", decl.Name)
		}
		return s, nil
	}

	var sources []Source
	var kinds []string

	if v, err := str("version"); err != nil {
		return decl, err
	} else if _, ok := t["version"]; ok {
		sources = append(sources, VersionSpec{Constraint: normalizeConstraint(v)})
		kinds = append(kinds, "version")
	}
	ref, err := str("ref")
	if err != nil {
		return decl, err
	}
	subdir, err := str("subdirectory")
	if err != nil {
		return decl, err
	}
	for _, key := range vcsKeys {
		loc, err := str(key)
		if err != nil {
			return decl, err
		}
		if _, ok := t[key]; ok {
			sources = append(sources, VCSSpec{VCS: key, Location: loc, Ref: ref, Subdirectory: subdir})
			kinds = append(kinds, key)
		}
	}
	if v, err := str("file"); err != nil {
		return decl, err
	} else if _, ok := t["file"]; ok {
		sources = append(sources, URLSpec{URL: v})
		kinds = append(kinds, "file")
	}
	if v, err := str("path"); err != nil {
		return decl, err
	} else if _, ok := t["path"]; ok {
		sources = append(sources, PathSpec{Path: v})
		kinds = append(kinds, "path")
	}

	switch len(sources) {
	case 0:
		sources = append(sources, VersionSpec{Constraint: "*"})
	case 1:
	default:
		err := zerr.Wrap(ErrAmbiguousSource, fmt.Sprintf("%s declares %s", decl.Name, strings.Join(kinds, " and ")))
		return decl, zerr.With(err, "package", decl.Name)
	}
	decl.Source = sources[0]

	if _, isVCS := decl.Source.(VCSSpec); !isVCS && ref != "" {
		return decl, zerr.With(zerr.Wrap(ErrInvalidDeclaration, "ref is only valid with a VCS source"), "package", decl.Name)
	}

	if v, ok := t["editable"]; ok {
		b, ok := v.(bool)
		if !ok {
			return decl, zerr.With(zerr.Wrap(ErrInvalidDeclaration, `"editable" must be a boolean`), "package", decl.Name)
		}
		decl.Editable = b
	}
	if decl.Markers, err = str("markers"); err != nil {
		return decl, err
	}
	if decl.Index, err = str("index"); err != nil {
		return decl, err
	}
	if v, ok := t["extras"]; ok {
		list, ok := v.([]any)
		if !ok {
			return decl, zerr.With(zerr.Wrap(ErrInvalidDeclaration, `"extras" must be an array`), "package", decl.Name)
		}
		for _, e := range list {
			s, ok := e.(string)
			if !ok {
				return decl, zerr.With(zerr.Wrap(ErrInvalidDeclaration, `"extras" must contain strings`), "package", decl.Name)
			}
			decl.Extras = append(decl.Extras, s)
		}
		sort.Strings(decl.Extras)
	}

	return decl, decl.Validate()
}

func normalizeConstraint(c string) string {
	c = strings.TrimSpace(c)
	if c == "" {
		return "*"
	}
	return c
}

// Raw converts the declaration back to its Pipfile form.
func (d Declaration) Raw() any {
	t := map[string]any{}
	switch s := d.Source.(type) {
	case VersionSpec:
		if !d.Editable && d.Markers == "" && len(d.Extras) == 0 && d.Index == "" {
			return s.Constraint
		}
		t["version"] = s.Constraint
	case VCSSpec:
		t[s.VCS] = s.Location
		if s.Ref != "" {
			t["ref"] = s.Ref
		}
		if s.Subdirectory != "" {
			t["subdirectory"] = s.Subdirectory
		}
	case URLSpec:
		t["file"] = s.URL
	case PathSpec:
		t["path"] = s.Path
	}
	if d.Editable {
		t["editable"] = true
	}
	if d.Markers != "" {
		t["markers"] = d.Markers
	}
	if len(d.Extras) > 0 {
		t["extras"] = append([]string(nil), d.Extras...)
	}
	if d.Index != "" {
		t["index"] = d.Index
	}
	return t
}
