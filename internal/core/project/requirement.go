package project

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"

	"github.com/nightconcept/pyrope-go/internal/core/distmeta"
	"github.com/nightconcept/pyrope-go/internal/core/pep508"
)

// vcsPrefixes are the scheme prefixes that mark a requirement as a VCS checkout.
var vcsPrefixes = []string{"git+", "hg+", "svn+", "bzr+"}

// IsVCSRequirement reports whether a requirement line carries a VCS scheme
// prefix. Only the prefix is inspected: "gitdb2" is a registry package.
func IsVCSRequirement(line string) bool {
	_, _, ok := splitVCSPrefix(line)
	return ok
}

func splitVCSPrefix(line string) (vcs, rest string, ok bool) {
	for _, p := range vcsPrefixes {
		if strings.HasPrefix(line, p) {
			rest = line[len(p):]
			// git+ must be followed by a URL or scp-like location, not part of a name.
			if strings.Contains(rest, "://") || strings.Contains(rest, "@") || strings.HasPrefix(rest, "/") {
				return strings.TrimSuffix(p, "+"), rest, true
			}
		}
	}
	return "", "", false
}

// IsURLRequirement reports whether a requirement line is a direct archive URL.
func IsURLRequirement(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "file:")
}

// IsPathRequirement reports whether a requirement line names a local path.
func IsPathRequirement(line string) bool {
	if line == "." || line == ".." {
		return true
	}
	if strings.HasPrefix(line, "./") || strings.HasPrefix(line, "../") || strings.HasPrefix(line, "~") ||
		strings.HasPrefix(line, `.\`) || strings.HasPrefix(line, `..\`) {
		return true
	}
	if filepath.IsAbs(line) || strings.HasPrefix(line, "/") {
		return true
	}
	return len(line) > 2 && line[1] == ':' && (line[2] == '\\' || line[2] == '/')
}

// ParseRequirement converts a command line requirement into a Declaration.
// Names of URL and path declarations are provisional: the resolver replaces
// them with the distribution's declared name.
func ParseRequirement(line string, editable bool) (Declaration, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Declaration{}, zerr.Wrap(ErrInvalidDeclaration, "empty requirement")
	}

	var decl Declaration
	switch {
	case IsVCSRequirement(line):
		d, err := parseVCSRequirement(line)
		if err != nil {
			return d, err
		}
		decl = d
	case IsURLRequirement(line):
		u, frag := splitFragment(line)
		decl = Declaration{Name: eggName(frag), Source: URLSpec{URL: u}}
		if decl.Name == "" {
			decl.Name = nameFromLocation(u)
		}
	case IsPathRequirement(line):
		p, frag := splitFragment(line)
		decl = Declaration{Name: eggName(frag), Source: PathSpec{Path: p}}
		if decl.Name == "" {
			decl.Name = nameFromLocation(filepath.ToSlash(p))
		}
	default:
		req, err := pep508.Parse(line)
		if err != nil {
			return Declaration{}, zerr.Wrap(ErrInvalidDeclaration, err.Error())
		}
		if req.URL != "" {
			sub, err := ParseRequirement(req.URL, editable)
			if err != nil {
				return sub, err
			}
			sub.Name = req.Name
			sub.Extras = req.Extras
			sub.Markers = req.Marker
			return sub, sub.Validate()
		}
		decl = Declaration{
			Name:    req.Name,
			Source:  VersionSpec{Constraint: normalizeConstraint(req.Specifier)},
			Markers: req.Marker,
			Extras:  req.Extras,
		}
	}
	decl.Editable = editable
	return decl, decl.Validate()
}

func parseVCSRequirement(line string) (Declaration, error) {
	vcs, rest, _ := splitVCSPrefix(line)
	loc, frag := splitFragment(rest)

	location, ref := SplitVCSRef(loc)
	decl := Declaration{
		Name: eggName(frag),
		Source: VCSSpec{
			VCS:          vcs,
			Location:     location,
			Ref:          ref,
			Subdirectory: fragmentValue(frag, "subdirectory"),
		},
	}
	if decl.Name == "" {
		decl.Name = nameFromLocation(location)
	}
	if decl.Name == "" {
		return decl, zerr.Wrap(ErrInvalidDeclaration, fmt.Sprintf("cannot infer a package name from %q, add #egg=<name>", line))
	}
	return decl, nil
}

// SplitVCSRef separates a trailing @ref from a VCS location. The "@" of a
// user-info part (git@github.com) is never taken as the ref separator.
func SplitVCSRef(loc string) (location, ref string) {
	pathStart := 0
	if i := strings.Index(loc, "://"); i >= 0 {
		hostStart := i + 3
		slash := strings.Index(loc[hostStart:], "/")
		if slash < 0 {
			return loc, ""
		}
		pathStart = hostStart + slash
	} else if i := strings.Index(loc, ":"); i >= 0 && !strings.HasPrefix(loc, "/") {
		pathStart = i + 1
	}
	at := strings.LastIndex(loc[pathStart:], "@")
	if at < 0 {
		return loc, ""
	}
	at += pathStart
	if strings.Contains(loc[at:], "/") {
		return loc, ""
	}
	return loc[:at], loc[at+1:]
}

func splitFragment(s string) (base, fragment string) {
	if i := strings.Index(s, "#"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func fragmentValue(fragment, key string) string {
	if fragment == "" {
		return ""
	}
	vals, err := url.ParseQuery(fragment)
	if err != nil {
		return ""
	}
	return vals.Get(key)
}

func eggName(fragment string) string {
	egg := fragmentValue(fragment, "egg")
	if egg == "" {
		return ""
	}
	if req, err := pep508.Parse(egg); err == nil {
		return req.Name
	}
	return egg
}

// nameFromLocation guesses a package name from the last path element of a
// location: archives use the distribution naming rules, repositories drop ".git".
func nameFromLocation(loc string) string {
	if u, err := url.Parse(loc); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		loc = u.Path
	}
	base := path.Base(strings.TrimRight(filepath.ToSlash(loc), "/"))
	if base == "." || base == "/" || base == "" {
		return ""
	}
	if name := distmeta.NameFromFilename(base); name != "" {
		return name
	}
	return strings.TrimSuffix(base, ".git")
}
