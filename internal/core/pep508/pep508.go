// Package pep508 parses dependency specifiers such as
// `requests[socks] (>=2.0,<3) ; python_version >= "3.8"`.
package pep508

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Requirement is a parsed dependency specifier.
type Requirement struct {
	Name      string
	Extras    []string
	Specifier string // comma separated version clauses, empty for any version
	URL       string // set for "name @ url" direct references
	Marker    string
}

var (
	namePattern  = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)`)
	extraPattern = regexp.MustCompile(`extra\s*==\s*["']([^"']+)["']`)
)

// Parse parses a single requirement line.
func Parse(line string) (Requirement, error) {
	var req Requirement
	s := strings.TrimSpace(line)
	if s == "" {
		return req, fmt.Errorf("empty requirement")
	}

	if idx := strings.Index(s, ";"); idx >= 0 {
		req.Marker = strings.TrimSpace(s[idx+1:])
		s = strings.TrimSpace(s[:idx])
	}

	m := namePattern.FindString(s)
	if m == "" {
		return req, fmt.Errorf("invalid requirement %q: missing distribution name", line)
	}
	req.Name = m
	rest := strings.TrimSpace(s[len(m):])

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return req, fmt.Errorf("invalid requirement %q: unterminated extras", line)
		}
		for _, e := range strings.Split(rest[1:end], ",") {
			if e = strings.TrimSpace(e); e != "" {
				req.Extras = append(req.Extras, strings.ToLower(e))
			}
		}
		sort.Strings(req.Extras)
		rest = strings.TrimSpace(rest[end+1:])
	}

	if strings.HasPrefix(rest, "@") {
		req.URL = strings.TrimSpace(rest[1:])
		if req.URL == "" {
			return req, fmt.Errorf("invalid requirement %q: empty URL after @", line)
		}
		return req, nil
	}

	rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")"))
	if rest != "" {
		clauses := strings.Split(rest, ",")
		for i, c := range clauses {
			c = strings.Join(strings.Fields(c), "")
			if c == "" || !strings.ContainsAny(c[:1], "<>=!~") {
				return req, fmt.Errorf("invalid requirement %q: bad version clause %q", line, c)
			}
			clauses[i] = c
		}
		req.Specifier = strings.Join(clauses, ",")
	}
	return req, nil
}

// MarkerExtras returns the extras named by `extra == "..."` clauses in the marker.
func (r Requirement) MarkerExtras() []string {
	var out []string
	for _, m := range extraPattern.FindAllStringSubmatch(r.Marker, -1) {
		out = append(out, strings.ToLower(m[1]))
	}
	return out
}

// ActiveFor reports whether the requirement applies when the given extras of
// its parent were requested. Requirements without an extra marker always apply.
func (r Requirement) ActiveFor(requested []string) bool {
	needed := r.MarkerExtras()
	if len(needed) == 0 {
		return true
	}
	for _, n := range needed {
		for _, e := range requested {
			if strings.EqualFold(n, e) {
				return true
			}
		}
	}
	return false
}

// CarriedMarker returns the marker with extra clauses removed, or "" when
// nothing else remains.
func (r Requirement) CarriedMarker() string {
	if len(r.MarkerExtras()) == 0 {
		return r.Marker
	}
	var kept []string
	for _, part := range strings.Split(r.Marker, " and ") {
		part = strings.TrimSpace(strings.Trim(strings.TrimSpace(part), "()"))
		if part == "" || extraPattern.MatchString(part) {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, " and ")
}

// String renders the requirement back to specifier form.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	if r.URL != "" {
		b.WriteString(" @ " + r.URL)
	} else {
		b.WriteString(r.Specifier)
	}
	if r.Marker != "" {
		b.WriteString("; " + r.Marker)
	}
	return b.String()
}
