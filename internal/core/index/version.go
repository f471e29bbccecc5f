package index

import (
	"cmp"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var pep440Pattern = regexp.MustCompile(`^v?(?:\d+!)?` +
	`(?P<release>\d+(?:\.\d+)*)` +
	`(?P<pre>[-_.]?(?P<prel>a|b|c|rc|alpha|beta|pre|preview)[-_.]?(?P<pren>\d*))?` +
	`(?P<post>[-_.]?(?:post|rev|r)[-_.]?(?P<postn>\d*)|-(?P<postimplicit>\d+))?` +
	`(?P<dev>[-_.]?dev[-_.]?(?P<devn>\d*))?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`)

var preReleaseLabels = map[string]string{
	"a": "a", "alpha": "a",
	"b": "b", "beta": "b",
	"c": "rc", "rc": "rc", "pre": "rc", "preview": "rc",
}

// pep440 is the parsed form of a PEP 440 version.
type pep440 struct {
	release []int
	pre     string // normalized label and number, e.g. "rc.1"
	post    string
	dev     string
	local   string
}

func parsePEP440(v string) (pep440, error) {
	var out pep440
	m := pep440Pattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(v)))
	if m == nil {
		return out, fmt.Errorf("invalid version %q", v)
	}
	group := func(name string) string { return m[pep440Pattern.SubexpIndex(name)] }

	for _, seg := range strings.Split(group("release"), ".") {
		n, err := strconv.Atoi(seg)
		if err != nil {
			return out, fmt.Errorf("invalid version %q: %w", v, err)
		}
		out.release = append(out.release, n)
	}
	if group("pre") != "" {
		out.pre = preReleaseLabels[group("prel")] + "." + number(group("pren"))
	}
	if group("post") != "" {
		out.post = number(group("postn") + group("postimplicit"))
	}
	if group("dev") != "" {
		out.dev = number(group("devn"))
	}
	out.local = strings.NewReplacer("_", "-", ".", "-").Replace(group("local"))
	return out, nil
}

func number(s string) string {
	n, err := strconv.Atoi(s)
	if err != nil {
		return "0"
	}
	return strconv.Itoa(n)
}

func (p pep440) semver() string {
	parts := make([]string, 3)
	for i := range parts {
		if i < len(p.release) {
			parts[i] = strconv.Itoa(p.release[i])
		} else {
			parts[i] = "0"
		}
	}
	out := strings.Join(parts, ".")

	var pre []string
	if p.pre != "" {
		pre = append(pre, p.pre)
	}
	if p.dev != "" && p.post == "" {
		pre = append(pre, "dev."+p.dev)
	}
	if len(pre) > 0 {
		out += "-" + strings.Join(pre, ".")
	}

	var meta []string
	if len(p.release) > 3 {
		extra := make([]string, 0, len(p.release)-3)
		for _, n := range p.release[3:] {
			extra = append(extra, strconv.Itoa(n))
		}
		meta = append(meta, "r"+strings.Join(extra, "-"))
	}
	if p.post != "" {
		meta = append(meta, "post"+p.post)
		// A dev release of a post release sorts below that post release.
		if p.dev != "" {
			meta = append(meta, "dev"+p.dev)
		}
	}
	if p.local != "" {
		meta = append(meta, "local-"+p.local)
	}
	if len(meta) > 0 {
		out += "+" + strings.Join(meta, ".")
	}
	return out
}

// ParseVersion maps a PEP 440 version onto a semantic version. Release
// segments beyond the third, post releases and local labels are carried as
// build metadata; use Compare to order versions including them.
func ParseVersion(v string) (*semver.Version, error) {
	p, err := parsePEP440(v)
	if err != nil {
		return nil, err
	}
	return semver.StrictNewVersion(p.semver())
}

// tail is the part of a version semver keeps as build metadata.
type tail struct {
	extra []int
	post  int // -1 without a post segment
	dev   int // dev number of a post release, -1 without one
}

func tailOf(v *semver.Version) tail {
	t := tail{post: -1, dev: -1}
	if v.Metadata() == "" {
		return t
	}
	for _, id := range strings.Split(v.Metadata(), ".") {
		switch {
		case strings.HasPrefix(id, "local-"):
			// not ordered
		case strings.HasPrefix(id, "post"):
			t.post, _ = strconv.Atoi(strings.TrimPrefix(id, "post"))
		case strings.HasPrefix(id, "dev"):
			t.dev, _ = strconv.Atoi(strings.TrimPrefix(id, "dev"))
		case strings.HasPrefix(id, "r"):
			for _, seg := range strings.Split(strings.TrimPrefix(id, "r"), "-") {
				n, _ := strconv.Atoi(seg)
				t.extra = append(t.extra, n)
			}
		}
	}
	return t
}

// Compare orders two versions returned by ParseVersion. Trailing zero
// release segments are insignificant and local labels are ignored.
func Compare(a, b *semver.Version) int {
	if c := a.Compare(b); c != 0 {
		return c
	}
	ta, tb := tailOf(a), tailOf(b)
	if c := compareSegments(ta.extra, tb.extra); c != 0 {
		return c
	}
	if c := cmp.Compare(ta.post, tb.post); c != 0 {
		return c
	}
	return cmp.Compare(devRank(ta.dev), devRank(tb.dev))
}

func compareSegments(a, b []int) int {
	for i := range max(len(a), len(b)) {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if c := cmp.Compare(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func devRank(dev int) int {
	if dev < 0 {
		return math.MaxInt
	}
	return dev
}

func isPrerelease(v *semver.Version) bool {
	return v.Prerelease() != "" || tailOf(v).dev >= 0
}

// isPostOf reports whether v is a post release of base, which itself has
// no post segment.
func isPostOf(v, base *semver.Version) bool {
	tv, tb := tailOf(v), tailOf(base)
	return tb.post < 0 && tv.post >= 0 && v.Compare(base) == 0 && compareSegments(tv.extra, tb.extra) == 0
}

// Specifier is a parsed PEP 440 specifier set. Every clause must hold.
type Specifier struct {
	raw     string
	clauses []clause
	// pre is set when a clause names a pre-release, which opts pre-releases in.
	pre bool
}

type clause struct {
	op    string
	v     *semver.Version
	upper *semver.Version // exclusive bound for ~= and wildcard clauses
}

// ParseSpecifier parses a specifier set such as "~=1.4,!=1.4.2". An empty
// specifier or "*" matches any final release.
func ParseSpecifier(spec string) (*Specifier, error) {
	s := &Specifier{raw: strings.TrimSpace(spec)}
	for _, raw := range strings.Split(s.raw, ",") {
		raw = strings.Join(strings.Fields(raw), "")
		if raw == "" || raw == "*" {
			continue
		}
		c, err := parseClause(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid specifier %q: %w", spec, err)
		}
		// Wildcard bounds carry a synthetic "-0" that is not a user pre-release.
		if !strings.HasSuffix(c.op, "*") && isPrerelease(c.v) {
			s.pre = true
		}
		s.clauses = append(s.clauses, c)
	}
	return s, nil
}

// String returns the specifier as written.
func (s *Specifier) String() string {
	if s.raw == "" {
		return "*"
	}
	return s.raw
}

// AllowsPrereleases reports whether the specifier opts into pre-releases.
func (s *Specifier) AllowsPrereleases() bool {
	return s.pre
}

// Check reports whether v satisfies every clause.
func (s *Specifier) Check(v *semver.Version) bool {
	if isPrerelease(v) && !s.pre {
		return false
	}
	for _, c := range s.clauses {
		if !c.check(v) {
			return false
		}
	}
	return true
}

func (c clause) check(v *semver.Version) bool {
	order := Compare(v, c.v)
	switch c.op {
	case "==", "===":
		return order == 0
	case "!=":
		return order != 0
	case "<":
		return order < 0
	case "<=":
		return order <= 0
	case ">":
		// >V excludes post releases of V unless V is one.
		return order > 0 && !isPostOf(v, c.v)
	case ">=":
		return order >= 0
	case "~=", "==*":
		return order >= 0 && Compare(v, c.upper) < 0
	case "!=*":
		return order < 0 || Compare(v, c.upper) >= 0
	}
	return false
}

var clauseOps = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}

func parseClause(text string) (clause, error) {
	op := "=="
	for _, candidate := range clauseOps {
		if strings.HasPrefix(text, candidate) {
			op = candidate
			break
		}
	}
	raw := strings.TrimPrefix(text, op)
	if raw == "" {
		return clause{}, fmt.Errorf("missing version after %q", op)
	}

	if (op == "==" || op == "!=") && strings.HasSuffix(raw, ".*") {
		p, err := parsePEP440(strings.TrimSuffix(raw, ".*"))
		if err != nil {
			return clause{}, err
		}
		lower, upper := prefixBounds(p.release)
		return clause{
			op:    op + "*",
			v:     semver.MustParse(lower + "-0"),
			upper: semver.MustParse(upper + "-0"),
		}, nil
	}

	p, err := parsePEP440(raw)
	if err != nil {
		return clause{}, err
	}
	v, err := semver.StrictNewVersion(p.semver())
	if err != nil {
		return clause{}, err
	}
	c := clause{op: op, v: v}
	if op == "~=" {
		if len(p.release) < 2 {
			return clause{}, fmt.Errorf("~= needs at least two release segments, got %q", raw)
		}
		_, upper := prefixBounds(p.release[:len(p.release)-1])
		c.upper = semver.MustParse(upper + "-0")
	}
	return c, nil
}

// prefixBounds returns the [lower, upper) range of releases that start with
// the given segments, as semver core versions.
func prefixBounds(release []int) (lower, upper string) {
	pad := func(n []int) string {
		s := make([]string, 3)
		for i := range s {
			if i < len(n) {
				s[i] = strconv.Itoa(n[i])
			} else {
				s[i] = "0"
			}
		}
		return strings.Join(s, ".")
	}
	segs := release
	if len(segs) > 3 {
		segs = segs[:3]
	}
	next := append([]int(nil), segs...)
	next[len(next)-1]++
	return pad(segs), pad(next)
}
