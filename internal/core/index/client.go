// Package index looks up releases on a PyPI-compatible package index through
// its JSON API.
package index

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"

	"github.com/nightconcept/pyrope-go/internal/core/envsubst"
	"github.com/nightconcept/pyrope-go/internal/core/hasher"
	"github.com/nightconcept/pyrope-go/internal/core/pkgname"
	"github.com/nightconcept/pyrope-go/internal/core/project"
)

var (
	// ErrNoMatchingVersion is returned when no release satisfies the constraint.
	ErrNoMatchingVersion = zerr.New("no matching version")

	// ErrPackageNotFound is returned when the index does not know the package.
	ErrPackageNotFound = zerr.New("package not found on index")

	// ErrIndexUnreachable is returned when the index cannot be queried.
	ErrIndexUnreachable = zerr.New("package index unreachable")
)

// Release is the chosen release of a package.
type Release struct {
	Name         string // as published by the index
	Version      string
	Hashes       []string
	RequiresDist []string
}

// Client queries package indexes. It is safe for concurrent use; project
// documents are fetched at most once per client.
type Client struct {
	Env    envsubst.Lookup
	Logger *slog.Logger

	secure   *http.Client
	insecure *http.Client

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]*projectDoc
}

// NewClient returns a client resolving URL placeholders through env.
func NewClient(env envsubst.Lookup, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // verify_ssl = false
	return &Client{
		Env:      env,
		Logger:   log,
		secure:   &http.Client{},
		insecure: &http.Client{Transport: tr},
		cache:    make(map[string]*projectDoc),
	}
}

type releaseFile struct {
	Filename string            `json:"filename"`
	URL      string            `json:"url"`
	Digests  map[string]string `json:"digests"`
	Yanked   bool              `json:"yanked"`
}

type projectDoc struct {
	Info struct {
		Name         string   `json:"name"`
		Version      string   `json:"version"`
		RequiresDist []string `json:"requires_dist"`
	} `json:"info"`
	Releases map[string][]releaseFile `json:"releases"`
	URLs     []releaseFile            `json:"urls"`
}

// APIBase derives the JSON API root from a simple index URL:
// https://pypi.org/simple becomes https://pypi.org/pypi.
func APIBase(indexURL string) string {
	base := strings.TrimRight(indexURL, "/")
	switch {
	case strings.HasSuffix(base, "/+simple"):
		return strings.TrimSuffix(base, "/+simple")
	case strings.HasSuffix(base, "/simple"):
		return strings.TrimSuffix(base, "/simple") + "/pypi"
	}
	return base
}

// Lookup returns the highest release of name that satisfies constraint.
func (c *Client) Lookup(ctx context.Context, src project.IndexSource, name, constraint string) (*Release, error) {
	spec, err := ParseSpecifier(constraint)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(ErrNoMatchingVersion, err.Error()), "package", name)
	}

	doc, base, err := c.project(ctx, src, name)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		raw string
		v   *semver.Version
	}
	var candidates []candidate
	for raw, files := range doc.Releases {
		if !hasInstallableFile(files) {
			continue
		}
		v, err := ParseVersion(raw)
		if err != nil {
			c.Logger.Debug("skipping unparseable version", "package", name, "version", raw)
			continue
		}
		if spec.Check(v) {
			candidates = append(candidates, candidate{raw: raw, v: v})
		}
	}
	if len(candidates) == 0 {
		return nil, zerr.With(zerr.With(zerr.Wrap(ErrNoMatchingVersion,
			fmt.Sprintf("%s%s on %s", name, spec, src.Name)), "package", name), "constraint", spec.String())
	}
	sort.Slice(candidates, func(i, j int) bool {
		if cmp := Compare(candidates[i].v, candidates[j].v); cmp != 0 {
			return cmp > 0
		}
		return candidates[i].raw < candidates[j].raw
	})
	best := candidates[0]

	rel := &Release{Name: doc.Info.Name, Version: best.raw}
	if rel.Name == "" {
		rel.Name = name
	}
	if rel.Hashes, err = fileHashes(doc.Releases[best.raw]); err != nil {
		return nil, zerr.With(err, "package", name)
	}

	if best.raw == doc.Info.Version {
		rel.RequiresDist = doc.Info.RequiresDist
	} else {
		reqs, err := c.versionRequires(ctx, src, base, name, best.raw)
		if err != nil {
			return nil, err
		}
		rel.RequiresDist = reqs
	}
	c.Logger.Debug("selected release", "package", rel.Name, "version", rel.Version, "index", src.Name)
	return rel, nil
}

func hasInstallableFile(files []releaseFile) bool {
	for _, f := range files {
		if !f.Yanked {
			return true
		}
	}
	return false
}

func fileHashes(files []releaseFile) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, f := range files {
		if f.Yanked {
			continue
		}
		digest, ok := f.Digests["sha256"]
		if !ok {
			continue
		}
		h, err := hasher.FromHexDigest(digest)
		if err != nil {
			return nil, zerr.With(err, "file", f.Filename)
		}
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (c *Client) client(src project.IndexSource) *http.Client {
	if src.VerifySSL {
		return c.secure
	}
	return c.insecure
}

func (c *Client) expand(src project.IndexSource) (string, error) {
	expanded, err := envsubst.Expand(src.URL, c.Env)
	if err != nil {
		return "", zerr.With(err, "index", src.Name)
	}
	return APIBase(expanded), nil
}

func (c *Client) project(ctx context.Context, src project.IndexSource, name string) (*projectDoc, string, error) {
	base, err := c.expand(src)
	if err != nil {
		return nil, "", err
	}
	endpoint := base + "/" + url.PathEscape(pkgname.Normalize(name)) + "/json"

	c.mu.Lock()
	doc, ok := c.cache[endpoint]
	c.mu.Unlock()
	if ok {
		return doc, base, nil
	}

	v, err, _ := c.group.Do(endpoint, func() (any, error) {
		var d projectDoc
		if err := c.getJSON(ctx, src, endpoint, name, &d); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[endpoint] = &d
		c.mu.Unlock()
		return &d, nil
	})
	if err != nil {
		return nil, "", err
	}
	return v.(*projectDoc), base, nil
}

func (c *Client) versionRequires(ctx context.Context, src project.IndexSource, base, name, version string) ([]string, error) {
	endpoint := base + "/" + url.PathEscape(pkgname.Normalize(name)) + "/" + url.PathEscape(version) + "/json"
	var d projectDoc
	if err := c.getJSON(ctx, src, endpoint, name, &d); err != nil {
		return nil, err
	}
	return d.Info.RequiresDist, nil
}

func (c *Client) getJSON(ctx context.Context, src project.IndexSource, endpoint, name string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return zerr.With(zerr.Wrap(ErrIndexUnreachable, err.Error()), "index", src.Name)
	}
	req.Header.Set("Accept", "application/json")
	c.Logger.Debug("index request", "url", redact(endpoint))

	resp, err := c.client(src).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return zerr.With(zerr.Wrap(fmt.Errorf("%w: %w", ErrIndexUnreachable, err), src.Name), "index", src.Name)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return zerr.With(zerr.With(zerr.Wrap(ErrPackageNotFound, name+" on "+src.Name), "package", name), "index", src.Name)
	case resp.StatusCode != http.StatusOK:
		return zerr.With(zerr.Wrap(ErrIndexUnreachable, fmt.Sprintf("%s returned status %d", src.Name, resp.StatusCode)), "index", src.Name)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to decode index response"), "index", src.Name)
	}
	return nil
}

// redact hides credentials embedded in index URLs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
