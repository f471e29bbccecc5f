package vcs

import (
	"net/url"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"
)

// Scheme is the transport of a VCS location.
type Scheme string

// Supported transports.
const (
	SchemeHTTPS Scheme = "https"
	SchemeHTTP  Scheme = "http"
	SchemeGit   Scheme = "git"
	SchemeSSH   Scheme = "ssh"
	SchemeFile  Scheme = "file"
)

// Location is a parsed repository location.
type Location struct {
	Raw    string
	Scheme Scheme
	Host   string
	// Path is the repository path without a leading slash for remotes, and
	// the platform path for local repositories.
	Path string
}

// ParseLocation parses URL, scp-like (git@host:owner/repo.git) and plain path locations.
func ParseLocation(raw string) (Location, error) {
	loc := Location{Raw: raw}
	if raw == "" {
		return loc, zerr.Wrap(ErrUnsupportedVCS, "empty location")
	}

	if i := strings.Index(raw, "://"); i > 0 {
		u, err := url.Parse(raw)
		if err != nil {
			return loc, zerr.With(zerr.Wrap(ErrUnsupportedVCS, err.Error()), "location", raw)
		}
		loc.Scheme = Scheme(strings.ToLower(u.Scheme))
		switch loc.Scheme {
		case SchemeHTTPS, SchemeHTTP, SchemeGit, SchemeSSH:
			loc.Host = strings.ToLower(u.Hostname())
			loc.Path = strings.TrimPrefix(u.Path, "/")
		case SchemeFile:
			p := u.Path
			if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
				p = p[1:]
			}
			loc.Path = filepath.FromSlash(p)
		default:
			return loc, zerr.With(zerr.Wrap(ErrUnsupportedVCS, "scheme "+u.Scheme), "location", raw)
		}
		return loc, nil
	}

	if isLocalPath(raw) {
		loc.Scheme = SchemeFile
		loc.Path = filepath.FromSlash(raw)
		return loc, nil
	}

	// scp-like: [user@]host:path
	if colon := strings.Index(raw, ":"); colon > 0 {
		hostPart := raw[:colon]
		if at := strings.LastIndex(hostPart, "@"); at >= 0 {
			hostPart = hostPart[at+1:]
		}
		loc.Scheme = SchemeSSH
		loc.Host = strings.ToLower(hostPart)
		loc.Path = strings.TrimPrefix(raw[colon+1:], "/")
		return loc, nil
	}

	return loc, zerr.With(zerr.Wrap(ErrUnsupportedVCS, raw), "location", raw)
}

func isLocalPath(s string) bool {
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || s == "." || s == ".." {
		return true
	}
	if strings.HasPrefix(s, `.\`) || strings.HasPrefix(s, `..\`) {
		return true
	}
	// C:\repo or C:/repo
	return len(s) >= 3 && s[1] == ':' && (s[2] == '\\' || s[2] == '/')
}

// IsLocal reports whether the location is a repository on this machine.
func (l Location) IsLocal() bool {
	return l.Scheme == SchemeFile
}

// RepoKey identifies the repository independently of the transport, so the
// https and ssh forms of one remote compare equal.
func (l Location) RepoKey() string {
	if l.IsLocal() {
		return "file:" + filepath.Clean(l.Path)
	}
	return l.Host + "/" + strings.TrimSuffix(strings.TrimSuffix(l.Path, "/"), ".git")
}

// GitHubRepo returns owner and repository name for github.com remotes.
func (l Location) GitHubRepo() (owner, repo string, ok bool) {
	if l.Host != "github.com" && l.Host != "www.github.com" {
		return "", "", false
	}
	parts := strings.Split(strings.TrimSuffix(strings.Trim(l.Path, "/"), ".git"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
