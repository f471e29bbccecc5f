// Package distmeta reads Python core metadata (name and requirements) from
// wheels, source archives and project directories.
package distmeta

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/mail"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"go.trai.ch/zerr"
)

// ErrNoMetadata is returned when an archive or directory carries no readable metadata.
var ErrNoMetadata = zerr.New("no distribution metadata found")

// Metadata is the subset of core metadata the resolver needs.
type Metadata struct {
	Name         string
	Version      string
	RequiresDist []string
}

// maxMetadataSize bounds how much of a single metadata member is read.
const maxMetadataSize = 4 << 20

var (
	archiveSuffixes = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tgz", ".zip", ".tar"}
	sdistPattern    = regexp.MustCompile(`^(.+?)-(v?[0-9][^-]*)$`)
)

// NameFromFilename derives the distribution name from a wheel or sdist file
// name. It returns "" when the name does not follow either convention.
func NameFromFilename(filename string) string {
	base := path.Base(filepath.ToSlash(filename))
	if strings.HasSuffix(base, ".whl") {
		parts := strings.Split(strings.TrimSuffix(base, ".whl"), "-")
		if len(parts) >= 5 {
			return parts[0]
		}
		return ""
	}
	for _, suf := range archiveSuffixes {
		if strings.HasSuffix(strings.ToLower(base), suf) {
			stem := base[:len(base)-len(suf)]
			if m := sdistPattern.FindStringSubmatch(stem); m != nil {
				return m[1]
			}
			return ""
		}
	}
	return ""
}

// IsArchive reports whether filename has a known distribution archive suffix.
func IsArchive(filename string) bool {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".whl") {
		return true
	}
	for _, suf := range archiveSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}

// FromArchive reads metadata from archive content. filename selects the format.
func FromArchive(filename string, content []byte) (*Metadata, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".whl"), strings.HasSuffix(lower, ".zip"):
		return fromZip(content)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		gz, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, zerr.Wrap(err, "failed to open gzip stream")
		}
		defer func() { _ = gz.Close() }()
		return fromTar(gz)
	case strings.HasSuffix(lower, ".tar"):
		return fromTar(bytes.NewReader(content))
	default:
		// Unknown suffix: sniff zip first, then gzip.
		if md, err := fromZip(content); err == nil {
			return md, nil
		}
		if gz, err := gzip.NewReader(bytes.NewReader(content)); err == nil {
			defer func() { _ = gz.Close() }()
			return fromTar(gz)
		}
		return nil, zerr.With(zerr.Wrap(ErrNoMetadata, filename), "file", filename)
	}
}

// metadataRank orders candidate members: wheel METADATA beats a top-level
// PKG-INFO, which beats egg-info copies and pyproject.toml.
func metadataRank(name string) int {
	name = strings.TrimPrefix(path.Clean(name), "./")
	parts := strings.Split(name, "/")
	last := parts[len(parts)-1]
	switch {
	case last == "METADATA" && len(parts) == 2 && strings.HasSuffix(parts[0], ".dist-info"):
		return 1
	case last == "PKG-INFO" && len(parts) <= 2:
		return 2
	case last == "PKG-INFO" && len(parts) == 3 && strings.HasSuffix(parts[1], ".egg-info"):
		return 3
	case last == "pyproject.toml" && len(parts) <= 2:
		return 4
	}
	return 0
}

func fromZip(content []byte) (*Metadata, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open zip archive")
	}
	var best *zip.File
	bestRank := 0
	for _, f := range zr.File {
		if r := metadataRank(f.Name); r > 0 && (bestRank == 0 || r < bestRank) {
			best, bestRank = f, r
		}
	}
	if best == nil {
		return nil, ErrNoMetadata
	}
	rc, err := best.Open()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to open archive member"), "member", best.Name)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(io.LimitReader(rc, maxMetadataSize))
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read archive member"), "member", best.Name)
	}
	return parseMember(best.Name, data)
}

func fromTar(r io.Reader) (*Metadata, error) {
	tr := tar.NewReader(r)
	var bestData []byte
	var bestName string
	bestRank := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, zerr.Wrap(err, "failed to read tar archive")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		r := metadataRank(hdr.Name)
		if r == 0 || (bestRank != 0 && r >= bestRank) {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxMetadataSize))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to read archive member"), "member", hdr.Name)
		}
		bestData, bestName, bestRank = data, hdr.Name, r
	}
	if bestRank == 0 {
		return nil, ErrNoMetadata
	}
	return parseMember(bestName, bestData)
}

func parseMember(name string, data []byte) (*Metadata, error) {
	if path.Base(name) == "pyproject.toml" {
		return ParsePyProject(data)
	}
	return ParseCoreMetadata(data)
}

// ParseCoreMetadata parses a PKG-INFO or METADATA document (RFC 822 headers).
func ParseCoreMetadata(data []byte) (*Metadata, error) {
	// Header blocks end at the first blank line; the long description may follow.
	if !bytes.Contains(data, []byte("\n\n")) && !bytes.Contains(data, []byte("\r\n\r\n")) {
		data = append(append([]byte{}, data...), '\n', '\n')
	}
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, zerr.Wrap(err, "failed to parse core metadata")
	}
	md := &Metadata{
		Name:         strings.TrimSpace(msg.Header.Get("Name")),
		Version:      strings.TrimSpace(msg.Header.Get("Version")),
		RequiresDist: msg.Header["Requires-Dist"],
	}
	if md.Name == "" {
		return nil, zerr.Wrap(ErrNoMetadata, "metadata has no Name field")
	}
	return md, nil
}

type pyproject struct {
	Project struct {
		Name         string   `toml:"name"`
		Version      string   `toml:"version"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name string `toml:"name"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// ParsePyProject reads the PEP 621 [project] table of a pyproject.toml.
func ParsePyProject(data []byte) (*Metadata, error) {
	var pp pyproject
	if err := toml.Unmarshal(data, &pp); err != nil {
		return nil, zerr.Wrap(err, "failed to parse pyproject.toml")
	}
	name := pp.Project.Name
	if name == "" {
		name = pp.Tool.Poetry.Name
	}
	if name == "" {
		return nil, zerr.Wrap(ErrNoMetadata, "pyproject.toml has no project name")
	}
	return &Metadata{Name: name, Version: pp.Project.Version, RequiresDist: pp.Project.Dependencies}, nil
}

// FromDir reads metadata from a project directory: pyproject.toml first, then PKG-INFO.
func FromDir(dir string) (*Metadata, error) {
	for _, candidate := range []string{"pyproject.toml", "PKG-INFO"} {
		data, err := os.ReadFile(filepath.Join(dir, candidate))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to read metadata file"), "path", filepath.Join(dir, candidate))
		}
		md, err := parseMember(candidate, data)
		if errors.Is(err, ErrNoMetadata) {
			continue
		}
		return md, err
	}
	return nil, zerr.With(zerr.Wrap(ErrNoMetadata, dir), "dir", dir)
}
