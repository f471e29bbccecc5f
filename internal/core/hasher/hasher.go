// Package hasher computes the content digests recorded in lock entries.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"go.trai.ch/zerr"
)

// Prefix marks the digest algorithm in every hash string.
const Prefix = "sha256:"

// ErrInvalidDigest is returned for digests that are not 64 hex characters.
var ErrInvalidDigest = zerr.New("invalid sha256 digest")

// CalculateSHA256 computes the SHA256 hash of the given content
// and returns it in the format "sha256:<hex_hash>".
func CalculateSHA256(content []byte) (string, error) {
	h := sha256.New()
	if _, err := h.Write(content); err != nil {
		return "", zerr.Wrap(err, "failed to write content to hasher")
	}
	return Prefix + hex.EncodeToString(h.Sum(nil)), nil
}

// CalculateSHA256File streams the file at path through the hasher.
func CalculateSHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to open file for hashing"), "path", path)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to hash file"), "path", path)
	}
	return Prefix + hex.EncodeToString(h.Sum(nil)), nil
}

// FromHexDigest turns a bare hex digest as published by an index into the
// prefixed form. Upper-case input is folded.
func FromHexDigest(digest string) (string, error) {
	digest = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(digest), Prefix))
	if len(digest) != sha256.Size*2 {
		return "", zerr.With(zerr.Wrap(ErrInvalidDigest, digest), "digest", digest)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", zerr.With(zerr.Wrap(ErrInvalidDigest, digest), "digest", digest)
	}
	return Prefix + digest, nil
}
