// Package document reads source documents, fingerprints them and extracts
// their text.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// NotFoundError reports a configured source path that does not exist or
// cannot be read.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document not found: %s: %v", e.Path, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Reader abstracts file access so tests can swap in fixtures.
type Reader interface {
	ReadFile(name string) ([]byte, error)
}

// OSReader reads from the local filesystem.
type OSReader struct{}

func (OSReader) ReadFile(name string) ([]byte, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, errors.New("is a directory")
	}
	return os.ReadFile(name)
}

// Read returns the raw bytes of path, wrapping any failure in NotFoundError.
func Read(r Reader, path string) ([]byte, error) {
	b, err := r.ReadFile(path)
	if err != nil {
		return nil, &NotFoundError{Path: path, Err: err}
	}
	return b, nil
}

// Checksum is the hex SHA-256 of b.
func Checksum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// Manifest maps a source path to the checksum of its content.
type Manifest map[string]string

// ComputeManifest reads every path and records its checksum.
func ComputeManifest(r Reader, paths []string) (Manifest, error) {
	m := make(Manifest, len(paths))
	for _, p := range paths {
		b, err := Read(r, p)
		if err != nil {
			return nil, err
		}
		m[p] = Checksum(b)
	}
	return m, nil
}

// Equal reports whether both manifests hold exactly the same paths and checksums.
func (m Manifest) Equal(other Manifest) bool {
	if len(m) != len(other) {
		return false
	}
	for p, sum := range m {
		if o, ok := other[p]; !ok || o != sum {
			return false
		}
	}
	return true
}

// Key is the canonical form of a path set: cleaned, sorted, de-duplicated.
func Key(paths []string) string {
	ps := Normalize(paths)
	slices.Sort(ps)
	return strings.Join(ps, "\x00")
}

// Normalize cleans each path and drops duplicates, keeping first-seen order.
// Blank entries are kept as "" so reading them fails with NotFoundError.
func Normalize(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			p = filepath.Clean(p)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
