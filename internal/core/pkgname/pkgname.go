// Package pkgname normalizes Python distribution names.
//
// Lock documents key their entries by the lower-cased distribution name, while
// Pipfiles keep whatever casing the user typed. Map hides that divergence so
// that "Flask" and "flask" always find the same entry.
package pkgname

import (
	"regexp"
	"strings"
)

var separatorRun = regexp.MustCompile(`[-_.]+`)

// Key is the canonical lock key of a distribution.
type Key string

// Canonical returns the lock key for a declared or distribution name.
func Canonical(name string) Key {
	return Key(strings.ToLower(strings.TrimSpace(name)))
}

// String returns the key as written to the lockfile.
func (k Key) String() string {
	return string(k)
}

// Normalize returns the PEP 503 form of a name, used for comparisons only.
func Normalize(name string) string {
	return separatorRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Equal reports whether two names refer to the same distribution.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Map is an insertion-ordered map from distribution names to values.
// Lookups ignore case and separator differences.
type Map[T any] struct {
	index  map[string]int
	keys   []Key
	values []T
}

// NewMap creates an empty Map.
func NewMap[T any]() *Map[T] {
	return &Map[T]{index: make(map[string]int)}
}

// Set stores v under name. An existing entry keeps its position and key.
func (m *Map[T]) Set(name string, v T) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	norm := Normalize(name)
	if i, ok := m.index[norm]; ok {
		m.values[i] = v
		return
	}
	m.index[norm] = len(m.keys)
	m.keys = append(m.keys, Canonical(name))
	m.values = append(m.values, v)
}

// Get returns the value stored for name.
func (m *Map[T]) Get(name string) (T, bool) {
	var zero T
	if m == nil || m.index == nil {
		return zero, false
	}
	i, ok := m.index[Normalize(name)]
	if !ok {
		return zero, false
	}
	return m.values[i], true
}

// Has reports whether name is present.
func (m *Map[T]) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

// Key returns the stored key for name.
func (m *Map[T]) Key(name string) (Key, bool) {
	if m == nil || m.index == nil {
		return "", false
	}
	i, ok := m.index[Normalize(name)]
	if !ok {
		return "", false
	}
	return m.keys[i], true
}

// Delete removes name and reports whether it was present.
func (m *Map[T]) Delete(name string) bool {
	if m == nil || m.index == nil {
		return false
	}
	norm := Normalize(name)
	i, ok := m.index[norm]
	if !ok {
		return false
	}
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.values = append(m.values[:i], m.values[i+1:]...)
	delete(m.index, norm)
	for k, j := range m.index {
		if j > i {
			m.index[k] = j - 1
		}
	}
	return true
}

// Len returns the number of entries.
func (m *Map[T]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map[T]) Keys() []Key {
	if m == nil {
		return nil
	}
	out := make([]Key, len(m.keys))
	copy(out, m.keys)
	return out
}

// Each calls fn for every entry in insertion order.
func (m *Map[T]) Each(fn func(Key, T)) {
	if m == nil {
		return
	}
	for i, k := range m.keys {
		fn(k, m.values[i])
	}
}
