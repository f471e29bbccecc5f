// Package envsubst expands ${NAME} placeholders in source locations.
//
// Locations are stored with their placeholders intact. Expansion happens only
// when a location is about to be dereferenced, against an explicit snapshot of
// the environment.
package envsubst

import (
	"os"
	"strings"

	"go.trai.ch/zerr"
)

// ErrUnresolvedVariable is returned when a placeholder names an unset variable.
var ErrUnresolvedVariable = zerr.New("unresolved environment variable")

// Lookup returns the value of an environment variable and whether it is set.
type Lookup func(name string) (string, bool)

// OSLookup reads from the process environment.
func OSLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// MapLookup returns a Lookup backed by a fixed map.
func MapLookup(vars map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

// Contains reports whether s carries at least one well-formed placeholder.
func Contains(s string) bool {
	start := strings.Index(s, "${")
	return start >= 0 && strings.Contains(s[start:], "}")
}

// Expand replaces every ${NAME} token in s with its value from lookup.
// A "$" that does not open a complete token is copied as-is.
func Expand(s string, lookup Lookup) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	if lookup == nil {
		lookup = OSLookup
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '$' || i+1 >= len(s) || s[i+1] != '{' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i+2:], '}')
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		name := s[i+2 : i+2+end]
		if !validName(name) {
			b.WriteString(s[i : i+3+end])
			i += 3 + end
			continue
		}
		val, ok := lookup(name)
		if !ok {
			err := zerr.Wrap(ErrUnresolvedVariable, "${"+name+"}")
			return "", zerr.With(err, "variable", name)
		}
		b.WriteString(val)
		i += 3 + end
	}
	return b.String(), nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
