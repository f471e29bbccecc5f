// Package pkgname_test contains tests for the pkgname package.
package pkgname_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightconcept/pyrope-go/internal/core/pkgname"
)

func TestCanonical(t *testing.T) {
	t.Parallel()
	assert.Equal(t, pkgname.Key("flask"), pkgname.Canonical("Flask"))
	assert.Equal(t, pkgname.Key("django-cms"), pkgname.Canonical(" Django-CMS "))
	assert.Equal(t, pkgname.Key("zope.interface"), pkgname.Canonical("zope.interface"))
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"Flask", "flask"},
		{"zope.interface", "zope-interface"},
		{"typing_extensions", "typing-extensions"},
		{"A__B--C..d", "a-b-c-d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pkgname.Normalize(tt.in), "input %q", tt.in)
	}
	assert.True(t, pkgname.Equal("Jinja2", "jinja2"))
	assert.False(t, pkgname.Equal("six", "gitdb2"))
}

func TestMap_CaseInsensitiveLookup(t *testing.T) {
	t.Parallel()
	m := pkgname.NewMap[string]()
	m.Set("Flask", "declared")
	m.Set("Jinja2", "vcs")

	v, ok := m.Get("flask")
	require.True(t, ok)
	assert.Equal(t, "declared", v)

	key, ok := m.Key("FLASK")
	require.True(t, ok)
	assert.Equal(t, pkgname.Key("flask"), key)

	m.Set("FLASK", "updated")
	assert.Equal(t, 2, m.Len(), "updating through a different casing must not add an entry")
	v, _ = m.Get("Flask")
	assert.Equal(t, "updated", v)
}

func TestMap_OrderAndDelete(t *testing.T) {
	t.Parallel()
	m := pkgname.NewMap[int]()
	m.Set("c", 3)
	m.Set("a", 1)
	m.Set("b", 2)
	assert.Equal(t, []pkgname.Key{"c", "a", "b"}, m.Keys())

	assert.True(t, m.Delete("A"))
	assert.False(t, m.Delete("a"))
	assert.Equal(t, []pkgname.Key{"c", "b"}, m.Keys())

	v, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	var seen []pkgname.Key
	m.Each(func(k pkgname.Key, _ int) { seen = append(seen, k) })
	assert.Equal(t, []pkgname.Key{"c", "b"}, seen)
}

func TestMap_NilSafe(t *testing.T) {
	t.Parallel()
	var m *pkgname.Map[string]
	_, ok := m.Get("x")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.Keys())
}
