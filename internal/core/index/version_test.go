package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightconcept/pyrope-go/internal/core/index"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"1":              "1.0.0",
		"2.31":           "2.31.0",
		"2.31.0":         "2.31.0",
		"1.0rc1":         "1.0.0-rc.1",
		"1.0.0a2":        "1.0.0-a.2",
		"1.0b":           "1.0.0-b.0",
		"1.0.dev3":       "1.0.0-dev.3",
		"1.0.post2":      "1.0.0+post2",
		"1.2.3.4":        "1.2.3+r4",
		"1.0.post1.dev2": "1.0.0+post1.dev2",
		"1.0+ubuntu.1":   "1.0.0+local-ubuntu-1",
		"v2.0":           "2.0.0",
		"2.0.0-preview1": "2.0.0-rc.1",
		"2021.05":        "2021.5.0",
	}
	for in, want := range tests {
		v, err := index.ParseVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, v.String(), in)
	}

	for _, bad := range []string{"", "latest", "1.0-foo-bar"} {
		_, err := index.ParseVersion(bad)
		assert.Error(t, err, bad)
	}
}

func TestSpecifier_Check(t *testing.T) {
	t.Parallel()
	tests := []struct {
		spec    string
		version string
		want    bool
	}{
		{"", "1.0", true},
		{"*", "0.0.1", true},
		{"*", "2.0rc1", false},
		{"==2.3.2", "2.3.2", true},
		{"==2.3.2", "2.3.3", false},
		{"==2.3", "2.3.0", true},
		{"===1.0", "1.0", true},
		{"!=1.4.2", "1.4.2", false},
		{">=2.28,<3", "2.31.0", true},
		{">=2.28,<3", "3.0.0", false},
		{"~=1.4.5", "1.4.9", true},
		{"~=1.4.5", "1.5.0", false},
		{"~=2.2", "2.9", true},
		{"~=2.2", "3.0", false},
		{"~=0.2", "0.9", true},
		{"~=0.2", "1.0", false},
		{"==1.2.*", "1.2.7", true},
		{"==1.2.*", "1.3.0", false},
		{"!=1.2.*", "1.2.7", false},
		{"!=1.2.*", "1.1.0", true},
		{">=1.0rc1", "1.0rc2", true},
		{">=1.0rc1,<2", "1.5rc1", true},
		{"<2", "2.0rc1", false},
		{"1.0", "1.0", true},
		{"==1.0", "1.0.post1", false},
		{"==1.0.0", "1.0.0.1", false},
		{"==1.0", "1.0.0.0", true},
		{"==1.0", "1.0+local.7", true},
		{"==1.0.post1", "1.0.post1", true},
		{"!=1.0", "1.0.post1", true},
		{"<=1.0", "1.0.post1", false},
		{"<=1.0.0", "1.0.0.1", false},
		{">=1.0.post1", "1.0", false},
		{">=1.0.post1", "1.0.post2", true},
		{"<1.0.post1", "1.0", true},
		{">1.0", "1.0.post1", false},
		{">1.0", "1.0.0.1", true},
		{">1.0.post1", "1.0.post2", true},
		{">=1.0", "1.0.post1.dev1", false},
		{">=1.0.post1.dev1", "1.0.post1.dev1", true},
	}
	for _, tt := range tests {
		spec, err := index.ParseSpecifier(tt.spec)
		require.NoError(t, err, tt.spec)
		v, err := index.ParseVersion(tt.version)
		require.NoError(t, err, tt.version)
		assert.Equal(t, tt.want, spec.Check(v), "%s against %s", tt.version, tt.spec)
	}
}

func TestCompare_Ordering(t *testing.T) {
	t.Parallel()
	ordered := []string{"1.0rc1", "1.0", "1.0.post1.dev1", "1.0.post1", "1.0.post2", "1.0.0.1", "1.0.1"}
	for i := 0; i+1 < len(ordered); i++ {
		a, err := index.ParseVersion(ordered[i])
		require.NoError(t, err)
		b, err := index.ParseVersion(ordered[i+1])
		require.NoError(t, err)
		assert.Negative(t, index.Compare(a, b), "%s < %s", ordered[i], ordered[i+1])
		assert.Positive(t, index.Compare(b, a), "%s > %s", ordered[i+1], ordered[i])
	}

	a, err := index.ParseVersion("1.0")
	require.NoError(t, err)
	b, err := index.ParseVersion("1.0.0.0+local")
	require.NoError(t, err)
	assert.Zero(t, index.Compare(a, b))
}

func TestParseSpecifier_Invalid(t *testing.T) {
	t.Parallel()
	for _, bad := range []string{"~=1", ">=", "==abc"} {
		_, err := index.ParseSpecifier(bad)
		assert.Error(t, err, bad)
	}
}

func TestSpecifier_String(t *testing.T) {
	t.Parallel()
	spec, err := index.ParseSpecifier("")
	require.NoError(t, err)
	assert.Equal(t, "*", spec.String())
	assert.False(t, spec.AllowsPrereleases())

	spec, err = index.ParseSpecifier(">=1.0b1")
	require.NoError(t, err)
	assert.True(t, spec.AllowsPrereleases())
}
