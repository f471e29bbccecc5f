package lockfile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightconcept/pyrope-go/internal/core/lockfile"
	"github.com/nightconcept/pyrope-go/internal/core/pkgname"
)

func registry(name, version string) lockfile.Entry {
	return lockfile.Entry{Name: pkgname.Key(name), Origin: lockfile.RegistryOrigin{Version: version, Index: "pypi"}}
}

func TestBuilder_RegistryKeysAreLowerCased(t *testing.T) {
	t.Parallel()
	b := lockfile.NewBuilder(lockfile.Meta{}, nil)
	require.NoError(t, b.AddDirect(false, "Flask", registry("Flask", "3.0.0")))

	lf := b.Lockfile()
	_, ok := lf.Default["flask"]
	assert.True(t, ok)
	_, ok = lf.Get("FLASK", false)
	assert.True(t, ok)
}

func TestBuilder_DirectWinsOverTransitive(t *testing.T) {
	t.Parallel()
	b := lockfile.NewBuilder(lockfile.Meta{}, nil)

	_, added := b.AddTransitive(false, registry("werkzeug", "3.0.1"))
	require.True(t, added)
	require.NoError(t, b.AddDirect(false, "Werkzeug", registry("Werkzeug", "2.3.8")))

	got, _ := b.Get(false, "werkzeug")
	assert.Equal(t, lockfile.RegistryOrigin{Version: "2.3.8", Index: "pypi"}, got.Origin)
	assert.True(t, b.IsDirect(false, "werkzeug"))

	kept, added := b.AddTransitive(false, registry("werkzeug", "3.0.1"))
	assert.False(t, added)
	assert.Equal(t, got, kept)
}

func TestBuilder_NameCollision(t *testing.T) {
	t.Parallel()
	b := lockfile.NewBuilder(lockfile.Meta{}, nil)
	require.NoError(t, b.AddDirect(false, "django", lockfile.Entry{
		Name: "django-cms", Origin: lockfile.VCSOrigin{Location: "https://github.com/django-cms/django-cms.git", Commit: commit},
	}))

	err := b.AddDirect(false, "django-cms", registry("django-cms", "3.11.0"))
	require.ErrorIs(t, err, lockfile.ErrNameCollision)
	assert.Contains(t, err.Error(), "django")
}

func TestBuilder_SameOriginTwiceIsNotACollision(t *testing.T) {
	t.Parallel()
	b := lockfile.NewBuilder(lockfile.Meta{}, nil)
	require.NoError(t, b.AddDirect(false, "six", registry("six", "1.16.0")))
	require.NoError(t, b.AddDirect(false, "Six", registry("six", "1.16.0")))
	assert.Len(t, b.Lockfile().Default, 1)
}

func TestBuilder_SectionsAreIndependent(t *testing.T) {
	t.Parallel()
	b := lockfile.NewBuilder(lockfile.Meta{}, nil)
	require.NoError(t, b.AddDirect(false, "six", registry("six", "1.16.0")))
	require.NoError(t, b.AddDirect(true, "six", registry("six", "1.15.0")))
	assert.Len(t, b.Lockfile().Default, 1)
	assert.Len(t, b.Lockfile().Develop, 1)
}

func TestBuilder_MissingOrigin(t *testing.T) {
	t.Parallel()
	b := lockfile.NewBuilder(lockfile.Meta{}, nil)
	require.ErrorIs(t, b.AddDirect(false, "six", lockfile.Entry{Name: "six"}), lockfile.ErrInvalidEntry)
}
