package locker_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nightconcept/pyrope-go/internal/core/index"
	"github.com/nightconcept/pyrope-go/internal/core/locker"
	"github.com/nightconcept/pyrope-go/internal/core/lockfile"
	"github.com/nightconcept/pyrope-go/internal/core/pkgname"
	"github.com/nightconcept/pyrope-go/internal/core/project"
	"github.com/nightconcept/pyrope-go/internal/core/source"
	"github.com/nightconcept/pyrope-go/internal/core/vcs"
	"github.com/nightconcept/pyrope-go/internal/core/vcs/mocks"
)

type fakeResolver struct {
	mu     sync.Mutex
	byName map[string]*source.Resolution
	fail   map[string]error
	calls  []string
}

func (f *fakeResolver) Resolve(_ context.Context, decl project.Declaration) (*source.Resolution, error) {
	f.mu.Lock()
	f.calls = append(f.calls, decl.Name)
	f.mu.Unlock()

	key := pkgname.Normalize(decl.Name)
	if err, ok := f.fail[key]; ok {
		return nil, err
	}
	res, ok := f.byName[key]
	if !ok {
		return nil, index.ErrPackageNotFound
	}
	return res, nil
}

func release(name, version string, requires ...string) *source.Resolution {
	return &source.Resolution{
		Name:     name,
		Origin:   lockfile.RegistryOrigin{Version: version, Index: "pypi"},
		Hashes:   []string{"sha256:" + name + version},
		Requires: requires,
	}
}

func flaskWorld() *fakeResolver {
	return &fakeResolver{byName: map[string]*source.Resolution{
		"flask": release("Flask", "3.0.0",
			"Werkzeug>=3.0.0",
			"click>=8.1.3",
			`asgiref>=3.2; extra == "async"`,
			`colorama; platform_system == "Windows"`,
		),
		"werkzeug":   release("Werkzeug", "3.0.1", "MarkupSafe>=2.1.1"),
		"markupsafe": release("MarkupSafe", "2.1.3"),
		"click":      release("click", "8.1.7", `colorama; platform_system == "Windows"`),
		"colorama":   release("colorama", "0.4.6"),
		"asgiref":    release("asgiref", "3.7.2"),
		"pytest":     release("pytest", "7.4.0", "iniconfig"),
		"iniconfig":  release("iniconfig", "2.0.0"),
	}}
}

func newProject(t *testing.T, dev []string, decls ...project.Declaration) *project.Project {
	t.Helper()
	p := project.NewProject()
	for _, d := range decls {
		require.NoError(t, p.AddDeclaration(d, false))
	}
	for _, name := range dev {
		require.NoError(t, p.AddDeclaration(project.Declaration{Name: name, Source: project.VersionSpec{Constraint: "*"}}, true))
	}
	return p
}

func registryDecl(name, constraint string, extras ...string) project.Declaration {
	return project.Declaration{Name: name, Source: project.VersionSpec{Constraint: constraint}, Extras: extras}
}

func TestLock_TransitiveClosure(t *testing.T) {
	t.Parallel()
	l := &locker.Locker{Resolver: flaskWorld(), MaxWorkers: 2}
	p := newProject(t, []string{"pytest"}, registryDecl("Flask", ">=3"))

	lf, err := l.Lock(context.Background(), p)
	require.NoError(t, err)

	assert.ElementsMatch(t, []pkgname.Key{"flask", "werkzeug", "markupsafe", "click", "colorama"}, lf.Keys(false))
	assert.ElementsMatch(t, []pkgname.Key{"pytest", "iniconfig"}, lf.Keys(true))

	colorama, ok := lf.Get("colorama", false)
	require.True(t, ok)
	assert.Equal(t, `platform_system == "Windows"`, colorama.Markers)

	assert.NotEmpty(t, lf.Meta.PipfileHash)
	assert.Equal(t, p.Sources, lf.Meta.Sources)
}

func TestLock_ExtrasEnableRequirements(t *testing.T) {
	t.Parallel()
	l := &locker.Locker{Resolver: flaskWorld()}
	p := newProject(t, nil, registryDecl("flask", "*", "async"))

	lf, err := l.Lock(context.Background(), p)
	require.NoError(t, err)
	e, ok := lf.Get("asgiref", false)
	require.True(t, ok)
	assert.Empty(t, e.Markers, "extra clauses are not carried")
}

func TestLock_DirectWinsAndConflictIsLogged(t *testing.T) {
	t.Parallel()
	res := flaskWorld()
	res.byName["click"] = release("click", "7.0")

	var logs bytes.Buffer
	l := &locker.Locker{Resolver: res, Logger: slog.New(slog.NewTextHandler(&logs, nil))}
	p := newProject(t, nil, registryDecl("flask", "*"), registryDecl("click", "==7.0"))

	lf, err := l.Lock(context.Background(), p)
	require.NoError(t, err)

	click, _ := lf.Get("click", false)
	assert.Equal(t, lockfile.RegistryOrigin{Version: "7.0", Index: "pypi"}, click.Origin)
	assert.Contains(t, logs.String(), "keeping the first pick")
	assert.Contains(t, logs.String(), ">=8.1.3")
}

func TestLock_BackToBackIdentical(t *testing.T) {
	t.Parallel()
	p := newProject(t, []string{"pytest"}, registryDecl("Flask", ">=3"), registryDecl("click", "*"))

	var docs [][]byte
	for range 2 {
		l := &locker.Locker{Resolver: flaskWorld(), MaxWorkers: 4}
		lf, err := l.Lock(context.Background(), p)
		require.NoError(t, err)
		data, err := lockfile.Encode(lf)
		require.NoError(t, err)
		docs = append(docs, data)
	}
	assert.Equal(t, string(docs[0]), string(docs[1]))
}

func TestLock_ChangedRefReResolves(t *testing.T) {
	t.Parallel()
	const (
		location = "https://github.com/psf/requests.git"
		commit19 = "1111111111111111111111111111111111111111"
		commit11 = "2222222222222222222222222222222222222222"
	)
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	backend.EXPECT().ResolveRef(gomock.Any(), location, "1.9.0").Return(commit19, nil)
	backend.EXPECT().ResolveRef(gomock.Any(), location, "1.11.0").Return(commit11, nil)
	backend.EXPECT().FetchFile(gomock.Any(), location, gomock.Any(), "pyproject.toml").
		Return(nil, vcs.ErrFileNotFound).Times(2)

	p := project.NewProject()
	l := &locker.Locker{Resolver: &source.Resolver{Sources: p.Sources, VCS: backend}}
	pin := func(ref string) lockfile.Entry {
		t.Helper()
		require.NoError(t, p.AddDeclaration(project.Declaration{
			Name:     "requests",
			Source:   project.VCSSpec{VCS: "git", Location: location, Ref: ref},
			Editable: true,
		}, false))
		lf, err := l.Lock(context.Background(), p)
		require.NoError(t, err)
		e, ok := lf.Get("requests", false)
		require.True(t, ok)
		return e
	}

	first := pin("1.9.0")
	second := pin("1.11.0")

	assert.Equal(t, lockfile.VCSOrigin{Location: location, Commit: commit19}, first.Origin)
	assert.Equal(t, lockfile.VCSOrigin{Location: location, Commit: commit11}, second.Origin)
	assert.True(t, first.Editable)
	assert.True(t, second.Editable)
}

func TestLock_FailureStopsLock(t *testing.T) {
	t.Parallel()
	res := flaskWorld()
	res.fail = map[string]error{"markupsafe": vcs.ErrUnreachableRemote}
	l := &locker.Locker{Resolver: res}

	_, err := l.Lock(context.Background(), newProject(t, nil, registryDecl("flask", "*")))
	require.ErrorIs(t, err, vcs.ErrUnreachableRemote)
	assert.Contains(t, err.Error(), "Werkzeug")
}

func TestLock_NameCollision(t *testing.T) {
	t.Parallel()
	res := &fakeResolver{byName: map[string]*source.Resolution{
		"demo":     {Name: "demo", Origin: lockfile.URLOrigin{URL: "https://a.example.com/demo-1.0.tar.gz"}},
		"demo-alt": {Name: "demo", Origin: lockfile.URLOrigin{URL: "https://b.example.com/demo-1.0.tar.gz"}},
	}}
	l := &locker.Locker{Resolver: res}
	p := newProject(t, nil,
		project.Declaration{Name: "demo", Source: project.URLSpec{URL: "https://a.example.com/demo-1.0.tar.gz"}},
		project.Declaration{Name: "demo-alt", Source: project.URLSpec{URL: "https://b.example.com/demo-1.0.tar.gz"}},
	)

	_, err := l.Lock(context.Background(), p)
	require.ErrorIs(t, err, lockfile.ErrNameCollision)
}

func TestUpdate_WritesAtomically(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	p := newProject(t, nil, registryDecl("click", "*"))

	l := &locker.Locker{Resolver: flaskWorld()}
	_, err := l.Update(context.Background(), root, p)
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(root, lockfile.LockfileName))
	require.NoError(t, err)

	require.NoError(t, p.AddDeclaration(registryDecl("ghost", "*"), false))
	_, err = l.Update(context.Background(), root, p)
	require.ErrorIs(t, err, index.ErrPackageNotFound)

	after, err := os.ReadFile(filepath.Join(root, lockfile.LockfileName))
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed lock leaves the previous document untouched")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNew_WiresResolver(t *testing.T) {
	t.Parallel()
	p := project.NewProject()
	l := locker.New(locker.Options{MaxWorkers: 3, NoGitHubAPI: true}, p, "/tmp/proj")

	r, ok := l.Resolver.(*source.Resolver)
	require.True(t, ok)
	assert.Equal(t, p.Sources, r.Sources)
	assert.Equal(t, "/tmp/proj", r.BaseDir)
	assert.Equal(t, 3, l.MaxWorkers)

	router, ok := r.VCS.(*vcs.Router)
	require.True(t, ok)
	assert.Nil(t, router.GitHub)
}
