package vcs_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nightconcept/pyrope-go/internal/core/vcs"
	"github.com/nightconcept/pyrope-go/internal/core/vcs/mocks"
)

func TestRouter_RoutesByHost(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	git := mocks.NewMockBackend(ctrl)
	hub := mocks.NewMockBackend(ctrl)

	r := &vcs.Router{Git: git, GitHub: hub, IsGitHub: vcs.NewGitHubResolver("", nil).Handles}

	hub.EXPECT().ResolveRef(gomock.Any(), "https://github.com/o/r.git", "main").Return(commitA, nil)
	git.EXPECT().ResolveRef(gomock.Any(), "https://gitlab.com/o/r.git", "main").Return(commitB, nil)
	git.EXPECT().FetchFile(gomock.Any(), "/srv/r", commitC, "pyproject.toml").Return([]byte("x"), nil)

	got, err := r.ResolveRef(context.Background(), "https://github.com/o/r.git", "main")
	require.NoError(t, err)
	assert.Equal(t, commitA, got)

	got, err = r.ResolveRef(context.Background(), "https://gitlab.com/o/r.git", "main")
	require.NoError(t, err)
	assert.Equal(t, commitB, got)

	data, err := r.FetchFile(context.Background(), "/srv/r", commitC, "pyproject.toml")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestRouter_FallsBackToGitWhenAPICannotSeeRepo(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	git := mocks.NewMockBackend(ctrl)
	hub := mocks.NewMockBackend(ctrl)
	r := &vcs.Router{Git: git, GitHub: hub, IsGitHub: vcs.NewGitHubResolver("", nil).Handles}

	const private = "git@github.com:org/private.git"
	hub.EXPECT().ResolveRef(gomock.Any(), private, "v1.0").Return("", vcs.ErrRefNotFound)
	git.EXPECT().ResolveRef(gomock.Any(), private, "v1.0").Return(commitB, nil)

	got, err := r.ResolveRef(context.Background(), private, "v1.0")
	require.NoError(t, err)
	assert.Equal(t, commitB, got)

	const offline = "https://github.com/org/repo.git"
	hub.EXPECT().ResolveRef(gomock.Any(), offline, "main").Return("", vcs.ErrUnreachableRemote)
	git.EXPECT().ResolveRef(gomock.Any(), offline, "main").Return("", vcs.ErrRefNotFound)

	_, err = r.ResolveRef(context.Background(), offline, "main")
	require.ErrorIs(t, err, vcs.ErrRefNotFound, "git's answer is final")
}

func TestRouter_OtherGitHubErrorsAreFinal(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	git := mocks.NewMockBackend(ctrl)
	hub := mocks.NewMockBackend(ctrl)
	r := &vcs.Router{Git: git, GitHub: hub, IsGitHub: vcs.NewGitHubResolver("", nil).Handles}

	hub.EXPECT().ResolveRef(gomock.Any(), "https://github.com/o/r.git", "main").Return("", context.Canceled)

	_, err := r.ResolveRef(context.Background(), "https://github.com/o/r.git", "main")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRouter_WithoutGitHubUsesGit(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	git := mocks.NewMockBackend(ctrl)
	r := vcs.NewRouter(git, nil)

	git.EXPECT().ResolveRef(gomock.Any(), "https://github.com/o/r.git", "v1").Return(commitA, nil)
	got, err := r.ResolveRef(context.Background(), "https://github.com/o/r.git", "v1")
	require.NoError(t, err)
	assert.Equal(t, commitA, got)
}

// blockingBackend counts calls and blocks them until release is closed.
type blockingBackend struct {
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingBackend) ResolveRef(_ context.Context, _, _ string) (string, error) {
	b.calls.Add(1)
	<-b.release
	return commitA, nil
}

func (b *blockingBackend) FetchFile(context.Context, string, string, string) ([]byte, error) {
	return nil, vcs.ErrFileNotFound
}

func TestRouter_DeduplicatesConcurrentLookups(t *testing.T) {
	t.Parallel()
	backend := &blockingBackend{release: make(chan struct{})}
	r := vcs.NewRouter(backend, nil)

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = r.ResolveRef(context.Background(), "https://example.com/r.git", "main")
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.Equal(t, int32(1), backend.calls.Load())
	for _, got := range results {
		assert.Equal(t, commitA, got)
	}
}
