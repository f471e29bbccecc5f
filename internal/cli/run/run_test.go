package run

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/cli/clitest"
	"github.com/nightconcept/pyrope-go/internal/core/config"
)

const pipfile = `[packages]

[scripts]
printfoo = "echo foo"
appendscript = "echo arg1"
notfoundscript = "randomthingtotally"
exitcode = "sh -c 'exit 4'"
`

func runScript(t *testing.T, dir string, args ...string) clitest.Result {
	t.Helper()
	full := append([]string{"--pipfile", filepath.Join(dir, config.PipfileName), "run"}, args...)
	return clitest.Run(t, "", []*cli.Command{NewRunCommand()}, full...)
}

func TestRun_Scripts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("scripts use POSIX tools")
	}
	dir := clitest.Project(t, pipfile)

	res := runScript(t, dir, "printfoo")
	require.NoError(t, res.Err, res.Stderr)
	assert.Equal(t, "foo\n", res.Stdout)

	res = runScript(t, dir, "appendscript", "a", "--flag", "b")
	require.NoError(t, res.Err, res.Stderr)
	assert.Equal(t, "arg1 a --flag b\n", res.Stdout)

	res = runScript(t, dir, "echo", "bare")
	require.NoError(t, res.Err, res.Stderr)
	assert.Equal(t, "bare\n", res.Stdout)
}

func TestRun_NotFound(t *testing.T) {
	dir := clitest.Project(t, pipfile)
	res := runScript(t, dir, "notfoundscript")
	require.Error(t, res.Err)
	assert.Empty(t, res.Stdout)

	var exit cli.ExitCoder
	require.ErrorAs(t, res.Err, &exit)
	assert.Equal(t, 1, exit.ExitCode())
	assert.Contains(t, res.Err.Error(), "Error")
	assert.Contains(t, res.Err.Error(), "randomthingtotally (from notfoundscript)")
}

func TestRun_PropagatesExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("scripts use POSIX tools")
	}
	dir := clitest.Project(t, pipfile)
	res := runScript(t, dir, "exitcode")

	var exit cli.ExitCoder
	require.ErrorAs(t, res.Err, &exit)
	assert.Equal(t, 4, exit.ExitCode())
}
