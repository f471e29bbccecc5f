// Package clitest runs commands in-process for tests.
package clitest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/core/config"
)

// Result is the outcome of one app run.
type Result struct {
	Stdout string
	Stderr string
	Err    error
}

// Run executes args (without the program name) against an app holding cmds.
// stdin feeds prompts.
func Run(t *testing.T, stdin string, cmds []*cli.Command, args ...string) Result {
	t.Helper()
	color.NoColor = true

	var stdout, stderr bytes.Buffer
	app := &cli.App{
		Name:      "pyro",
		Version:   "v0.1.0",
		Flags:     config.GlobalFlags(),
		Commands:  cmds,
		Reader:    strings.NewReader(stdin),
		Writer:    &stdout,
		ErrWriter: &stderr,
		// Keep urfave/cli from calling os.Exit.
		ExitErrHandler: func(*cli.Context, error) {},
	}
	err := app.RunContext(context.Background(), append([]string{"pyro"}, args...))
	return Result{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}

// Project writes a Pipfile into a fresh directory and returns the directory.
func Project(t *testing.T, pipfile string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.PipfileName), []byte(pipfile), 0o644))
	return dir
}

// Read returns the content of a file below dir.
func Read(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

// IndexServer serves PyPI JSON documents keyed by normalized project name.
// Point a [[source]] at URL + "/simple".
func IndexServer(t *testing.T, docs map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/pypi/"), "/json")
		doc, ok := docs[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, doc)
	}))
	t.Cleanup(server.Close)
	return server
}

// Release renders a minimal index document with one release per version.
func Release(name string, requires []string, versions ...string) string {
	var b strings.Builder
	b.WriteString(`{"info": {"name": "` + name + `", "version": "` + versions[len(versions)-1] + `", "requires_dist": [`)
	for i, r := range requires {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(`"` + strings.ReplaceAll(r, `"`, `\"`) + `"`)
	}
	b.WriteString(`]}, "releases": {`)
	for i, v := range versions {
		if i > 0 {
			b.WriteString(", ")
		}
		digest := strings.Repeat(string("abcdef"[i%6]), 64)
		b.WriteString(`"` + v + `": [{"filename": "` + name + `-` + v + `.tar.gz", "digests": {"sha256": "` + digest + `"}, "yanked": false}]`)
	}
	b.WriteString(`}}`)
	return b.String()
}
