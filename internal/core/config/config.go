// Package config locates, loads and writes the Pipfile and collects the
// settings shared by all commands.
package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/urfave/cli/v2"
	"go.trai.ch/zerr"

	"github.com/nightconcept/pyrope-go/internal/core/locker"
	"github.com/nightconcept/pyrope-go/internal/core/lockfile"
	"github.com/nightconcept/pyrope-go/internal/core/project"
)

// PipfileName is the manifest file name.
const PipfileName = "Pipfile"

// ErrManifestNotFound is returned when no Pipfile exists in the directory or any parent.
var ErrManifestNotFound = zerr.New("no Pipfile found")

// LoadPipfile reads the Pipfile in dirPath.
func LoadPipfile(dirPath string) (*project.Project, error) {
	return LoadPipfileAt(filepath.Join(dirPath, PipfileName))
}

// LoadPipfileAt reads the manifest at an explicit path.
func LoadPipfileAt(path string) (*project.Project, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, zerr.With(zerr.Wrap(ErrManifestNotFound, path), "path", path)
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read Pipfile"), "path", path)
	}
	p, err := project.Decode(data)
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return p, nil
}

// WritePipfile encodes p and replaces the Pipfile in dirPath.
func WritePipfile(dirPath string, p *project.Project) error {
	return WritePipfileAt(filepath.Join(dirPath, PipfileName), p)
}

// WritePipfileAt encodes p and replaces the manifest at path.
func WritePipfileAt(path string, p *project.Project) error {
	data, err := project.Encode(p)
	if err != nil {
		return err
	}
	return lockfile.WriteAtomic(path, data)
}

// FindRoot walks up from start to the first directory holding a Pipfile.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", zerr.Wrap(err, "failed to resolve working directory")
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, PipfileName)); err == nil && !info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", zerr.With(zerr.Wrap(ErrManifestNotFound, "searched "+start+" and its parents"), "start", start)
		}
		dir = parent
	}
}

// Settings are the global options of a command invocation.
type Settings struct {
	Verbose     bool
	MaxWorkers  int
	Pipfile     string // explicit manifest path, empty to search
	NoGitHubAPI bool
	GitHubToken string
}

// Flag names shared by the app and SettingsFrom.
const (
	FlagVerbose     = "verbose"
	FlagMaxWorkers  = "max-workers"
	FlagPipfile     = "pipfile"
	FlagNoGitHubAPI = "no-github-api"
	FlagGitHubToken = "github-token"
)

// GlobalFlags returns the app-level flags. Each also reads a PYRO_* variable.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    FlagVerbose,
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
			EnvVars: []string{"PYRO_VERBOSE"},
		},
		&cli.IntFlag{
			Name:    FlagMaxWorkers,
			Usage:   "Maximum number of concurrent resolutions",
			Value:   runtime.NumCPU(),
			EnvVars: []string{"PYRO_MAX_WORKERS"},
		},
		&cli.StringFlag{
			Name:    FlagPipfile,
			Usage:   "Path to the Pipfile (default: search upwards from the working directory)",
			EnvVars: []string{"PYRO_PIPFILE"},
		},
		&cli.BoolFlag{
			Name:    FlagNoGitHubAPI,
			Usage:   "Resolve github.com refs with git instead of the GitHub API",
			EnvVars: []string{"PYRO_NO_GITHUB_API"},
		},
		&cli.StringFlag{
			Name:    FlagGitHubToken,
			Usage:   "Token for GitHub API requests",
			EnvVars: []string{"PYRO_GITHUB_TOKEN", "GITHUB_TOKEN"},
		},
	}
}

// SettingsFrom reads the global flags from any command context.
func SettingsFrom(c *cli.Context) Settings {
	return Settings{
		Verbose:     c.Bool(FlagVerbose),
		MaxWorkers:  c.Int(FlagMaxWorkers),
		Pipfile:     c.String(FlagPipfile),
		NoGitHubAPI: c.Bool(FlagNoGitHubAPI),
		GitHubToken: c.String(FlagGitHubToken),
	}
}

// Locate returns the project root and manifest path for s, searching from
// cwd when no explicit Pipfile was given.
func (s Settings) Locate(cwd string) (root, pipfile string, err error) {
	if s.Pipfile != "" {
		abs, err := filepath.Abs(s.Pipfile)
		if err != nil {
			return "", "", zerr.Wrap(err, "failed to resolve Pipfile path")
		}
		return filepath.Dir(abs), abs, nil
	}
	root, err = FindRoot(cwd)
	if err != nil {
		return "", "", err
	}
	return root, filepath.Join(root, PipfileName), nil
}

// LockerOptions maps the settings onto a locker configuration.
func (s Settings) LockerOptions(log *slog.Logger) locker.Options {
	return locker.Options{
		MaxWorkers:  s.MaxWorkers,
		GitHubToken: s.GitHubToken,
		NoGitHubAPI: s.NoGitHubAPI,
		VerifySSL:   true,
		Logger:      log,
	}
}
