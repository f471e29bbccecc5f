// Package workspace holds what every command needs: the located Pipfile,
// its parsed project, the global settings and a logger.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/core/config"
	"github.com/nightconcept/pyrope-go/internal/core/locker"
	"github.com/nightconcept/pyrope-go/internal/core/lockfile"
	"github.com/nightconcept/pyrope-go/internal/core/logger"
	"github.com/nightconcept/pyrope-go/internal/core/project"
)

// NewLocker builds the locker used by install, lock and uninstall.
// Tests replace it to avoid network access.
var NewLocker = locker.New

// Workspace is an opened project.
type Workspace struct {
	Root     string
	Pipfile  string
	Project  *project.Project
	Settings config.Settings
	Logger   *slog.Logger

	locker *locker.Locker
}

// Open locates and loads the Pipfile for the command in c.
func Open(c *cli.Context) (*Workspace, error) {
	settings := config.SettingsFrom(c)
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, pipfile, err := settings.Locate(cwd)
	if err != nil {
		return nil, err
	}
	p, err := config.LoadPipfileAt(pipfile)
	if err != nil {
		return nil, err
	}
	return &Workspace{
		Root:     root,
		Pipfile:  pipfile,
		Project:  p,
		Settings: settings,
		Logger:   Logger(c),
	}, nil
}

// Logger returns the stderr logger for c, honouring --verbose.
func Logger(c *cli.Context) *slog.Logger {
	return logger.New(c.App.ErrWriter, config.SettingsFrom(c).Verbose)
}

// Locker returns the locker bound to the workspace project.
func (w *Workspace) Locker() *locker.Locker {
	if w.locker == nil {
		w.locker = NewLocker(w.Settings.LockerOptions(w.Logger), w.Project, w.Root)
	}
	return w.locker
}

// Relock resolves the project and writes the lock document, then the Pipfile
// when writePipfile is set. Nothing is written if resolution fails, and the
// previous lock is put back if the Pipfile cannot be written.
func (w *Workspace) Relock(c *cli.Context, writePipfile bool) (*lockfile.Lockfile, error) {
	_, _ = fmt.Fprintln(c.App.Writer, "Locking [packages] and [dev-packages] dependencies...")
	lf, err := w.Locker().Lock(c.Context, w.Project)
	if err != nil {
		return nil, err
	}

	lockPath := filepath.Join(w.Root, lockfile.LockfileName)
	previous, readErr := os.ReadFile(lockPath)
	if err := lockfile.Save(w.Root, lf); err != nil {
		return nil, err
	}
	if writePipfile {
		if err := config.WritePipfileAt(w.Pipfile, w.Project); err != nil {
			w.restoreLock(lockPath, previous, readErr)
			return nil, err
		}
	}
	_, _ = fmt.Fprintf(c.App.Writer, "Updated %s (%s)!\n", lockfile.LockfileName, shortHash(lf.Meta.PipfileHash))
	return lf, nil
}

func (w *Workspace) restoreLock(path string, previous []byte, readErr error) {
	var err error
	switch {
	case readErr == nil:
		err = lockfile.WriteAtomic(path, previous)
	case errors.Is(readErr, os.ErrNotExist):
		err = os.Remove(path)
	default:
		return
	}
	if err != nil && w.Logger != nil {
		w.Logger.Warn("could not restore the previous lock", "path", path, "error", err)
	}
}

func shortHash(h string) string {
	const prefix = len("sha256:")
	if len(h) > prefix+6 {
		return h[prefix : prefix+6]
	}
	return h
}

// Fail converts err into the exit error printed by the app.
func Fail(err error) error {
	if errors.Is(err, config.ErrManifestNotFound) {
		return cli.Exit(fmt.Sprintf("Error: %v. Run 'pyro init' to create one.", err), 1)
	}
	return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
}
