// Package script builds and runs the commands of the Pipfile [scripts] table.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/google/shlex"
	"go.trai.ch/zerr"

	"github.com/nightconcept/pyrope-go/internal/core/envsubst"
)

// ErrScriptNotFound matches errors for commands missing from PATH.
var ErrScriptNotFound = zerr.New("command not found within PATH")

// NotFoundError reports a script whose command is not on PATH.
type NotFoundError struct {
	Command string
	Script  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("the command %s (from %s) could not be found within PATH", e.Command, e.Script)
}

// Is makes errors.Is(err, ErrScriptNotFound) hold.
func (e *NotFoundError) Is(target error) bool { return target == ErrScriptNotFound }

// Script is a command ready to run.
type Script struct {
	Name    string // the [scripts] key, or the command itself when undeclared
	Command string
	Args    []string
}

// Build looks name up in scripts and appends extra to the script's own
// arguments. Undeclared names run as bare commands.
func Build(scripts map[string]string, name string, extra []string) (Script, error) {
	line, ok := scripts[name]
	if !ok {
		return Script{Name: name, Command: name, Args: append([]string(nil), extra...)}, nil
	}
	parts, err := shlex.Split(line)
	if err != nil {
		return Script{}, zerr.With(zerr.Wrap(err, "failed to parse script"), "script", name)
	}
	if len(parts) == 0 {
		return Script{}, zerr.With(zerr.New("script is empty"), "script", name)
	}
	args := make([]string, 0, len(parts)-1+len(extra))
	args = append(args, parts[1:]...)
	args = append(args, extra...)
	return Script{Name: name, Command: parts[0], Args: args}, nil
}

// Runner executes scripts with the caller's standard streams.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Dir    string
	Env    envsubst.Lookup
	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)
	Logger   *slog.Logger
}

// Run starts s and waits for it. The child's exit status is returned; a
// non-nil error means the command never ran.
func (r *Runner) Run(ctx context.Context, s Script) (int, error) {
	lookup := r.Env
	if lookup == nil {
		lookup = envsubst.OSLookup
	}
	expand := func(v string) string {
		return os.Expand(v, func(k string) string {
			val, _ := lookup(k)
			return val
		})
	}

	command := expand(s.Command)
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(command)
	if err != nil {
		return 1, &NotFoundError{Command: command, Script: s.Name}
	}

	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		args[i] = expand(a)
	}
	if r.Logger != nil {
		r.Logger.Debug("running script", "script", s.Name, "command", path, "args", args)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = r.Dir
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	err = cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		// -1 means the child was killed by a signal.
		if code < 0 {
			code = 1
		}
		return code, nil
	}
	if err != nil {
		return 1, zerr.With(zerr.Wrap(err, "failed to start script"), "script", s.Name)
	}
	return 0, nil
}
