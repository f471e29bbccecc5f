package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Env is appended to the inherited environment.
	Env []string
}

// Run executes name with args in dir. Failures include the command's stderr.
func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			return stdout.Bytes(), &CommandError{Command: name + " " + strings.Join(args, " "), ExitCode: exitErr.ExitCode(), Stderr: msg}
		}
		return nil, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// CommandError is returned when a command exits non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited with status %d: %s", e.Command, e.ExitCode, e.Stderr)
}
