package run

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/cli/workspace"
	"github.com/nightconcept/pyrope-go/internal/core/script"
)

// NewRunCommand creates the "run" command. Arguments after the script name
// are passed through untouched.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:            "run",
		Usage:           "Runs a command or a script from the Pipfile [scripts] table",
		ArgsUsage:       "<script> [args...]",
		SkipFlagParsing: true,
		Action:          runAction,
	}
}

func runAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("Error: a script or command name is required.", 1)
	}
	ws, err := workspace.Open(c)
	if err != nil {
		return workspace.Fail(err)
	}

	s, err := script.Build(ws.Project.Scripts, c.Args().First(), c.Args().Tail())
	if err != nil {
		return workspace.Fail(err)
	}
	r := &script.Runner{
		Stdin:  c.App.Reader,
		Stdout: c.App.Writer,
		Stderr: c.App.ErrWriter,
		Logger: ws.Logger,
	}
	if wd, err := os.Getwd(); err == nil {
		r.Dir = wd
	}

	code, err := r.Run(c.Context, s)
	if errors.Is(err, script.ErrScriptNotFound) {
		return cli.Exit(fmt.Sprintf("Error: %v.", err), 1)
	}
	if err != nil {
		return workspace.Fail(err)
	}
	if code < 0 {
		code = 1
	}
	if code != 0 {
		return cli.Exit("", code)
	}
	return nil
}
