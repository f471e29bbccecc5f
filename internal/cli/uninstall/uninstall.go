package uninstall

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/cli/workspace"
)

// NewUninstallCommand creates the "uninstall" command.
func NewUninstallCommand() *cli.Command {
	return &cli.Command{
		Name:      "uninstall",
		Aliases:   []string{"rm"},
		Usage:     "Removes packages from the Pipfile and relocks",
		ArgsUsage: "<package> [package...]",
		Action:    uninstallAction,
	}
}

func uninstallAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("Error: at least one package name is required.", 1)
	}
	ws, err := workspace.Open(c)
	if err != nil {
		return workspace.Fail(err)
	}

	removed := 0
	for _, name := range c.Args().Slice() {
		if !ws.Project.RemoveDeclaration(name) {
			_, _ = fmt.Fprintf(c.App.ErrWriter, "No package %s to remove from Pipfile.\n", name)
			continue
		}
		removed++
		_, _ = fmt.Fprintf(c.App.Writer, "Removing %s from Pipfile...\n", name)
	}
	if removed == 0 {
		return cli.Exit("Error: none of the given packages are declared in the Pipfile.", 1)
	}

	if _, err := ws.Relock(c, true); err != nil {
		return workspace.Fail(err)
	}
	return nil
}
