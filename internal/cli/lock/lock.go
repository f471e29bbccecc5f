package lock

import (
	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/cli/workspace"
)

// NewLockCommand creates the "lock" command. It re-resolves every
// declaration; the Pipfile is left as is.
func NewLockCommand() *cli.Command {
	return &cli.Command{
		Name:  "lock",
		Usage: "Resolves all declared dependencies and writes the lock file",
		Action: func(c *cli.Context) error {
			ws, err := workspace.Open(c)
			if err != nil {
				return workspace.Fail(err)
			}
			if _, err := ws.Relock(c, false); err != nil {
				return workspace.Fail(err)
			}
			return nil
		},
	}
}
