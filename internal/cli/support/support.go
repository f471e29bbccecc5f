package support

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/cli/workspace"
	"github.com/nightconcept/pyrope-go/internal/core/config"
	coresupport "github.com/nightconcept/pyrope-go/internal/core/support"
)

// NewSupportCommand creates the "support" command, which prints a
// diagnostic block to paste into bug reports.
func NewSupportCommand() *cli.Command {
	return &cli.Command{
		Name:  "support",
		Usage: "Prints diagnostic information for bug reports",
		Action: func(c *cli.Context) error {
			collector := &coresupport.Collector{Version: c.App.Version}
			// The Pipfile is shown even when it does not parse; a missing one
			// only drops the project files from the report.
			if cwd, err := os.Getwd(); err == nil {
				if _, pipfile, err := config.SettingsFrom(c).Locate(cwd); err == nil {
					collector.Pipfile = pipfile
				}
			}
			if err := coresupport.Write(c.App.Writer, collector.Collect(c.Context)); err != nil {
				return workspace.Fail(err)
			}
			return nil
		},
	}
}
