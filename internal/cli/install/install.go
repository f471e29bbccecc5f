package install

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/cli/workspace"
	"github.com/nightconcept/pyrope-go/internal/core/project"
	"github.com/nightconcept/pyrope-go/internal/core/source"
)

// NewInstallCommand creates a new cli.Command for the "install" command.
func NewInstallCommand() *cli.Command {
	return &cli.Command{
		Name:      "install",
		Usage:     "Adds requirements to the Pipfile and locks all dependencies",
		ArgsUsage: "[requirement...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "editable",
				Aliases: []string{"e"},
				Usage:   "Install VCS or local path requirements in editable mode",
			},
			&cli.BoolFlag{
				Name:    "dev",
				Aliases: []string{"d"},
				Usage:   "Add requirements to [dev-packages]",
			},
			&cli.StringFlag{
				Name:  "index",
				Usage: "Pin registry requirements to the named [[source]]",
			},
		},
		Action: installAction,
	}
}

func installAction(c *cli.Context) error {
	ws, err := workspace.Open(c)
	if err != nil {
		return workspace.Fail(err)
	}

	dev := c.Bool("dev")
	section := project.SectionPackages
	if dev {
		section = project.SectionDevPackages
	}

	for _, line := range c.Args().Slice() {
		decl, err := project.ParseRequirement(line, c.Bool("editable"))
		if err != nil {
			return workspace.Fail(err)
		}
		if idx := c.String("index"); idx != "" {
			decl.Index = idx
		}
		// Names guessed from URLs and paths give way to the distribution's own name.
		if source.Classify(decl) != source.KindRegistry {
			res, err := ws.Locker().Resolver.Resolve(c.Context, decl)
			if err != nil {
				return workspace.Fail(err)
			}
			decl.Name = res.Name
		}
		_, _ = fmt.Fprintf(c.App.Writer, "Adding %s to Pipfile's [%s]...\n", decl.Name, section)
		if err := ws.Project.AddDeclaration(decl, dev); err != nil {
			return workspace.Fail(err)
		}
	}

	if _, err := ws.Relock(c, c.NArg() > 0); err != nil {
		return workspace.Fail(err)
	}
	return nil
}
