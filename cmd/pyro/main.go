package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/cli/initcmd"
	"github.com/nightconcept/pyrope-go/internal/cli/install"
	"github.com/nightconcept/pyrope-go/internal/cli/list"
	"github.com/nightconcept/pyrope-go/internal/cli/lock"
	"github.com/nightconcept/pyrope-go/internal/cli/run"
	"github.com/nightconcept/pyrope-go/internal/cli/self"
	"github.com/nightconcept/pyrope-go/internal/cli/support"
	"github.com/nightconcept/pyrope-go/internal/cli/uninstall"
	"github.com/nightconcept/pyrope-go/internal/core/config"
)

// version is set at build time with -ldflags "-X main.version=v1.2.3".
var version = "v0.0.1"

func newApp() *cli.App {
	return &cli.App{
		Name:    "pyro",
		Usage:   "Pipfile dependency locking and script runner",
		Version: version,
		Flags:   config.GlobalFlags(),
		Action: func(c *cli.Context) error {
			_ = cli.ShowAppHelp(c)
			return nil
		},
		Commands: []*cli.Command{
			initcmd.GetInitCommand(),
			install.NewInstallCommand(),
			lock.NewLockCommand(),
			uninstall.NewUninstallCommand(),
			list.ListCmd,
			run.NewRunCommand(),
			support.NewSupportCommand(),
			self.NewSelfCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
