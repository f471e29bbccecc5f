package self

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/cli/workspace"
)

// DefaultRepository is the GitHub project releases are fetched from.
const DefaultRepository = "nightconcept/pyrope-go"

// NewSelfCommand creates a new command for self-management.
func NewSelfCommand() *cli.Command {
	return &cli.Command{
		Name:  "self",
		Usage: "Manage the pyro CLI application itself",
		Subcommands: []*cli.Command{
			{
				Name:  "update",
				Usage: "Update pyro to the latest version",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Automatically confirm the update",
					},
					&cli.BoolFlag{
						Name:  "check",
						Usage: "Check for available updates without installing",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Specify a custom GitHub update source as 'owner/repo' (e.g., '" + DefaultRepository + "')",
					},
				},
				Action: updateAction,
			},
		},
	}
}

// currentVersion parses the app version, with or without a leading v.
func currentVersion(raw string) (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimPrefix(raw, "v"))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("Error parsing current version '%s': %v. Ensure version is like vX.Y.Z or X.Y.Z.", raw, err), 1)
	}
	return v, nil
}

func repository(flag string) (string, error) {
	if flag == "" {
		return DefaultRepository, nil
	}
	owner, repo, ok := strings.Cut(flag, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", cli.Exit(fmt.Sprintf("Invalid --source format. Expected 'owner/repo', got: %s.", flag), 1)
	}
	return flag, nil
}

func updateAction(c *cli.Context) error {
	out := c.App.Writer
	log := workspace.Logger(c)

	current, err := currentVersion(c.App.Version)
	if err != nil {
		return err
	}
	repoSlug, err := repository(c.String("source"))
	if err != nil {
		return err
	}
	log.Debug("checking for updates", "current", current.String(), "repository", repoSlug)

	ghSource, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error creating GitHub source: %v", err), 1)
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{Source: ghSource})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to initialize updater: %v", err), 1)
	}

	latest, found, err := updater.DetectLatest(c.Context, selfupdate.ParseSlug(repoSlug))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error detecting latest version: %v", err), 1)
	}
	if !found || !latest.GreaterThan(current.String()) {
		_, _ = fmt.Fprintf(out, "Current version %s is already the latest.\n", c.App.Version)
		return nil
	}
	log.Debug("latest release", "version", latest.Version(), "url", latest.URL, "asset", latest.AssetURL)

	_, _ = fmt.Fprintf(out, "New version available: %s (current: %s)\n", latest.Version(), c.App.Version)
	if c.Bool("check") {
		return nil
	}

	if !c.Bool("yes") {
		_, _ = fmt.Fprint(out, "Do you want to update? (y/N): ")
		input, _ := bufio.NewReader(c.App.Reader).ReadString('\n')
		if strings.TrimSpace(strings.ToLower(input)) != "y" {
			_, _ = fmt.Fprintln(out, "Update cancelled.")
			return nil
		}
	}

	_, _ = fmt.Fprintf(out, "Updating to %s...\n", latest.Version())
	execPath, err := selfupdate.ExecutablePath()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Could not get executable path: %v", err), 1)
	}
	if err := updater.UpdateTo(c.Context, latest, execPath); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to update: %v", err), 1)
	}
	_, _ = fmt.Fprintf(out, "Successfully updated to version %s.\n", latest.Version())
	return nil
}
