// Package initcmd implements the interactive "init" command.
package initcmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/cli/workspace"
	"github.com/nightconcept/pyrope-go/internal/core/config"
	"github.com/nightconcept/pyrope-go/internal/core/project"
)

// promptWithDefault asks for a value; empty input or end of input yields defaultValue.
func promptWithDefault(w io.Writer, reader *bufio.Reader, promptText, defaultValue string) (string, error) {
	if defaultValue != "" {
		_, _ = fmt.Fprintf(w, "%s (default: %s): ", promptText, defaultValue)
	} else {
		_, _ = fmt.Fprintf(w, "%s: ", promptText)
	}

	input, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input for '%s': %w", promptText, err)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}

// GetInitCommand returns the definition for the "init" command.
func GetInitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Creates a Pipfile with the default package index",
		Action: func(c *cli.Context) error {
			target := config.SettingsFrom(c).Pipfile
			if target == "" {
				wd, err := os.Getwd()
				if err != nil {
					return workspace.Fail(err)
				}
				target = filepath.Join(wd, config.PipfileName)
			}
			if _, err := os.Stat(target); err == nil {
				return cli.Exit(fmt.Sprintf("Error: %s already exists.", target), 1)
			}

			out := c.App.Writer
			reader := bufio.NewReader(c.App.Reader)
			_, _ = fmt.Fprintln(out, "Creating a Pipfile...")

			p := project.NewProject()
			indexURL, err := promptWithDefault(out, reader, "Package index URL", project.DefaultIndexURL)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			p.Sources[0].URL = indexURL

			if p.Requires.PythonVersion, err = promptWithDefault(out, reader, "Python version (optional)", ""); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			_, _ = fmt.Fprintln(out, "\nEnter scripts (leave script name empty to finish):")
			for {
				name, err := promptWithDefault(out, reader, "Script name", "")
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				if name == "" {
					break
				}
				cmd, err := promptWithDefault(out, reader, fmt.Sprintf("Command for script '%s'", name), "")
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				p.Scripts[name] = cmd
			}

			_, _ = fmt.Fprintln(out, "\nEnter packages (leave package name empty to finish):")
			for {
				name, err := promptWithDefault(out, reader, "Package name", "")
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				if name == "" {
					break
				}
				constraint, err := promptWithDefault(out, reader, fmt.Sprintf("Version constraint for '%s'", name), "*")
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				decl, err := project.ParseDeclaration(name, constraint)
				if err == nil {
					err = p.AddDeclaration(decl, false)
				}
				if err != nil {
					return workspace.Fail(err)
				}
			}

			if err := config.WritePipfileAt(target, p); err != nil {
				return workspace.Fail(err)
			}
			_, _ = fmt.Fprintf(out, "\nWrote %s\n", target)
			return nil
		},
	}
}
