package list

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/cli/workspace"
	"github.com/nightconcept/pyrope-go/internal/core/lockfile"
	"github.com/nightconcept/pyrope-go/internal/core/pkgname"
	"github.com/nightconcept/pyrope-go/internal/core/project"
)

// dependencyDisplayInfo holds all information needed for displaying a dependency.
type dependencyDisplayInfo struct {
	Name     string
	Kind     string
	Declared string
	Locked   string
	Editable bool
	IsLocked bool
}

// ListCmd defines the structure for the 'list' command.
var ListCmd = &cli.Command{
	Name:    "list",
	Aliases: []string{"ls"},
	Usage:   "Displays declared dependencies and their lock status",
	Action: func(c *cli.Context) error {
		ws, err := workspace.Open(c)
		if err != nil {
			return workspace.Fail(err)
		}
		lf, err := lockfile.Load(ws.Root)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error loading %s: %v", lockfile.LockfileName, err), 1)
		}

		projectPathColor := color.New(color.FgHiBlack, color.Bold, color.Underline).SprintFunc()
		headerColor := color.New(color.FgCyan, color.Bold).SprintFunc()
		_, _ = fmt.Fprintln(c.App.Writer, projectPathColor(ws.Pipfile))

		if hash, err := lockfile.ManifestHash(ws.Project); err == nil && lf.Meta.PipfileHash != "" && hash != lf.Meta.PipfileHash {
			_, _ = fmt.Fprintln(c.App.Writer, color.YellowString("%s is out of date, run 'pyro lock'", lockfile.LockfileName))
		}

		for _, dev := range []bool{false, true} {
			section := project.SectionPackages
			if dev {
				section = project.SectionDevPackages
			}
			_, _ = fmt.Fprintln(c.App.Writer)
			_, _ = fmt.Fprintln(c.App.Writer, headerColor(section+":"))

			decls := ws.Project.Section(dev)
			if decls.Len() == 0 {
				_, _ = fmt.Fprintf(c.App.Writer, "No packages in [%s].\n", section)
				continue
			}
			var rows []dependencyDisplayInfo
			decls.Each(func(_ pkgname.Key, d project.Declaration) {
				rows = append(rows, describe(d, lf, dev))
			})
			if err := printRows(c.App.Writer, rows); err != nil {
				return workspace.Fail(err)
			}
		}
		return nil
	},
}

func describe(d project.Declaration, lf *lockfile.Lockfile, dev bool) dependencyDisplayInfo {
	info := dependencyDisplayInfo{Name: d.Name, Kind: d.Source.Kind(), Editable: d.Editable}
	switch s := d.Source.(type) {
	case project.VersionSpec:
		info.Declared = s.Constraint
	case project.VCSSpec:
		info.Declared = s.Location
		if s.Ref != "" {
			info.Declared += "@" + s.Ref
		}
	case project.URLSpec:
		info.Declared = s.URL
	case project.PathSpec:
		info.Declared = s.Path
	}
	if e, ok := lf.Get(d.Name, dev); ok {
		info.IsLocked = true
		info.Locked = e.Origin.Describe()
	}
	return info
}

func printRows(w io.Writer, rows []dependencyDisplayInfo) error {
	// Name (White), Locked (Green), missing lock (Red), Declared (DimGray)
	depNameColor := color.New(color.FgWhite).SprintFunc()
	lockedColor := color.New(color.FgGreen).SprintFunc()
	notLockedColor := color.New(color.FgRed).SprintFunc()
	declaredColor := color.New(color.FgHiBlack).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		locked := lockedColor(r.Locked)
		if !r.IsLocked {
			locked = notLockedColor("not locked")
		}
		kind := r.Kind
		if r.Editable {
			kind += ", editable"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t(%s)\n", depNameColor(r.Name), locked, declaredColor(r.Declared), kind)
	}
	return tw.Flush()
}
