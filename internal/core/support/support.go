// Package support collects the diagnostic report printed by `pyro support`.
package support

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/nightconcept/pyrope-go/internal/core/lockfile"
)

// Python is an interpreter found on PATH.
type Python struct {
	Version string
	Path    string
}

// File is a project document included in the report.
type File struct {
	Path    string
	Content string
}

// Report is everything the support dump shows.
type Report struct {
	Version    string
	Executable string
	Pythons    []Python
	Platform   map[string]string
	EnvNames   []string
	PyroVars   [][2]string
	DebugVars  [][2]string
	Pipfile    *File
	Lockfile   *File
}

var debugVars = []string{"PATH", "SHELL", "EDITOR", "LANG", "PWD", "VIRTUAL_ENV"}

var pythonNames = []string{
	"python", "python3", "python2", "py",
	"python3.8", "python3.9", "python3.10", "python3.11", "python3.12", "python3.13",
}

// Collector gathers a Report. Zero values use the process environment.
type Collector struct {
	Version string
	// Pipfile is the manifest path; empty skips the project files.
	Pipfile string
	Environ func() []string
	// PythonVersion reports the version of an interpreter; defaults to running it.
	PythonVersion func(ctx context.Context, path string) string
}

// Collect builds the report.
func (c *Collector) Collect(ctx context.Context) *Report {
	environ := c.Environ
	if environ == nil {
		environ = os.Environ
	}
	env := map[string]string{}
	for _, kv := range environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}

	r := &Report{Version: c.Version, Platform: platform()}
	if exe, err := os.Executable(); err == nil {
		r.Executable = exe
	}
	for k := range env {
		r.EnvNames = append(r.EnvNames, k)
	}
	sort.Strings(r.EnvNames)
	for _, k := range r.EnvNames {
		if strings.HasPrefix(k, "PYRO_") {
			r.PyroVars = append(r.PyroVars, [2]string{k, env[k]})
		}
	}
	for _, k := range debugVars {
		if v, ok := env[k]; ok {
			r.DebugVars = append(r.DebugVars, [2]string{k, v})
		}
	}
	r.Pythons = c.pythons(ctx, env["PATH"])

	if c.Pipfile != "" {
		r.Pipfile = readFile(c.Pipfile)
		r.Lockfile = readFile(filepath.Join(filepath.Dir(c.Pipfile), lockfile.LockfileName))
	}
	return r
}

func readFile(path string) *File {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return &File{Path: path, Content: string(data)}
}

// pythons lists every interpreter on PATH, in PATH order, once per file.
func (c *Collector) pythons(ctx context.Context, pathEnv string) []Python {
	version := c.PythonVersion
	if version == nil {
		version = runVersion
	}
	seen := map[string]bool{}
	var out []Python
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			continue
		}
		for _, name := range pythonNames {
			candidate := filepath.Join(dir, name)
			if runtime.GOOS == "windows" {
				candidate += ".exe"
			}
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() || seen[candidate] {
				continue
			}
			seen[candidate] = true
			out = append(out, Python{Version: version(ctx, candidate), Path: candidate})
		}
	}
	return out
}

func runVersion(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(out)), "Python "))
}

// platform approximates the PEP 508 environment markers of this machine.
func platform() map[string]string {
	osName, sysPlatform, system := "posix", runtime.GOOS, strings.ToUpper(runtime.GOOS[:1])+runtime.GOOS[1:]
	switch runtime.GOOS {
	case "windows":
		osName, sysPlatform, system = "nt", "win32", "Windows"
	case "darwin":
		system = "Darwin"
	}
	machine := runtime.GOARCH
	switch machine {
	case "amd64":
		machine = "x86_64"
	case "arm64":
		if runtime.GOOS == "linux" {
			machine = "aarch64"
		}
	}
	return map[string]string{
		"os_name":          osName,
		"sys_platform":     sysPlatform,
		"platform_system":  system,
		"platform_machine": machine,
	}
}

// Write renders r as a collapsible markdown block.
func Write(w io.Writer, r *Report) error {
	p := &printer{w: w}
	p.line("<details><summary>$ pyro support</summary>")
	p.line("")
	p.line("pyro version: `%s`", r.Version)
	p.line("")
	p.line("pyro location: `%s`", r.Executable)
	p.line("")
	p.line("Python installations in `PATH`:")
	p.line("")
	for _, py := range r.Pythons {
		p.line("  - `%s`: `%s`", py.Version, py.Path)
	}
	p.line("")
	p.line("PEP 508 information:")
	p.line("")
	p.line("```")
	keys := make([]string, 0, len(r.Platform))
	for k := range r.Platform {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.line("%s: %s", k, r.Platform[k])
	}
	p.line("```")
	p.line("")
	p.line("System environment variables:")
	p.line("")
	for _, k := range r.EnvNames {
		p.line("  - `%s`", k)
	}
	p.line("")
	p.line("pyro-specific environment variables:")
	p.line("")
	for _, kv := range r.PyroVars {
		p.line("  - `%s`: `%s`", kv[0], kv[1])
	}
	p.line("")
	p.line("Debug-specific environment variables:")
	p.line("")
	for _, kv := range r.DebugVars {
		p.line("  - `%s`: `%s`", kv[0], kv[1])
	}
	p.line("")
	p.line("---------------------------")
	p.line("")
	if r.Pipfile != nil {
		p.file(filepath.Base(r.Pipfile.Path), r.Pipfile)
	}
	if r.Lockfile != nil {
		p.file(lockfile.LockfileName, r.Lockfile)
	}
	p.line("</details>")
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) file(label string, f *File) {
	p.line("Contents of `%s` (`%s`):", label, f.Path)
	p.line("")
	p.line("```toml")
	p.line("%s", strings.TrimRight(f.Content, "\n"))
	p.line("```")
	p.line("")
}
