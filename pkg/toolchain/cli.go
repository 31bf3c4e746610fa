// Package toolchain wraps arduino-cli to compile and upload sketches.
package toolchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/golang/glog"
	"github.com/google/shlex"
)

// Default executable names.
const (
	DefaultPath       = "arduino-cli"
	DefaultFormatPath = "clang-format"
)

// CLI runs arduino-cli. Every call spawns the tool once and never retries.
type CLI struct {
	// Path of arduino-cli, looked up in PATH when it has no separator.
	Path string
	// Dir is the working directory of the tool.
	Dir string
	// ExtraArgs are passed before every subcommand, e.g. --config-file.
	ExtraArgs []string
	// FormatPath is the clang-format executable used by Format.
	FormatPath string
	// FormatStyle is passed as -style to clang-format when set.
	FormatStyle string
}

// NewCLI creates a CLI, extraArgs is split with shell quoting rules.
func NewCLI(path, extraArgs string) (*CLI, error) {
	if path == "" {
		path = DefaultPath
	}
	args, err := shlex.Split(extraArgs)
	if err != nil {
		return nil, fmt.Errorf("parse extra arguments %q: %w", extraArgs, err)
	}
	return &CLI{Path: path, ExtraArgs: args, FormatPath: DefaultFormatPath}, nil
}

func (c *CLI) run(ctx context.Context, step string, args ...string) ([]byte, error) {
	return runTool(ctx, c.Path, c.Dir, step, append(append([]string(nil), c.ExtraArgs...), args...)...)
}

func runTool(ctx context.Context, tool, dir, step string, args ...string) ([]byte, error) {
	glog.V(2).Infof("[TOOL] %s %s", tool, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, &FailureError{Step: step, ExitCode: exitErr.ExitCode(), Output: string(out)}
	}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return out, &UnavailableError{Tool: tool, Err: err}
	}
	return out, err
}

// Version returns the output of "arduino-cli version".
func (c *CLI) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "version", "version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Boards maps board names to their fully qualified board names.
func (c *CLI) Boards(ctx context.Context) (map[string]string, error) {
	out, err := c.run(ctx, "board listall", "board", "listall", "--format", "json")
	if err != nil {
		return nil, err
	}
	var result struct {
		Boards []struct {
			Name string `json:"name"`
			FQBN string `json:"fqbn"`
		} `json:"boards"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("parse board list: %w", err)
	}
	boards := make(map[string]string, len(result.Boards))
	for _, b := range result.Boards {
		boards[b.Name] = b.FQBN
	}
	return boards, nil
}

// ResolveBoard returns board when it's already a FQBN, otherwise looks it
// up by name.
func (c *CLI) ResolveBoard(ctx context.Context, board string) (string, error) {
	if strings.Contains(board, ":") {
		return board, nil
	}
	boards, err := c.Boards(ctx)
	if err != nil {
		return "", err
	}
	fqbn, ok := boards[board]
	if !ok {
		return "", fmt.Errorf("unknown board %q", board)
	}
	return fqbn, nil
}

type installedLibrary struct {
	Library struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"library"`
}

// Libraries maps installed library names to versions.
func (c *CLI) Libraries(ctx context.Context) (map[string]string, error) {
	out, err := c.run(ctx, "lib list", "lib", "list", "--format", "json")
	if err != nil {
		return nil, err
	}
	var list []installedLibrary
	if trimmed := strings.TrimSpace(string(out)); strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Installed []installedLibrary `json:"installed_libraries"`
		}
		err = json.Unmarshal(out, &wrapped)
		list = wrapped.Installed
	} else if trimmed != "" && trimmed != "null" {
		err = json.Unmarshal(out, &list)
	}
	if err != nil {
		return nil, fmt.Errorf("parse library list: %w", err)
	}
	libs := make(map[string]string, len(list))
	for _, l := range list {
		libs[l.Library.Name] = l.Library.Version
	}
	return libs, nil
}

var versionRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// InstallLibrary installs a library, version is "latest" or empty for the
// latest release.
func (c *CLI) InstallLibrary(ctx context.Context, name, version string) error {
	ref := name
	switch {
	case version == "" || version == "latest":
	case versionRe.MatchString(version):
		ref += "@" + version
	default:
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	glog.Infof("Installing library %s", ref)
	_, err := c.run(ctx, "lib install", "lib", "install", ref)
	return err
}

// UninstallLibrary removes a library.
func (c *CLI) UninstallLibrary(ctx context.Context, name string) error {
	_, err := c.run(ctx, "lib uninstall", "lib", "uninstall", name)
	return err
}

// EnsureLibraries installs libraries which are missing or at a different
// version. It returns the names installed.
func (c *CLI) EnsureLibraries(ctx context.Context, required map[string]string) ([]string, error) {
	installed, err := c.Libraries(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for name := range required {
		names = append(names, name)
	}
	sort.Strings(names)
	var done []string
	for _, name := range names {
		version := required[name]
		current, ok := installed[name]
		if ok && (version == "" || version == "latest" || current == version) {
			continue
		}
		if err := c.InstallLibrary(ctx, name, version); err != nil {
			return done, err
		}
		done = append(done, name)
	}
	return done, nil
}

// Compile compiles the sketch directory for fqbn.
func (c *CLI) Compile(ctx context.Context, sketchDir, fqbn string) (string, error) {
	out, err := c.run(ctx, "compile", "compile", "--fqbn", fqbn, sketchDir)
	return string(out), err
}

// CompileAndUpload compiles the sketch directory and flashes it to the
// board on port in a single invocation.
func (c *CLI) CompileAndUpload(ctx context.Context, sketchDir, port, fqbn string) (string, error) {
	out, err := c.run(ctx, "compile", "compile", "--upload", "-p", port, "--fqbn", fqbn, sketchDir)
	return string(out), err
}

// Upload flashes a compiled sketch directory to the board on port.
func (c *CLI) Upload(ctx context.Context, sketchDir, port, fqbn string) (string, error) {
	out, err := c.run(ctx, "upload", "upload", "-p", port, "--fqbn", fqbn, sketchDir)
	return string(out), err
}
