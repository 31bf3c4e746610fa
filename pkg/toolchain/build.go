package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"
)

// DefaultSketchName names the sketch directory and file.
const DefaultSketchName = "ardubridge"

// ProgramSource provides the sketch text.
type ProgramSource interface {
	Source() string
}

// Outcome classifies a build.
type Outcome int

// Outcomes.
const (
	Success Outcome = iota
	Unavailable
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Unavailable:
		return "unavailable"
	case Failure:
		return "failure"
	}
	return "unknown"
}

// Result is the outcome of BuildAndFlash.
type Result struct {
	Outcome Outcome
	// Step is the last step attempted.
	Step string
	// SketchPath is the written sketch, it stays for manual flashing.
	SketchPath string
	// Output is the tool output of all steps, verbatim.
	Output   string
	Duration time.Duration
	// Skipped is set when the board already runs the program.
	Skipped bool
	err     error
}

// Err returns nil on Success, *UnavailableError or *FailureError otherwise.
func (r *Result) Err() error {
	return r.err
}

// WriteSketch writes the program to dir/name/name.ino, the layout
// arduino-cli expects, and returns the file path.
func WriteSketch(dir, name string, prog ProgramSource) (string, error) {
	if name == "" {
		name = DefaultSketchName
	}
	sketchDir := filepath.Join(dir, name)
	if err := os.MkdirAll(sketchDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(sketchDir, name+".ino")
	if err := os.WriteFile(path, []byte(prog.Source()), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// SketchDir is where BuildAndFlash writes sketches.
func SketchDir() string {
	return filepath.Join(os.TempDir(), DefaultSketchName)
}

// BuildAndFlash writes the sketch to SketchDir, then compiles and uploads it
// to the board on port with a single arduino-cli process.
func (c *CLI) BuildAndFlash(ctx context.Context, prog ProgramSource, port, fqbn string) *Result {
	return c.BuildAndFlashIn(ctx, SketchDir(), prog, port, fqbn)
}

// BuildAndFlashIn is BuildAndFlash with the sketch written under dir.
func (c *CLI) BuildAndFlashIn(ctx context.Context, dir string, prog ProgramSource, port, fqbn string) *Result {
	start := time.Now()
	res := &Result{Step: "write"}
	defer func() {
		res.Duration = time.Since(start)
	}()

	path, err := WriteSketch(dir, DefaultSketchName, prog)
	if err != nil {
		return res.finish("write", err)
	}
	res.SketchPath = path
	sketchDir := filepath.Dir(path)

	res.Step = "compile"
	glog.Infof("Compiling and uploading %s to %s (%s)", path, port, fqbn)
	out, err := c.CompileAndUpload(ctx, sketchDir, port, fqbn)
	res.Output = out
	if err != nil {
		return res.finish(res.Step, err)
	}
	glog.Infof("Sketch uploaded in %v", time.Since(start))
	return res.finish(res.Step, nil)
}

// NewResult creates the Result of a build that stopped at step with err,
// nil meaning Success.
func NewResult(step, sketchPath string, err error) *Result {
	res := &Result{SketchPath: sketchPath}
	return res.finish(step, err)
}

func (r *Result) finish(step string, err error) *Result {
	r.Step, r.err = step, err
	if err == nil {
		r.Outcome = Success
		return r
	}
	var unavailable *UnavailableError
	var failure *FailureError
	switch {
	case errors.As(err, &unavailable):
		r.Outcome = Unavailable
		glog.Warningf("%v, sketch left at %s", err, r.SketchPath)
	case errors.As(err, &failure):
		r.Outcome = Failure
		glog.Errorf("%s failed, sketch left at %s", step, r.SketchPath)
	default:
		r.Outcome = Failure
		r.err = &FailureError{Step: step, ExitCode: -1, Output: fmt.Sprintf("%s%v", r.Output, err)}
		glog.Errorf("%s failed: %v", step, err)
	}
	return r
}

// Format formats a sketch file in place with clang-format. A missing
// formatter is reported as *UnavailableError.
func (c *CLI) Format(ctx context.Context, path string) error {
	tool := c.FormatPath
	if tool == "" {
		tool = DefaultFormatPath
	}
	args := []string{"-i"}
	if c.FormatStyle != "" {
		args = append(args, "-style="+c.FormatStyle)
	}
	_, err := runTool(ctx, tool, c.Dir, "format", append(args, path)...)
	return err
}
