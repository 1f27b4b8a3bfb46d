// Package shell runs recipe commands as ordered process steps.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/goplus/depbuild/internal/logging"
	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Step is a single command of a build: what to run, in which directory and
// with which environment ("key=value" pairs).
type Step struct {
	Command string
	Dir     string
	Env     []string
}

// Executor runs one step to completion. A non-zero exit is reported as an
// error from which ExitStatus recovers the status.
type Executor interface {
	Run(ctx context.Context, step Step) error
}

// CommandError reports the step that stopped a build.
type CommandError struct {
	Index   int    // position of the failing step
	Command string // the step's command
	Status  int    // exit status, 1 when the command did not run at all
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %d (%s) failed with exit status %d: %v", e.Index+1, e.Command, e.Status, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitStatus returns the process exit status carried by err: 0 for nil, the
// status for shell and process exit errors, 1 otherwise.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	var cmdErr *CommandError
	if eris.As(err, &cmdErr) {
		return cmdErr.Status
	}
	var status interp.ExitStatus
	if eris.As(err, &status) {
		return int(status)
	}
	var exitErr *exec.ExitError
	if eris.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return 1
}

// RunSteps runs steps in order with ex. The first failing step stops the
// sequence; no later step runs and a *CommandError describes the failure.
func RunSteps(ctx context.Context, ex Executor, steps []Step) error {
	log := logging.From(ctx)
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info().Int("step", i+1).Str("dir", step.Dir).Msg(step.Command)
		if err := ex.Run(ctx, step); err != nil {
			return &CommandError{Index: i, Command: step.Command, Status: ExitStatus(err), Err: err}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Interp runs steps with the in-process POSIX shell interpreter. Each step
// gets a fresh shell with errexit set, so a failing pipeline inside a
// multi-line command stops it as well.
type Interp struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewInterp returns an Interp inheriting the process's standard streams.
func NewInterp() *Interp {
	return &Interp{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run implements Executor.
func (s *Interp) Run(ctx context.Context, step Step) error {
	file, err := syntax.NewParser().Parse(strings.NewReader(step.Command), "")
	if err != nil {
		return eris.Wrap(err, "failed to parse command")
	}

	runner, err := interp.New(
		interp.Dir(step.Dir),
		interp.Env(expand.ListEnviron(step.Env...)),
		interp.StdIO(s.Stdin, s.Stdout, s.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize shell")
	}
	return runner.Run(ctx, file)
}

// -----------------------------------------------------------------------------

// Printer is an Executor that prints each step instead of running it.
type Printer struct {
	Out io.Writer
}

// Run implements Executor.
func (p *Printer) Run(ctx context.Context, step Step) error {
	file, err := syntax.NewParser().Parse(strings.NewReader(step.Command), "")
	if err != nil {
		return eris.Wrap(err, "failed to parse command")
	}
	if step.Dir != "" {
		fmt.Fprintf(p.Out, "# in %s\n", step.Dir)
	}
	printer := syntax.NewPrinter()
	for _, stmt := range file.Stmts {
		if err := printer.Print(p.Out, stmt); err != nil {
			return err
		}
		fmt.Fprintln(p.Out)
	}
	return nil
}
