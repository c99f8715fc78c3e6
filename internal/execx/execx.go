// Package execx runs external system tools and captures their output.
//
// Every command the CLI shells out to (pct, smartctl, lvs, docker, apt-get,
// mail, ...) goes through a Runner so that callers can gate on binary
// presence and tests can substitute a fake.
package execx

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Cmd describes a single external command invocation.
type Cmd struct {
	Name  string
	Args  []string
	Stdin io.Reader
	// Env entries are appended to the current process environment.
	Env []string
	// Dir is the working directory; empty means inherit.
	Dir string
}

// Command builds a Cmd for name with the given arguments.
func Command(name string, args ...string) Cmd {
	return Cmd{Name: name, Args: args}
}

// String renders the invocation for logs and dry-run output.
func (c Cmd) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result holds the outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands.
type Runner interface {
	// LookPath reports the absolute path of name, or an error when the
	// binary is not installed.
	LookPath(name string) (string, error)

	// Run executes cmd and captures its output. A non-zero exit status is
	// not an error; callers inspect Result.ExitCode. Run returns an error
	// only when the process could not be started or was killed by the
	// context.
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

type systemRunner struct{}

// System returns a Runner backed by os/exec.
func System() Runner {
	return systemRunner{}
}

func (systemRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(err, "command not found: %s", name)
	}
	return path, nil
}

func (systemRunner) Run(ctx context.Context, cmd Cmd) (Result, error) {
	log.Debugf("exec: %s", cmd.String())

	execCmd := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	execCmd.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != nil {
		execCmd.Stdin = cmd.Stdin
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			log.Debugf("exec: %s exited with status %d", cmd.Name, result.ExitCode)
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, errors.Wrapf(ctxErr, "command %s interrupted", cmd.Name)
		}
		return result, errors.Wrapf(err, "failed to run %s", cmd.Name)
	}
	return result, nil
}
