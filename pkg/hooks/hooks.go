// Package hooks runs user-provided shell snippets (backup hooks, extra
// cleanup steps) with an embedded POSIX shell interpreter instead of
// shelling out to /bin/sh.
package hooks

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Result holds the outcome of a finished script.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Validate parses script and reports syntax errors without running it.
func Validate(name, script string) error {
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), name); err != nil {
		return errors.Wrapf(err, "syntax error in %s", name)
	}
	return nil
}

// Run parses and executes a shell snippet in-process. Extra env entries are
// appended to the current process environment. A non-zero exit status is
// reported in the Result, not as an error.
func Run(ctx context.Context, name, script string, env []string) (Result, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), name)
	if err != nil {
		return Result{ExitCode: 1}, errors.Wrapf(err, "failed to parse %s", name)
	}

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.Env(expand.ListEnviron(append(os.Environ(), env...)...)),
		interp.StdIO(nil, &stdout, &stderr),
	)
	if err != nil {
		return Result{ExitCode: 1}, errors.Wrap(err, "failed to create shell interpreter")
	}

	log.Debugf("running %s", name)
	runErr := runner.Run(ctx, prog)
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if runErr != nil {
		var exitStatus interp.ExitStatus
		if errors.As(runErr, &exitStatus) {
			result.ExitCode = int(exitStatus)
			return result, nil
		}
		return result, errors.Wrapf(runErr, "%s failed", name)
	}
	return result, nil
}
