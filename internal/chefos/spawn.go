package chefos

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"

	"github.com/chefbuild/chef/internal/cheferr"
)

// LineHandler receives one line of output at a time, tagged with whether it
// came from stdout or stderr.
type LineHandler func(line string, isStderr bool)

// SpawnOptions controls a host-side process spawn.
type SpawnOptions struct {
	Dir    string      // Working directory. Empty uses the caller's cwd.
	Env    []string    // Full environment for the child process.
	OnLine LineHandler // Optional; called for each line of stdout/stderr.
}

// Spawn runs name with args to completion, streaming output through
// opts.OnLine if set, and returns the process's exit code.
//
// A non-zero exit code is not itself an error; the caller decides how to
// treat it (oven backends surface it via [cheferr.ErrInternal]-wrapped
// failures, kitchen setup treats it the same way). Spawn only returns an
// error when the process could not be started or waited on.
func Spawn(ctx context.Context, name string, args []string, opts SpawnOptions) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	if err := cmd.Start(); err != nil {
		return 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	done := make(chan struct{}, 2)
	go streamLines(stdout, false, opts.OnLine, done)
	go streamLines(stderr, true, opts.OnLine, done)
	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	return 0, nil
}

func streamLines(r io.Reader, isStderr bool, handler LineHandler, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if handler != nil {
			handler(scanner.Text(), isStderr)
		}
	}
}
