package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/containerd/containerd/v2/pkg/cio"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/protocol"
)

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// Spawn runs command inside the container's running task and waits for it
// to exit, matching [protocol.ContainerSpawnRequest]/[protocol.ContainerSpawnResult].
// A non-zero exit code is not an error; the caller decides how to treat it.
func (c *Container) Spawn(ctx context.Context, command []string, env []string, workdir string) (*protocol.ContainerSpawnResult, error) {
	if len(command) == 0 {
		return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "spawn requires a non-empty command")
	}

	pspec, err := c.buildProcessSpec(ctx, env, workdir, command...)
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	var stdout, stderr bytes.Buffer
	pid, exitCode, err := c.execProcess(ctx, pspec, nil, &stdout, &stderr)
	if err != nil {
		return nil, err
	}

	return &protocol.ContainerSpawnResult{
		Pid:      pid,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// buildProcessSpec derives a process spec for one exec from the
// container's own OCI spec, overriding env and workdir when given.
func (c *Container) buildProcessSpec(ctx context.Context, env []string, workdir string, args ...string) (*specs.Process, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = args

	if len(env) > 0 {
		pspec.Env = mergeEnv(pspec.Env, env)
	}
	if workdir != "" {
		pspec.Cwd = workdir
	}

	return &pspec, nil
}

// mergeEnv overlays override entries onto base, keyed by variable name.
func mergeEnv(base, overrides []string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, entry := range base {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}
	for _, entry := range overrides {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}

	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, k+"="+v)
	}
	return result
}

// execProcess starts pspec as an additional exec on the container's
// running task (which must already exist from [Container.Create]) and
// waits for it to exit.
func (c *Container) execProcess(ctx context.Context, pspec *specs.Process, stdin io.Reader, stdout, stderr io.Writer) (pid, exitCode int, err error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return 0, 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return 0, 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	process, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(stdin, stdout, stderr),
	))
	if err != nil {
		return 0, 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	statusC, err := process.Wait(ctx)
	if err != nil {
		process.Delete(ctx)
		return 0, 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	if err := process.Start(ctx); err != nil {
		process.Delete(ctx)
		return 0, 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	exitStatus := <-statusC
	pid = int(process.Pid())
	process.Delete(ctx)

	code, _, err := exitStatus.Result()
	if err != nil {
		return pid, 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	return pid, int(code), nil
}
