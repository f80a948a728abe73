package bake

import (
	"context"
	"fmt"
	"os"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/paths"
)

// RunCmd is "bake run": spawn a command inside a previously built
// recipe's still-live container, for interactive debugging of a build.
type RunCmd struct {
	Command []string `arg:"" help:"Command and arguments to run."`
}

// Run attaches to the kitchen's container (created by a prior "bake
// build") and spawns command, streaming its exit code and output.
func (c *RunCmd) Run(ctx context.Context) error {
	if len(c.Command) == 0 {
		return cheferr.Wrapf(cheferr.ErrInvalidArgument, "no command given")
	}

	recipe, err := manifest.Load(RootCmd.Recipe)
	if err != nil {
		return err
	}

	k, rt, err := openKitchen(ctx, recipe)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctr := rt.Container("kitchen-" + k.UUID)
	result, err := ctr.Spawn(ctx, c.Command, nil, paths.ContainerProject)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stdout, result.Stdout)
	fmt.Fprint(os.Stderr, result.Stderr)
	if result.ExitCode != 0 {
		return cheferr.Wrapf(cheferr.ErrInternal, "command exited %d", result.ExitCode)
	}
	return nil
}
