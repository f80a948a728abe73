package bake

import (
	"context"

	"github.com/chefbuild/chef/internal/manifest"
)

// CleanCmd is "bake clean": reset one step's checkpoint, and every
// checkpoint that transitively depends on it, so the next build re-runs
// it.
type CleanCmd struct {
	Part string `arg:"" help:"Part name."`
	Step string `arg:"" help:"Step name."`
}

// Run resets the named step's checkpoint.
func (c *CleanCmd) Run(ctx context.Context) error {
	recipe, err := manifest.Load(RootCmd.Recipe)
	if err != nil {
		return err
	}

	k, rt, err := openKitchen(ctx, recipe)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := k.ResetStep(c.Part, c.Step); err != nil {
		return err
	}

	Log.WithField("part", c.Part).WithField("step", c.Step).Info("checkpoint reset")
	return nil
}
