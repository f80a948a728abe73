package bake

import (
	"context"
	"os"

	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/paths"
)

// PurgeCmd is "bake purge": destroy the kitchen's container and delete
// its entire working tree, discarding all checkpoints.
type PurgeCmd struct{}

// Run tears down the container (if any) and removes the kitchen
// directory.
func (c *PurgeCmd) Run(ctx context.Context) error {
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
	ctr.Destroy(ctx) // best-effort: the container may not exist if no build ran.

	root := paths.KitchenRoot(k.UUID)
	if err := os.RemoveAll(root); err != nil {
		return err
	}

	Log.WithField("path", root).Info("kitchen purged")
	return nil
}
