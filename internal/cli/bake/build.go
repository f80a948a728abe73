package bake

import (
	"context"

	"github.com/chefbuild/chef/internal/manifest"
)

// BuildCmd is "bake build": load the recipe and run every uncompleted
// checkpoint.
type BuildCmd struct{}

// Run loads the recipe, materializes or resumes its kitchen, and runs
// [kitchen.Kitchen.Setup].
func (c *BuildCmd) Run(ctx context.Context) error {
	recipe, err := manifest.Load(RootCmd.Recipe)
	if err != nil {
		return err
	}

	k, rt, err := openKitchen(ctx, recipe)
	if err != nil {
		return err
	}
	defer rt.Close()

	Log.WithField("recipe", recipe.Name).Info("building")
	return k.Setup(ctx, recipe)
}
