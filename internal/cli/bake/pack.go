package bake

import (
	"context"
	"path/filepath"

	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/packer"
)

// PackCmd is "bake pack": produce an archive for each pack the recipe
// declares.
type PackCmd struct{}

// Run packs every recipe.Packs entry from the kitchen's install tree.
func (c *PackCmd) Run(ctx context.Context) error {
	recipe, err := manifest.Load(RootCmd.Recipe)
	if err != nil {
		return err
	}

	k, rt, err := openKitchen(ctx, recipe)
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, pack := range recipe.Packs {
		outputPath := filepath.Join(RootCmd.OutputDir, pack.Name+".pack")

		overview, err := packer.Pack(packer.Options{
			InstallDir:          k.InstallDir(),
			BuildIngredientsDir: k.BuildIngredientsDir(),
			Ingredients:         recipe.BuildIngredients,
			RecipeVersion:       recipe.Version,
			Pack:                pack,
			OutputPath:          outputPath,
			Compress:            RootCmd.Compress,
		})
		if err != nil {
			return err
		}

		Log.WithField("pack", pack.Name).
			WithField("path", outputPath).
			WithField("files", overview.Files).
			Info("packed")
	}

	return nil
}
