package bake

import (
	"context"
	"encoding/json"
	"os"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/manifest"
)

// InitCmd is "bake init": it writes a minimal recipe template to
// RootCmd.Recipe in the JSON form [manifest.Load] reads. Recipe
// authoring itself still happens through the out-of-scope YAML front
// end; this just seeds something bake can build against immediately.
type InitCmd struct {
	Name string `arg:"" optional:"" help:"Recipe name." default:"example"`
}

// Run writes the template, refusing to overwrite an existing file.
func (c *InitCmd) Run(ctx context.Context) error {
	if _, err := os.Stat(RootCmd.Recipe); err == nil {
		return cheferr.Wrapf(cheferr.ErrInvalidArgument, "%s already exists", RootCmd.Recipe)
	}

	recipe := manifest.Recipe{
		Name:    c.Name,
		Version: "0.1.0",
		Parts: []manifest.Part{
			{
				Name:      "main",
				Toolchain: "host",
				Steps: []manifest.Step{
					{Name: "build", Kind: manifest.StepBuild, Backend: "make"},
				},
			},
		},
		Packs: []manifest.Pack{
			{Name: c.Name, Type: manifest.Application, Filters: []string{"**"}},
		},
	}

	data, err := json.MarshalIndent(&recipe, "", "  ")
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	if err := os.WriteFile(RootCmd.Recipe, data, 0644); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	Log.WithField("path", RootCmd.Recipe).Info("wrote recipe template")
	return nil
}
