// Command bake is the build driver: it materializes
// a recipe's kitchen, runs its checkpointed build steps inside a
// container, and packs the resulting install tree into content-addressed
// archives.
package main

import (
	"os"

	"github.com/chefbuild/chef/internal/cli/bake"
)

func main() {
	if err := bake.Execute(); err != nil {
		bake.Log.WithError(err).Error("bake exited")
		os.Exit(1)
	}
}
