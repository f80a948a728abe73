package bake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/chefbuild/chef/internal/cvdserver"
	"github.com/chefbuild/chef/internal/kitchen"
	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/runtime"
)

// openKitchen loads the recipe at RootCmd.Recipe and materializes (or
// resumes) its kitchen.
//
// bake links internal/runtime and internal/kitchen directly rather than
// dialing cvd's RPC socket: the container methods kitchen calls
// (Create/Spawn/Upload/Destroy) are exactly the ones internal/cvdserver
// dispatches to on the wire, so a build running in-process against the
// same containerd socket sees identical container semantics. The RPC
// surface stays the integration point for already-running daemons that
// join a container from a separate process (cvd's own helpers,
// serve-exec); bake's own build loop has no such cross-process need.
func openKitchen(ctx context.Context, recipe *manifest.Recipe) (*kitchen.Kitchen, *runtime.Runtime, error) {
	containerdAddress := RootCmd.Containerd
	if containerdAddress == "" {
		containerdAddress = cvdserver.DefaultContainerdAddress
	}
	containerdNamespace := RootCmd.Namespace
	if containerdNamespace == "" {
		containerdNamespace = cvdserver.DefaultContainerdNamespace
	}

	rt, err := runtime.New(containerdAddress, containerdNamespace)
	if err != nil {
		return nil, nil, err
	}

	k, err := kitchen.Initialize(kitchen.Options{
		UUID:       recipeUUID(recipe),
		Runtime:    rt,
		ProjectDir: filepath.Dir(RootCmd.Recipe),
		Platform:   RootCmd.Platform,
		Arch:       RootCmd.Arch,
	})
	if err != nil {
		rt.Close()
		return nil, nil, err
	}

	return k, rt, nil
}

// recipeUUID derives a stable kitchen identity from the recipe's own
// identity (name+version), so re-running bake against the same recipe
// resumes the same kitchen directory and checkpoint cache.
func recipeUUID(recipe *manifest.Recipe) string {
	sum := sha256.Sum256([]byte(recipe.Name + "@" + recipe.Version))
	return hex.EncodeToString(sum[:16])
}
