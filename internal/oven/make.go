package oven

import (
	"context"

	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/runtime"
)

// runMake spawns "make -C <dir> -j<cpu-count>" honoring in_tree and
// parallel.
func runMake(ctx context.Context, ctr *runtime.Container, step manifest.Step, data BackendData) (*Result, error) {
	dir := data.Build
	if data.InTree {
		dir = data.Source
	}

	argv := []string{"make", "-C", dir}
	if data.Parallel {
		argv = append(argv, cpuJobsFlag())
	}
	argv = append(argv, splitArgs(data.Arguments)...)

	return spawn(ctx, ctr, data, dir, argv...)
}
