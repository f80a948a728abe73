package oven

import (
	"context"

	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/runtime"
)

// runScript executes the step's argument string verbatim as a shell
// script.
func runScript(ctx context.Context, ctr *runtime.Container, step manifest.Step, data BackendData) (*Result, error) {
	scriptPath := data.Build + "/step.sh"
	if err := ctr.MkdirAll(ctx, data.Build); err != nil {
		return nil, err
	}
	if err := uploadGenerated(ctx, ctr, data, "step.sh", scriptPath, step.Arguments); err != nil {
		return nil, err
	}
	return spawn(ctx, ctr, data, data.Build, "/bin/sh", scriptPath)
}
