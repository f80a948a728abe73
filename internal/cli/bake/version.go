package bake

import (
	"context"
	"fmt"

	"github.com/chefbuild/chef/internal"
)

// VersionCmd is "bake version".
type VersionCmd struct{}

// Run prints the build version.
func (c *VersionCmd) Run(ctx context.Context) error {
	fmt.Println(internal.VersionString())
	return nil
}
