package cvd

import (
	"context"
	"fmt"

	"github.com/chefbuild/chef/internal"
)

// VersionCmd is "cvd version".
type VersionCmd struct{}

// Run prints the build version.
func (c *VersionCmd) Run(ctx context.Context) error {
	fmt.Println(internal.VersionString())
	return nil
}
