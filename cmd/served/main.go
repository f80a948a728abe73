// Command served runs the package install daemon:
// it executes install/remove transactions against the local inventory
// and answers get_command lookups for the serve-exec wrapper.
package main

import (
	"os"

	"github.com/chefbuild/chef/internal/cli/served"
)

func main() {
	if err := served.Execute(); err != nil {
		served.Log.WithError(err).Error("served exited")
		os.Exit(1)
	}
}
