// Command cvd runs the build-container daemon: it
// listens on a local RPC socket and dispatches container.* commands
// against a containerd-backed runtime, enforcing seccomp and BPF-LSM
// policy on every container it creates.
package main

import (
	"os"

	"github.com/chefbuild/chef/internal/cli/cvd"
)

func main() {
	if err := cvd.Execute(); err != nil {
		cvd.Log.WithError(err).Error("cvd exited")
		os.Exit(1)
	}
}
