// Command serve-exec is the wrapper binary installed commands run
// through: it asks
// served which container and in-container path its invoked name resolves
// to, then asks cvd to run it there.
package main

import (
	"fmt"
	"os"

	"github.com/chefbuild/chef/internal/cli/serveexec"
)

func main() {
	if err := serveexec.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
