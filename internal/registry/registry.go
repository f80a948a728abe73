// Package registry defines the narrow interface bake's kitchen and
// served's inventory call against to resolve ingredients and packages
// over the network. The HTTP client plumbing and OAuth device-code
// login that implement this interface are out of scope for this
// module.
//
// internal/kitchen and internal/inventory depend only on [Client] and
// [proof.Lookup], so tests satisfy both with an in-memory stub instead of
// talking to a real registry.
package registry

import (
	"context"

	"github.com/chefbuild/chef/internal/proof"
)

// Metadata is the subset of a package's registry-side record that
// ingredient resolution needs to pick a revision.
type Metadata struct {
	Publisher      string
	Package        string
	Channel        string
	Platform       string
	Arch           string
	LatestRevision string
}

// Client resolves and fetches packs from the remote registry.
type Client interface {
	// Resolve returns the metadata for the highest revision of
	// (publisher, package) on channel satisfying versionRange, for the
	// given platform/arch.
	Resolve(ctx context.Context, publisher, pkg, channel, versionRange, platform, arch string) (Metadata, error)

	// Fetch downloads the pack for (publisher, package, revision) to
	// destPath, reporting progress through onProgress as bytes arrive.
	// onProgress may be nil.
	Fetch(ctx context.Context, publisher, pkg, revision, platform, arch, destPath string, onProgress func(current, total int64)) error

	// proof.Lookup is embedded so a [Client] can also answer
	// publisher/package proof lookups pulled down alongside a pack,
	// without a second interface for callers to thread through.
	proof.Lookup
}
