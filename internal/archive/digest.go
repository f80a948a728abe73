package archive

import (
	"os"

	digest "github.com/opencontainers/go-digest"

	"github.com/chefbuild/chef/internal/cheferr"
)

// Digest computes the content address of a pack file. The store and
// inventory key cached packs by this value alongside the identity
// tuple.
func Digest(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", cheferr.Wrap(cheferr.ErrNotFound, err)
	}
	defer f.Close()

	d, err := digest.FromReader(f)
	if err != nil {
		return "", cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return d, nil
}
