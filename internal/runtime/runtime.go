package runtime

import (
	containerd "github.com/containerd/containerd/v2/client"

	"github.com/chefbuild/chef/internal/cheferr"
)

// ociRuntime is the shim used to run containers.
const ociRuntime = "io.containerd.runc.v2"

// Runtime manages the containerd client connection shared by every
// container the daemon creates. Chef never imports or unpacks OCI
// archives: a container's rootfs is a chroot directory the kitchen has
// already materialized, so there is no content store, snapshotter, or
// image service involved.
type Runtime struct {
	client *containerd.Client
}

// New connects to the containerd socket at address, scoping every
// subsequent operation to namespace. The runtime must be closed when no
// longer needed.
func New(address, namespace string) (*Runtime, error) {
	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return &Runtime{client: client}, nil
}

// Close closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Container returns a handle for a container identified by id. The
// handle is lightweight: it does not load or verify the container until
// an operation is performed against it.
func (rt *Runtime) Container(id string) *Container {
	return &Container{client: rt.client, id: id}
}
