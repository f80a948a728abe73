package runtime

import (
	"context"
	"os"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/containers"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/protocol"
	"github.com/chefbuild/chef/internal/runtime/seccomp"
)

// defaultPlatform is used when a caller does not specify one.
const defaultPlatform = "linux/amd64"

// CreateOptions parameterizes [Container.Create].
type CreateOptions struct {
	Chroot       string                // Host directory to use as the container's root filesystem.
	Platform     string                // OCI platform string, e.g. "linux/amd64". Empty uses [defaultPlatform].
	Capabilities []protocol.Capability // Granted capability bitset; drives the seccomp allowlist and whether a user namespace is configured.
	Mounts       []protocol.Mount      // Bind mounts, applied in declaration order.
}

// A Container is a long-lived sandbox backed by a containerd task whose
// root filesystem is a pre-built chroot directory, not an OCI image
// snapshot.
type Container struct {
	client   *containerd.Client
	id       string
	platform string
}

// Create validates the chroot, then creates and starts the container.
//
// Any existing container with the same id is removed first. Creation is
// all-or-nothing: on any failure after the containerd record is created,
// it is torn down before returning.
func (c *Container) Create(ctx context.Context, opts CreateOptions) error {
	info, err := os.Stat(opts.Chroot)
	if err != nil || !info.IsDir() {
		return cheferr.Wrap(cheferr.ErrInvalidArgument, ErrChrootInvalid)
	}

	c.platform = opts.Platform
	if c.platform == "" {
		c.platform = defaultPlatform
	}

	c.remove(ctx)

	seccompProfile, err := seccomp.Build(opts.Capabilities)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}

	specOpts := []oci.SpecOpts{
		oci.WithDefaultSpecForPlatform(c.platform),
	}
	// User-id mapping is established before any other namespace operation,
	// so the user namespace option is inserted first among the
	// namespace-affecting opts, ahead of rootfs/process/seccomp setup.
	if hasCapability(opts.Capabilities, protocol.CapUserNamespace) {
		specOpts = append(specOpts, oci.WithUserNamespace(idMapping(os.Getuid()), idMapping(os.Getgid())))
	}
	specOpts = append(specOpts,
		oci.WithRootFSPath(opts.Chroot),
		oci.WithProcessArgs("sleep", "infinity"),
		withSeccomp(seccompProfile),
	)
	if hasCapability(opts.Capabilities, protocol.CapNetwork) {
		specOpts = append(specOpts, oci.WithHostNamespace(specs.NetworkNamespace), oci.WithHostResolvconf)
	}
	for _, m := range opts.Mounts {
		specOpts = append(specOpts, withBindMount(m))
	}

	ctr, err := c.client.NewContainer(ctx, c.id,
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithNewSpec(specOpts...),
	)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		ctr.Delete(ctx)
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		ctr.Delete(ctx)
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	return nil
}

// withSeccomp installs a pre-built seccomp filter on the spec.
func withSeccomp(profile *specs.LinuxSeccomp) oci.SpecOpts {
	return func(_ context.Context, _ oci.Client, _ *containers.Container, s *oci.Spec) error {
		if s.Linux == nil {
			s.Linux = &specs.Linux{}
		}
		s.Linux.Seccomp = profile
		return nil
	}
}

// withBindMount appends one bind mount to the spec, honoring ReadOnly.
// Mounts are appended in the order callers pass them, preserving
// declaration order.
func withBindMount(m protocol.Mount) oci.SpecOpts {
	return func(_ context.Context, _ oci.Client, _ *containers.Container, s *oci.Spec) error {
		options := []string{"rbind", "rw"}
		if m.ReadOnly {
			options = []string{"rbind", "ro"}
		}
		s.Mounts = append(s.Mounts, specs.Mount{
			Destination: m.Target,
			Source:      m.Source,
			Type:        "bind",
			Options:     options,
		})
		return nil
	}
}

// idMapping maps the container's root id to hostID, a single-id mapping
// sufficient to isolate the container's user namespace without granting
// it any host id it doesn't already run as.
func idMapping(hostID int) []specs.LinuxIDMapping {
	return []specs.LinuxIDMapping{{ContainerID: 0, HostID: uint32(hostID), Size: 1}}
}

func hasCapability(caps []protocol.Capability, want protocol.Capability) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}

// ID returns the container's identity string.
func (c *Container) ID() string { return c.id }

// Pid returns the init process's host PID, the handle the cvd server
// uses to resolve the container's cgroup id for BPF-LSM policy
// population.
func (c *Container) Pid(ctx context.Context) (uint32, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return 0, cheferr.Wrap(cheferr.ErrNotFound, err)
	}
	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return 0, cheferr.Wrap(cheferr.ErrNotFound, err)
	}
	return task.Pid(), nil
}

// Status queries the current state of the container.
func (c *Container) Status(ctx context.Context) (protocol.ContainerState, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return protocol.ContainerNotCreated, nil
		}
		return "", cheferr.Wrap(cheferr.ErrInternal, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return protocol.ContainerStopped, nil
		}
		return "", cheferr.Wrap(cheferr.ErrInternal, err)
	}

	status, err := task.Status(ctx)
	if err != nil {
		return "", cheferr.Wrap(cheferr.ErrInternal, err)
	}
	if status.Status == containerd.Running {
		return protocol.ContainerRunning, nil
	}
	return protocol.ContainerStopped, nil
}

// Stop kills the container's task without removing the container
// record. Calling Stop on an already-stopped container is not an error.
func (c *Container) Stop(ctx context.Context) error {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	task.Kill(ctx, syscall.SIGKILL)
	if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return nil
}

// Destroy removes the container and its task. Idempotent. The caller is
// responsible for evicting any BPF-LSM policy entries tagged with this
// container's cgroup id once Destroy returns.
func (c *Container) Destroy(ctx context.Context) error {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	if task, err := ctr.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}

	if err := ctr.Delete(ctx); err != nil && !errdefs.IsNotFound(err) {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return nil
}

// remove tears down any stale container with this id from a previous
// run, ignoring errors: a missing container is the common case.
func (c *Container) remove(ctx context.Context) {
	existing, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return
	}
	if task, err := existing.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}
	existing.Delete(ctx)
}
