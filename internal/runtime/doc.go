// Package runtime implements the container engine: namespace/cgroup/
// chroot sandbox creation, mount layering, policy enforcement, and
// process join/spawn.
//
// A [Runtime] holds one containerd client connection; containerd's runc
// shim performs the actual namespace and cgroup setup the daemon asks
// for, so this package composes the right OCI spec for each container
// rather than calling clone(2)/unshare(2) directly. A [Container] is
// created directly from an already-materialized chroot directory (the
// kitchen's rootfs), never from an image; ingredient unpacking and
// rootfs composition happen one layer up, in the kitchen package.
//
// Each [Container] wraps one containerd task kept alive with a
// long-running init process so that [Container.Spawn] can attach
// additional execs to it, matching "join by id" semantics. Seccomp
// filters and BPF-LSM policy are layered on top of the OCI spec via the
// seccomp and policy/bpflsm packages.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "chef")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr := rt.Container("build-1")
//	if err := ctr.Create(ctx, runtime.CreateOptions{Chroot: chroot}); err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Spawn(ctx, []string{"/bin/sh", "-c", "echo hello"}, nil, "")
package runtime
