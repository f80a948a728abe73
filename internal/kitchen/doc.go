// Package kitchen materializes and drives a recipe's build environment.
//
// A [Kitchen] owns the host-side directory skeleton for one recipe
// (chroot, the three ingredient areas, a toolchains directory, a build
// directory, and the bound project directory), a single long-lived
// container created against that chroot, and a checkpoint cache so
// re-running Setup after a partial failure skips whatever already
// completed.
//
// The checkpoint cache exposes an explicit transactional API (begin,
// set a key, commit) and never commits mid-step.
package kitchen
