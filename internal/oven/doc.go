// Package oven dispatches one recipe step to its build-system backend:
// cmake, meson, make, configure, or a raw script. Every backend receives
// the same [BackendData] (the container-internal project paths, target
// platform/architecture, recipe identity, the step's own argument string,
// and its composed environment) and drives the step by spawning the
// backend's tool inside the kitchen's container via
// [runtime.Container.Spawn].
package oven
