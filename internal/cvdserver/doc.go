// Package cvdserver implements cvd, the container virtualization
// daemon: a socket server that dispatches container.* RPCs against
// internal/runtime, populating the BPF-LSM policy_map on creation and
// evicting it on destroy. The command surface covers the full container
// lifecycle: create, spawn, upload, destroy, stop, status, exec, update.
package cvdserver
