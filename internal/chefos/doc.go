// Package chefos collects the platform primitives used as pure functions
// with no shared state: process spawning with a streaming line
// handler, directory walking, symlink creation, logical CPU counting, and
// running a script through a shell. Every function here is a thin,
// dependency-light wrapper so that higher layers (kitchen, oven, packer)
// don't each reinvent process plumbing.
package chefos
