// Package packer implements the pack(options) operation: it folds any pack-included ingredients into an install
// tree, then writes that tree out as a VaFs pack via internal/archive,
// honoring each pack's glob include filters.
package packer
