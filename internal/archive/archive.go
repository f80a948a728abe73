// Package archive implements the VaFs pack format: a content-addressed file carrying typed feature
// records (an Overview of file/dir/symlink counts, a package Header, an
// optional compression Filter) followed by a directory tree of entries.
// The optional codec is zstd via klauspost/compress.
package archive

import "github.com/chefbuild/chef/internal/manifest"

// Feature GUIDs recognized in a pack's feature table.
const (
	FeatureOverview = "VA_FS_FEATURE_OVERVIEW"
	FeatureHeader   = "CHEF_PACKAGE_HEADER_GUID"
	FeatureFilter   = "VA_FS_FEATURE_FILTER"
)

// magic identifies a VaFs pack; version gates the on-disk layout.
const (
	magicValue    uint32 = 0x56614653 // "VaFs"
	formatVersion uint32 = 1
)

// Overview is the VA_FS_FEATURE_OVERVIEW feature: entry counts recorded
// at pack time.
type Overview struct {
	Files    uint32 `json:"files"`
	Dirs     uint32 `json:"dirs"`
	Symlinks uint32 `json:"symlinks"`
}

// Header is the CHEF_PACKAGE_HEADER_GUID feature: package type and
// free-form metadata strings.
type Header struct {
	Type     manifest.PackageType `json:"type"`
	Version  string               `json:"version"`
	Metadata map[string]string    `json:"metadata,omitempty"`
	Commands []manifest.Command   `json:"commands,omitempty"`
}

// FilterCodec names a registered compression codec for the
// VA_FS_FEATURE_FILTER feature. zstd is the only codec supported.
type FilterCodec string

const CodecZstd FilterCodec = "zstd"

// Filter is the VA_FS_FEATURE_FILTER feature: a codec applied to every
// regular file's payload, with the uncompressed content size recorded
// (zstd with known content size).
type Filter struct {
	Codec FilterCodec `json:"codec"`
}

// entryKind tags one node in the packed directory tree.
type entryKind uint8

const (
	entryFile entryKind = iota
	entryDir
	entrySymlink
)

// features is the JSON-encoded metadata block written once per pack,
// ahead of the entry stream.
type features struct {
	Overview Overview `json:"overview"`
	Header   Header   `json:"header"`
	Filter   *Filter  `json:"filter,omitempty"`
}
