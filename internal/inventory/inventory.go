// Package inventory is the JSON-backed local cache of fetched packs.
// Both served's host-wide cache (/var/chef/state.json) and bake's
// per-user store cache use this same package against different state
// file paths. On-disk mutations are serialized by an advisory flock
// over the state file.
package inventory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/chefbuild/chef/internal/cheferr"
)

// Entry is one cached pack.
type Entry struct {
	Publisher string `json:"publisher"`
	Package   string `json:"package"`
	Platform  string `json:"platform"`
	Arch      string `json:"arch"`
	Channel   string `json:"channel"`
	Revision  string `json:"revision"`
	Path      string `json:"path"`
	AddedAt   int64  `json:"added_at"` // Unix seconds.
	Unpacked  bool   `json:"unpacked"`
}

// Inventory is an in-memory mirror of a JSON state file, guarded by a
// mutex for in-process access and an advisory file lock for cross-process
// mutation.
type Inventory struct {
	path    string
	mu      sync.Mutex
	entries []Entry
}

// Load reads path into memory, creating an empty inventory in memory if
// the file does not yet exist.
func Load(path string) (*Inventory, error) {
	inv := &Inventory{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return inv, nil
	}
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	if err := json.Unmarshal(data, &inv.entries); err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	return inv, nil
}

// GetPack returns the entry matching the identity tuple, if any. Entries
// are few (tens to hundreds), so this is a linear scan.
func (inv *Inventory) GetPack(publisher, pkg, platform, arch, channel, revision string) (Entry, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, e := range inv.entries {
		if e.Publisher == publisher && e.Package == pkg && e.Platform == platform &&
			e.Arch == arch && e.Channel == channel && e.Revision == revision {
			return e, true
		}
	}
	return Entry{}, false
}

// Latest returns the highest-revision entry for (publisher, package,
// channel, arch, platform). Revisions are compared as strings; callers
// that need a numeric comparison should pass zero-padded revisions.
func (inv *Inventory) Latest(publisher, pkg, platform, arch, channel string) (Entry, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	var best Entry
	found := false
	for _, e := range inv.entries {
		if e.Publisher != publisher || e.Package != pkg || e.Platform != platform ||
			e.Arch != arch || e.Channel != channel {
			continue
		}
		if !found || e.Revision > best.Revision {
			best = e
			found = true
		}
	}
	return best, found
}

// Add records a newly fetched pack and appends it to the in-memory list.
// It does not itself persist to disk; callers call [Inventory.Save]
// once their transaction is ready to commit.
func (inv *Inventory) Add(e Entry) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.entries = append(inv.entries, e)
	sort.SliceStable(inv.entries, func(i, j int) bool {
		a, b := inv.entries[i], inv.entries[j]
		if a.Publisher != b.Publisher {
			return a.Publisher < b.Publisher
		}
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		return a.Revision < b.Revision
	})
	return nil
}

// Remove drops every entry matching (publisher, package) from memory. It
// does not itself persist to disk; callers call [Inventory.Save] once
// ready to commit. Removing an entry that does not exist is not an error.
func (inv *Inventory) Remove(publisher, pkg string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	kept := inv.entries[:0]
	for _, e := range inv.entries {
		if e.Publisher == publisher && e.Package == pkg {
			continue
		}
		kept = append(kept, e)
	}
	inv.entries = kept
	return nil
}

// Save serializes the in-memory list to disk with 2-space indent under an
// advisory file lock.
func (inv *Inventory) Save() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(inv.path), 0755); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	lockPath := inv.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	defer lockFile.Close()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	data, err := json.MarshalIndent(inv.entries, "", "  ")
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	tmp := inv.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	if err := os.Rename(tmp, inv.path); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return nil
}

// Entries returns a snapshot of every entry currently held in memory.
func (inv *Inventory) Entries() []Entry {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]Entry, len(inv.entries))
	copy(out, inv.entries)
	return out
}
