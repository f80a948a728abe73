// Package bpflsm is the central BPF-LSM policy manager. One
// [Manager] is loaded per daemon process and owns the pinned policy_map;
// containers never touch the map directly, they hold the (cgroup id)
// handle the manager indexes entries by. When the kernel lacks BPF-LSM
// support (or the pin path is absent) [Load] returns [ErrUnavailable]
// and the caller falls back to seccomp-only enforcement; this is never
// fatal.
package bpflsm

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/cilium/ebpf"

	"github.com/chefbuild/chef/internal/cheferr"
)

// ErrUnavailable is returned by [Load] when BPF-LSM cannot be used on
// this host (old kernel, "bpf" absent from the LSM boot list, or the map
// was never pinned by a privileged installer step).
var ErrUnavailable = errors.New("bpf-lsm unavailable")

// maxEntries is the map's capacity.
const maxEntries = 10240

// policyKey mirrors the BPF map key layout: {cgroup_id, dev, ino}, all
// u64, packed with no padding.
type policyKey struct {
	CgroupID uint64
	Dev      uint64
	Ino      uint64
}

// policyValue mirrors the BPF map value layout: {allow_mask: u32} where
// bit0=read, bit1=write, bit2=exec.
type policyValue struct {
	AllowMask uint32
}

// Manager owns the pinned policy_map for the daemon's lifetime.
type Manager struct {
	m *ebpf.Map
}

// Load pins or loads the policy_map at pinPath. If the map does not
// exist and cannot be created (missing BPF-LSM support, insufficient
// privilege, or the fs/bpf mount is absent), it returns
// [ErrUnavailable] rather than an error the caller must treat as fatal.
func Load(pinPath string) (*Manager, error) {
	if m, err := ebpf.LoadPinnedMap(pinPath, nil); err == nil {
		return &Manager{m: m}, nil
	}

	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "policy_map",
		Type:       ebpf.Hash,
		KeySize:    24, // 3 x uint64
		ValueSize:  4,  // uint32
		MaxEntries: maxEntries,
	})
	if err != nil {
		return nil, ErrUnavailable
	}

	if err := os.MkdirAll(filepath.Dir(pinPath), 0755); err != nil {
		m.Close()
		return nil, ErrUnavailable
	}
	if err := m.Pin(pinPath); err != nil {
		m.Close()
		return nil, ErrUnavailable
	}

	return &Manager{m: m}, nil
}

// Close unpins and releases the map. Only ever called at daemon
// shutdown; individual containers release entries via [Manager.Evict].
func (mgr *Manager) Close() error {
	return mgr.m.Close()
}

// Insert installs or replaces the policy entry for (cgroupID, dev, ino)
// with the given allow mask.
func (mgr *Manager) Insert(cgroupID, dev, ino uint64, allowMask uint32) error {
	key := policyKey{CgroupID: cgroupID, Dev: dev, Ino: ino}
	val := policyValue{AllowMask: allowMask}
	if err := mgr.m.Put(&key, &val); err != nil {
		return cheferr.Wrap(cheferr.ErrResourceExhausted, err)
	}
	return nil
}

// Evict removes every policy entry tagged with cgroupID, enumerating
// the map with GetNextKey and deleting entries matching this
// container's cgroup id.
func (mgr *Manager) Evict(cgroupID uint64) error {
	var stale []policyKey

	var next policyKey
	entries := mgr.m.Iterate()
	for entries.Next(&next, new(policyValue)) {
		if next.CgroupID == cgroupID {
			stale = append(stale, next)
		}
	}
	if err := entries.Err(); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	for _, k := range stale {
		if err := mgr.m.Delete(&k); err != nil && !errors.Is(err, ebpf.ErrKeyNotExist) {
			return cheferr.Wrap(cheferr.ErrInternal, err)
		}
	}
	return nil
}
