package cvdserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/chefos"
	"github.com/chefbuild/chef/internal/policy"
)

// cgroupRoot is the standard unified cgroup v2 mountpoint.
const cgroupRoot = "/sys/fs/cgroup"

// populatePolicy walks chroot and inserts one policy_map entry per file
// matching a rule in the profile carried in profileBlob. A nil profileBlob or an
// unavailable BPF-LSM manager is a no-op: enforcement then relies solely
// on the seccomp filter already installed on the container.
func (s *Server) populatePolicy(ctx context.Context, containerID, chroot string, profileBlob []byte) error {
	if s.bpf == nil || len(profileBlob) == 0 {
		return nil
	}

	profile, err := policy.Import(profileBlob)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}

	pid, err := s.runtime.Container(containerID).Pid(ctx)
	if err != nil {
		return err
	}

	cgroupID, err := cgroupIDForPid(pid)
	if err != nil {
		return err
	}

	count := 0
	err = chefos.Walk(chroot, func(e chefos.Entry) error {
		if e.RelPath == "." || e.IsDir {
			return nil
		}

		// Profile patterns name container-absolute paths; the walk
		// yields chroot-relative ones.
		mask := maskFor(profile, "/"+e.RelPath)
		if mask == 0 {
			return nil
		}

		stat, ok := e.Info.Sys().(*syscall.Stat_t)
		if !ok {
			return nil
		}

		if err := s.bpf.Insert(cgroupID, uint64(stat.Dev), stat.Ino, uint32(mask)); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	s.mu.Lock()
	s.cgroups[containerID] = cgroupID
	s.chroots[containerID] = chroot
	s.mu.Unlock()

	s.log.WithField("container", containerID).WithField("entries", count).Debug("populated policy_map")
	return nil
}

// maskFor checks each permission bit independently so a file can, say,
// be readable but not writable under the profile.
func maskFor(p *policy.Profile, relPath string) uint8 {
	var mask uint8
	for _, bit := range []uint8{policy.Read, policy.Write, policy.Exec} {
		if p.Match(relPath, bit) {
			mask |= bit
		}
	}
	return mask
}

// evictPolicy drops every policy_map entry tagged with containerID's
// cgroup, if one was ever recorded.
func (s *Server) evictPolicy(containerID string) error {
	if s.bpf == nil {
		return nil
	}

	s.mu.Lock()
	cgroupID, ok := s.cgroups[containerID]
	delete(s.cgroups, containerID)
	delete(s.chroots, containerID)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return s.bpf.Evict(cgroupID)
}

// chrootFor returns the chroot path recorded for containerID at create
// time, if any.
func (s *Server) chrootFor(containerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chroot, ok := s.chroots[containerID]
	return chroot, ok
}

// cgroupIDForPid resolves pid's cgroup v2 inode number, the same value
// the kernel's bpf_get_current_cgroup_id() returns for a task running in
// that cgroup: read the membership record from /proc/<pid>/cgroup
// ("0::/path/to/cgroup") and stat the corresponding directory under
// /sys/fs/cgroup.
func cgroupIDForPid(pid uint32) (uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	line := strings.TrimSpace(string(data))
	// cgroup v2 hybrid-mode hosts may report multiple lines; the unified
	// hierarchy record always starts with "0::".
	for _, l := range strings.Split(line, "\n") {
		if strings.HasPrefix(l, "0::") {
			line = l
			break
		}
	}

	parts := strings.SplitN(line, ":", 3)
	if len(parts) != 3 {
		return 0, cheferr.Wrapf(cheferr.ErrInternal, "malformed cgroup record: %q", line)
	}

	dir := filepath.Join(cgroupRoot, parts[2])
	info, err := os.Stat(dir)
	if err != nil {
		return 0, cheferr.Wrap(cheferr.ErrInternal, err)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, cheferr.Wrapf(cheferr.ErrInternal, "cannot stat cgroup directory %s", dir)
	}
	return stat.Ino, nil
}
