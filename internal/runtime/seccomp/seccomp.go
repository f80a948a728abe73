// Package seccomp builds the OCI seccomp filter a container's capability
// grant implies. The actual BPF filter is loaded by the OCI runtime
// (runc, via containerd) from the [specs.LinuxSeccomp] this package
// returns; libseccomp-golang is used here only to resolve syscall names
// to numbers so a typo in one of the allowlists below fails at daemon
// startup instead of silently admitting or denying the wrong call.
package seccomp

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"
	libseccomp "github.com/seccomp/libseccomp-golang"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/protocol"
)

// baseAllowlist is permitted regardless of granted capabilities: the
// minimum a build toolchain needs to read/write files it already has
// descriptors for, allocate memory, and exit.
var baseAllowlist = []string{
	"read", "write", "readv", "writev", "pread64", "pwrite64",
	"close", "lseek", "fstat", "fstatfs", "ftruncate",
	"mmap", "munmap", "mprotect", "madvise", "brk",
	"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "sigaltstack",
	"exit", "exit_group", "restart_syscall",
	"futex", "sched_yield", "sched_getaffinity", "getrandom",
	"clock_gettime", "clock_nanosleep", "nanosleep", "gettimeofday",
	"getpid", "gettid", "getppid", "getuid", "geteuid", "getgid", "getegid",
	"set_tid_address", "set_robust_list", "rseq", "prlimit64",
	"arch_prctl", "uname", "sysinfo",
}

// capabilityAllowlist extends the base allowlist per granted capability.
var capabilityAllowlist = map[protocol.Capability][]string{
	protocol.CapFilesystem: {
		"open", "openat", "openat2", "stat", "lstat", "newfstatat", "access", "faccessat", "faccessat2",
		"getdents64", "readlink", "readlinkat", "unlink", "unlinkat", "rename", "renameat", "renameat2",
		"mkdir", "mkdirat", "rmdir", "chmod", "fchmod", "fchmodat", "chown", "fchown", "fchownat",
		"symlink", "symlinkat", "link", "linkat", "statx", "utimensat", "dup", "dup2", "dup3",
		"ioctl", "fcntl", "flock", "chdir", "fchdir", "getcwd",
	},
	protocol.CapProcessControl: {
		"clone", "clone3", "fork", "vfork", "execve", "execveat", "wait4", "waitid",
		"kill", "tgkill", "prctl", "setpgid", "getpgid", "setsid", "getsid",
		"pipe", "pipe2", "poll", "ppoll", "select", "pselect6", "epoll_create1", "epoll_ctl", "epoll_wait",
	},
	protocol.CapNetwork: {
		"socket", "connect", "bind", "listen", "accept", "accept4", "sendto", "recvfrom",
		"sendmsg", "recvmsg", "getsockname", "getpeername", "getsockopt", "setsockopt", "shutdown",
	},
}

// Build returns the seccomp filter for a container granted caps: a
// default-deny (errno) action with an allowlist formed from the base
// syscalls plus every syscall implied by a granted capability.
func Build(caps []protocol.Capability) (*specs.LinuxSeccomp, error) {
	names := append([]string{}, baseAllowlist...)
	for _, cap := range caps {
		extra, ok := capabilityAllowlist[cap]
		if !ok {
			return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "unknown capability %q", cap)
		}
		names = append(names, extra...)
	}

	syscalls := make([]specs.LinuxSyscall, 0, len(names))
	for _, name := range names {
		if _, err := libseccomp.GetSyscallFromName(name); err != nil {
			return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "unknown syscall %q in allowlist", name)
		}
		syscalls = append(syscalls, specs.LinuxSyscall{
			Names:  []string{name},
			Action: specs.ActAllow,
		})
	}

	return &specs.LinuxSeccomp{
		DefaultAction: specs.ActErrno,
		Architectures: []specs.Arch{specs.ArchX86_64, specs.ArchAARCH64},
		Syscalls:      syscalls,
	}, nil
}
