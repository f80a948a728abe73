package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	daemonName = "chef"

	// DefaultDirMode is applied to directories Chef creates.
	DefaultDirMode os.FileMode = 0755
	// DefaultFileMode is applied to files Chef creates.
	DefaultFileMode os.FileMode = 0644
)

// Runtime is the directory for runtime files (sockets, PIDs). Prefers
// XDG_RUNTIME_DIR, falling back to the system temp directory.
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, daemonName)
	}
	return filepath.Join(xdg.CacheHome, daemonName, "run")
}

// CVDSocket is the default Unix socket cvd listens on and bake dials.
func CVDSocket() string {
	return filepath.Join(Runtime(), "cvd.sock")
}

// ServedSocket is the default Unix socket served listens on.
func ServedSocket() string {
	return filepath.Join(Runtime(), "served.sock")
}

// CVDPIDFile is cvd's PID file.
func CVDPIDFile() string {
	return filepath.Join(Runtime(), "cvd.pid")
}

// ServedPIDFile is served's PID file.
func ServedPIDFile() string {
	return filepath.Join(Runtime(), "served.pid")
}

// ContainerSocket is the per-container control socket a helper process
// joins through.
func ContainerSocket(id string) string {
	return filepath.Join("/run", daemonName, "cvd", "containers", id)
}

// BPFPolicyMapPin is the pinned path of the central BPF-LSM policy map.
const BPFPolicyMapPin = "/sys/fs/bpf/cvd/policy_map"

// ProfileScript is the path of the shell profile snippet written once at
// install time.
const ProfileScript = "/etc/profile.d/chef.sh"

// ServedStateFile is served's inventory cache.
const ServedStateFile = "/var/chef/state.json"

// PacksDir, MountDir, ChefBin are the host directories served manages
// installed packages under.
const (
	PacksDir = "/var/chef/packs"
	MountDir = "/var/chef/mnt"
	ChefBin  = "/chef/bin"
)

// StoreStateFile is bake's local fetch cache, rooted under the user's data
// directory rather than /var (the store is per-user, served's inventory is
// host-wide).
func StoreStateFile() string {
	return filepath.Join(xdg.DataHome, daemonName, "store", "state.json")
}

// KitchenRoot is the per-recipe build environment directory.
func KitchenRoot(recipeUUID string) string {
	return filepath.Join(xdg.DataHome, daemonName, "kitchen", recipeUUID, "ns")
}

// Container-internal paths. These are constants, not functions: they name
// locations inside the container's own filesystem namespace, never the
// host's.
const (
	ContainerProject = "/chef/project"
	ContainerInstall = "/chef/install"
	ContainerBuild   = "/chef/build"
	ContainerIngr    = "/chef/ingredients"
	ContainerTool    = "/chef/toolchains"
	ContainerBakectl = "/usr/bin/bakectl"
)

// ContainerBuildDir returns the platform/arch-scoped build directory
// inside the container.
func ContainerBuildDir(platform, arch string) string {
	return filepath.Join(ContainerBuild, platform, arch)
}

// ContainerIngredientsDir returns the platform/arch-scoped ingredients
// directory inside the container.
func ContainerIngredientsDir(platform, arch string) string {
	return filepath.Join(ContainerIngr, platform, arch)
}
