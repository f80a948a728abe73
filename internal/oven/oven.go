package oven

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/chefos"
	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/runtime"
)

// BackendData is the common input every backend dispatches against.
type BackendData struct {
	Source           string // Container-internal source directory.
	Build            string // Container-internal build directory.
	Install          string // Container-internal install prefix.
	Toolchains       string // Container-internal toolchains directory.
	BuildIngredients string // Container-internal build-ingredients directory.

	Platform   string
	Arch       string
	RecipeName string
	Profile    string
	Arguments  string
	Env        []string

	InTree   bool // make backend: build in the source tree.
	Parallel bool // make backend: honor -j<cpu-count>.

	// StagingDir is a host-side scratch directory the backend may use to
	// compose a file (a cross-file, a config.site) before uploading it
	// into the container at the matching container-internal path.
	StagingDir string
}

// Result is what a backend's run produced.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Run dispatches step to its backend and executes it inside ctr.
func Run(ctx context.Context, ctr *runtime.Container, step manifest.Step, data BackendData) (*Result, error) {
	switch step.Backend {
	case "cmake":
		return runCMake(ctx, ctr, step, data)
	case "meson":
		return runMeson(ctx, ctr, step, data)
	case "make":
		return runMake(ctx, ctr, step, data)
	case "configure":
		return runConfigure(ctx, ctr, step, data)
	case "script":
		return runScript(ctx, ctr, step, data)
	default:
		return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "unknown oven backend %q", step.Backend)
	}
}

// spawn runs argv inside ctr with data's composed environment and
// returns a [Result], translating a non-zero exit into
// [cheferr.ErrInternal] the same way kitchen's checkpointed setup steps
// do for host-side commands.
func spawn(ctx context.Context, ctr *runtime.Container, data BackendData, workdir string, argv ...string) (*Result, error) {
	res, err := ctr.Spawn(ctx, argv, data.Env, workdir)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return &Result{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr},
			cheferr.Wrapf(cheferr.ErrInternal, "%s exited %d: %s", argv[0], res.ExitCode, res.Stderr)
	}
	return &Result{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}, nil
}

// uploadGenerated writes content to a host-side staging file named name
// and uploads it into the container at containerPath (used by the meson
// and configure backends to deliver a generated file ahead of the
// build tool invocation).
func uploadGenerated(ctx context.Context, ctr *runtime.Container, data BackendData, name, containerPath, content string) error {
	hostPath, err := chefos.WriteScript(data.StagingDir, name, content)
	if err != nil {
		return err
	}
	if err := ctr.MkdirAll(ctx, dirname(containerPath)); err != nil {
		return err
	}
	return ctr.Upload(ctx, hostPath, dirname(containerPath))
}

func dirname(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "."
	}
	if i == 0 {
		return "/"
	}
	return p[:i]
}

// platformDefaultPrefix picks the platform-specific install prefix
// suffix cmake's -DCMAKE_INSTALL_PREFIX composition uses.
func platformDefaultPrefix(install, platform string) string {
	switch {
	case strings.HasPrefix(platform, "darwin"):
		return install
	default:
		return install + "/usr"
	}
}

func cpuJobsFlag() string {
	return "-j" + strconv.Itoa(chefos.CPUCount())
}

// containerBuildIngredientsPkgconfig is where pkgconfig symlinks its
// .pc files so PKG_CONFIG_PATH can point at one directory regardless of
// which ingredient provided them.
func containerBuildIngredientsPkgconfig(buildIngredients string) string {
	return fmt.Sprintf("%s/pkgconfig", buildIngredients)
}
