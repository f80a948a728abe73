package internal

import (
	"fmt"
	"runtime"
	"strings"
)

const (
	// String reported for any build variable a pipeline did not set.
	defaultUndefined = "(undefined)"

	// Version string reported for local (non-pipeline) builds.
	defaultLocalBuild = "(local)"

	// Branch whose name is elided from version strings.
	mainBranch = "main"
)

// Build identity, injected via ldflags by the release pipeline. A local
// `go build` leaves all three empty.
var (
	version   = ""
	stage     = ""
	gitCommit = ""

	rawQuiet   = "false"
	rawDebug   = "false"
	rawVerbose = "false"

	// Name is the program name reported in --help and startup logs. Each of
	// bake, cvd, served, and serve-exec sets this in its own main() before
	// touching the CLI or logging layers.
	Name = "chef"
)

// Returns the current version with any "v"/"V" prefix stripped, or
// "(undefined)" when the build did not set one.
func Version() string {
	v := strings.TrimSpace(version)
	if v == "" {
		return defaultUndefined
	}
	return strings.TrimPrefix(strings.ToLower(v), "v")
}

// Returns the development stage, normally the git branch the build came
// from, or "(undefined)" when unset.
func Stage() string {
	s := strings.TrimSpace(stage)
	if s == "" {
		return defaultUndefined
	}
	return strings.ToLower(s)
}

// Returns the git commit hash, or "(undefined)" when unset.
func GitCommit() string {
	c := strings.TrimSpace(gitCommit)
	if c == "" {
		return defaultUndefined
	}
	return c
}

// Returns the build architecture.
func Arch() string {
	return runtime.GOARCH
}

// Returns true if this is a local (non-pipeline) build: any of the
// version, commit, or stage variables is unset.
func IsLocal() bool {
	return strings.TrimSpace(version) == "" ||
		strings.TrimSpace(gitCommit) == "" ||
		strings.TrimSpace(stage) == ""
}

// Returns a detailed version string: "(local)" for local builds,
// otherwise "<version>[+<stage>] <git-commit> [<arch>]" with the stage
// omitted on the main branch.
func VersionString() string {
	if IsLocal() {
		return defaultLocalBuild
	}

	s := Stage()
	if s == mainBranch {
		s = ""
	} else {
		s = "+" + s
	}

	return fmt.Sprintf("%s%s %s [%s]", Version(), s, GitCommit(), Arch())
}
