// Package manifest defines the recipe, ingredient, and pack data model.
// Recipe authoring happens in YAML, through a front end that is out of
// scope for this module; what that front end hands bake is the JSON
// form [Load] reads, the same on-the-wire shape this pack already uses
// for every other persisted structure (inventory entries, the command
// index, pack headers).
package manifest

import (
	"encoding/json"
	"os"

	"github.com/chefbuild/chef/internal/cheferr"
)

// PackageType classifies a pack's role.
type PackageType string

const (
	Application PackageType = "APPLICATION"
	Ingredient  PackageType = "INGREDIENT"
	Toolchain   PackageType = "TOOLCHAIN"
)

// SourceType classifies where an ingredient reference resolves from.
type SourceType string

const (
	SourceRepo SourceType = "REPO"
	SourceURL  SourceType = "URL"
	SourceFile SourceType = "FILE"
)

// StepKind tags a step's purpose.
type StepKind string

const (
	StepGenerate StepKind = "GENERATE"
	StepBuild    StepKind = "BUILD"
	StepScript   StepKind = "SCRIPT"
)

// Recipe is project metadata plus an ordered sequence of parts. Parsed
// once at CLI entry and treated as immutable thereafter.
type Recipe struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Summary  string `json:"summary"`
	License  string `json:"license"`
	Author   string `json:"author"`
	Homepage string `json:"homepage"`
	Parts    []Part `json:"parts"`
	Packs    []Pack `json:"packs"`

	// HostIngredients, BuildIngredients, and RuntimeIngredients are the
	// three ingredient areas the kitchen materializes before running any
	// part's steps.
	HostIngredients    []IngredientReference `json:"host_ingredients"`
	BuildIngredients   []IngredientReference `json:"build_ingredients"`
	RuntimeIngredients []IngredientReference `json:"runtime_ingredients"`

	// SetupHook is a user-provided shell script run once inside the
	// container after ingredients are unpacked.
	SetupHook string `json:"setup_hook"`
}

// Load reads a recipe from its JSON form: the shape an external YAML
// front end emits once it has parsed and validated a recipe file.
// manifest never reads YAML itself.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}
	var r Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	return &r, nil
}

// Part groups an ordered sequence of steps under one toolchain.
type Part struct {
	Name      string `json:"name"`
	Toolchain string `json:"toolchain"`
	Steps     []Step `json:"steps"`
}

// Step is one unit of recipe execution: a backend invocation tagged with a
// kind, carrying its own arguments, environment, and explicit ordering
// dependencies within the same recipe.
type Step struct {
	Name      string            `json:"name"`
	Kind      StepKind          `json:"kind"`
	Backend   string            `json:"backend"` // cmake, meson, make, configure, script
	Arguments string            `json:"arguments"`
	Env       map[string]string `json:"env"`
	DependsOn []string          `json:"depends_on"`
	InTree    bool              `json:"in_tree"`  // make backend: build in the source tree rather than a separate build dir.
	Parallel  bool              `json:"parallel"` // make backend: honor -j<cpu-count>.
}

// IngredientReference names a binary ingredient to resolve and optionally
// fold into a pack.
type IngredientReference struct {
	Name           string     `json:"name"`
	Channel        string     `json:"channel"`
	VersionRange   string     `json:"version_range"`
	Platform       string     `json:"platform"`
	Arch           string     `json:"arch"`
	Source         SourceType `json:"source"`
	IncludeInPack  bool       `json:"include_in_pack"`
	FilterPatterns []string   `json:"filter_patterns"`
}

// Publisher and Package split name into ("publisher", "package") when
// Source is [SourceRepo]: a REPO-sourced name must split as
// publisher/package.
func (r IngredientReference) Publisher() (publisher, pkg string, ok bool) {
	return splitPublisherPackage(r.Name)
}

// Command describes one entry-point command a pack exposes.
type Command struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	Executable      string `json:"executable"` // Relative to the install root.
	ArgTemplate     string `json:"arg_template"`
	Icon            string `json:"icon"`
	SystemLibraryOK bool   `json:"system_library_ok"` // Exempt from the system-library sandbox restriction.
}

// Pack declares one build output: its type, filter patterns selecting
// which files from the install tree it includes, and its command
// manifest.
type Pack struct {
	Name     string      `json:"name"`
	Type     PackageType `json:"type"`
	Filters  []string    `json:"filters"`
	Commands []Command   `json:"commands"`
}

func splitPublisherPackage(name string) (publisher, pkg string, ok bool) {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return name[:i], name[i+1:], true
		}
	}
	return "", "", false
}
