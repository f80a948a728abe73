package oven

import (
	"context"
	"strings"

	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/runtime"
)

// mesonCrossFileTemplate is variable-expanded against data before being
// uploaded into the container.
const mesonCrossFileTemplate = `[binaries]
c = 'cc'
cpp = 'c++'
pkgconfig = 'pkg-config'

[built-in options]
prefix = '{{install}}'

[properties]
pkg_config_libdir = '{{pkgconfig}}'

[host_machine]
system = 'linux'
cpu_family = '{{arch}}'
cpu = '{{arch}}'
endian = 'little'
`

// runMeson renders the cross-file, uploads it, and spawns
// "meson setup --cross-file <file> <build> <src> <args>".
func runMeson(ctx context.Context, ctr *runtime.Container, step manifest.Step, data BackendData) (*Result, error) {
	if err := ctr.MkdirAll(ctx, data.Build); err != nil {
		return nil, err
	}

	crossFilePath := data.Build + "/cross-file.txt"
	content := expandMesonTemplate(mesonCrossFileTemplate, data)
	if err := uploadGenerated(ctx, ctr, data, "cross-file.txt", crossFilePath, content); err != nil {
		return nil, err
	}

	argv := append([]string{"meson", "setup", "--cross-file", crossFilePath, data.Build, data.Source}, splitArgs(data.Arguments)...)
	return spawn(ctx, ctr, data, data.Source, argv...)
}

func expandMesonTemplate(tmpl string, data BackendData) string {
	r := strings.NewReplacer(
		"{{install}}", data.Install,
		"{{pkgconfig}}", containerBuildIngredientsPkgconfig(data.BuildIngredients),
		"{{arch}}", data.Arch,
	)
	return r.Replace(tmpl)
}
