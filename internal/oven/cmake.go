package oven

import (
	"context"
	"fmt"
	"strings"

	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/runtime"
)

// runCMake composes the cmake invocation:
// inject/replace -DCMAKE_INSTALL_PREFIX and -DCMAKE_PREFIX_PATH, then
// spawn "cmake -S <src> -B <build> <args>".
func runCMake(ctx context.Context, ctr *runtime.Container, step manifest.Step, data BackendData) (*Result, error) {
	if err := ctr.MkdirAll(ctx, data.Build); err != nil {
		return nil, err
	}

	prefix := platformDefaultPrefix(data.Install, data.Platform)
	prefixPath := fmt.Sprintf("%s:%s/usr", data.BuildIngredients, data.BuildIngredients)

	args := splitArgs(data.Arguments)
	args = setOrAppendDefine(args, "CMAKE_INSTALL_PREFIX", prefix)
	args = setOrAppendDefine(args, "CMAKE_PREFIX_PATH", prefixPath)

	argv := append([]string{"cmake", "-S", data.Source, "-B", data.Build}, args...)
	return spawn(ctx, ctr, data, data.Build, argv...)
}

// setOrAppendDefine replaces an existing "-D<key>=..." entry in args, or
// appends a new one if key is not already defined.
func setOrAppendDefine(args []string, key, value string) []string {
	prefix := "-D" + key + "="
	for i, a := range args {
		if strings.HasPrefix(a, prefix) {
			args[i] = prefix + value
			return args
		}
	}
	return append(args, prefix+value)
}

// splitArgs tokenizes a recipe step's free-form argument string on
// whitespace. Recipes that need quoting use the script backend instead.
func splitArgs(arguments string) []string {
	return strings.Fields(arguments)
}
