package oven

import (
	"context"
	"fmt"

	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/runtime"
)

// configSiteTemplate synthesizes ~/local/share/config.site with
// CFLAGS/CPPFLAGS/LDFLAGS pointing into the ingredients.
const configSiteTemplate = `CFLAGS="-I%[1]s/include $CFLAGS"
CPPFLAGS="-I%[1]s/include $CPPFLAGS"
LDFLAGS="-L%[1]s/lib $LDFLAGS"
`

// runConfigure uploads config.site, then spawns
// "configure --prefix=<install> <args>".
func runConfigure(ctx context.Context, ctr *runtime.Container, step manifest.Step, data BackendData) (*Result, error) {
	if err := ctr.MkdirAll(ctx, data.Build); err != nil {
		return nil, err
	}

	// $HOME is /chef inside the container.
	configSitePath := "/chef/local/share/config.site"
	content := fmt.Sprintf(configSiteTemplate, data.BuildIngredients)
	if err := uploadGenerated(ctx, ctr, data, "config.site", configSitePath, content); err != nil {
		return nil, err
	}

	env := append(append([]string{}, data.Env...), "CONFIG_SITE="+configSitePath)

	argv := append([]string{
		data.Source + "/configure",
		"--prefix=" + data.Install,
	}, splitArgs(data.Arguments)...)

	scoped := data
	scoped.Env = env
	return spawn(ctx, ctr, scoped, data.Build, argv...)
}
