// Package bake is the command-line front end for bake, the build driver:
// a kong RootCmd with the init/build/pack/clean/run/purge subcommands.
package bake

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/chefbuild/chef/internal"
	"github.com/chefbuild/chef/internal/chefog"
)

// RootCmd is the root command for bake.
var RootCmd struct {
	Quiet   bool `short:"q" help:"Suppress informational output."`
	Verbose bool `short:"v" help:"Enable verbose output."`
	Debug   bool `short:"d" help:"Enable debug output."`

	Recipe string `short:"r" default:"recipe.json" help:"Path to the recipe's JSON form." placeholder:"PATH"`

	Containerd string `help:"containerd socket address." placeholder:"PATH"`
	Namespace  string `help:"containerd namespace." placeholder:"NAME"`
	Platform   string `help:"Target OCI platform, e.g. linux/amd64." placeholder:"PLATFORM"`
	Arch       string `help:"Target architecture." placeholder:"ARCH"`
	OutputDir  string `default:"." help:"Directory packed archives are written into." placeholder:"DIR"`
	Compress   bool   `help:"Register the zstd filter feature on packed archives."`

	Init    InitCmd    `cmd:"" help:"Scaffold a new recipe."`
	Build   BuildCmd   `cmd:"" help:"Run every uncompleted checkpoint for the recipe."`
	Pack    PackCmd    `cmd:"" help:"Pack the recipe's declared outputs into archives."`
	Clean   CleanCmd   `cmd:"" help:"Reset one step's checkpoint (and its dependents)."`
	Run     RunCmd     `cmd:"" help:"Run a command inside the kitchen's container."`
	Purge   PurgeCmd   `cmd:"" help:"Destroy the kitchen's container and delete its working tree."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Execute parses arguments, configures logging, and runs the selected
// subcommand.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	internal.Name = "bake"

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("The Chef build driver.\n\nMaterializes a recipe's kitchen, runs its steps, and packs its outputs."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	Log = configureLogger()

	return kongCtx.Run()
}

// Log is the process-wide structured logger, reconfigured once Execute
// parses flags.
var Log = chefog.Configure(chefog.Options{Component: "bake"})

func configureLogger() *logrus.Entry {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	return chefog.Configure(chefog.Options{
		Component: internal.Name,
		Debug:     debug,
		Quiet:     quiet,
		Verbose:   verbose,
	})
}
