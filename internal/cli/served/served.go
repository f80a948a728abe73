// Package served is the command-line front end for served, the package
// install daemon: a kong RootCmd with Start/Version subcommands.
package served

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/chefbuild/chef/internal"
	"github.com/chefbuild/chef/internal/chefog"
)

// RootCmd is the root command for served.
var RootCmd struct {
	Quiet      bool   `short:"q" help:"Suppress informational output."`
	Verbose    bool   `short:"v" help:"Enable verbose output."`
	Debug      bool   `short:"d" help:"Enable debug output."`
	Address    string `short:"a" help:"Listen address (unix path, @abstract-name, or host:port)." placeholder:"ADDR"`
	Inet4      bool   `help:"Treat --address as a TCP (IPv4) address."`
	Inet6      bool   `help:"Treat --address as a TCP (IPv6) address."`
	CVDAddress string `help:"cvd's listen address, for the containers installed commands run in." placeholder:"ADDR"`
	StatePath  string `help:"Inventory state file path." placeholder:"PATH"`

	Start   StartCmd   `cmd:"" help:"Start the daemon."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Execute parses arguments, configures logging, and runs the selected
// subcommand.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	internal.Name = "served"

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("The Chef package install daemon.\n\nRuns install/remove transactions and answers get_command lookups."),
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
var Log = chefog.Configure(chefog.Options{Component: "served"})

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
