// Package cvd is the command-line front end for cvd, the build-container
// daemon: a kong RootCmd with Start/Version subcommands.
package cvd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/chefbuild/chef/internal"
	"github.com/chefbuild/chef/internal/chefog"
)

// RootCmd is the root command for cvd.
var RootCmd struct {
	Quiet      bool   `short:"q" help:"Suppress informational output."`
	Verbose    bool   `short:"v" help:"Enable verbose output."`
	Debug      bool   `short:"d" help:"Enable debug output."`
	Address    string `short:"a" help:"Listen address (unix path, @abstract-name, or host:port)." placeholder:"ADDR"`
	Inet4      bool   `help:"Treat --address as a TCP (IPv4) address."`
	Inet6      bool   `help:"Treat --address as a TCP (IPv6) address."`
	Containerd string `help:"containerd socket address." placeholder:"PATH"`
	Namespace  string `help:"containerd namespace." placeholder:"NAME"`

	Start   StartCmd   `cmd:"" help:"Start the daemon."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Execute parses arguments, configures logging, and runs the selected
// subcommand.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	internal.Name = "cvd"

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("The Chef build-container daemon.\n\nExposes container lifecycle operations to bake over a local RPC socket."),
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
var Log = chefog.Configure(chefog.Options{Component: "cvd"})

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
