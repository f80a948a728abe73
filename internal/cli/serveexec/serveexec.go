// Package serveexec implements serve-exec, the wrapper binary installed
// commands run through.
//
// A package's commands are installed as symlinks to this same binary
// under /chef/bin; invoked that way, serve-exec resolves its own name
// through served's get_command RPC. The explicit --container/--path/--wdir
// flags are the direct form, used when serve-exec is invoked by its own
// name rather than through a symlink (manual joins, debugging a stuck
// command).
package serveexec

import (
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/chefbuild/chef/internal"
	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/paths"
	"github.com/chefbuild/chef/internal/protocol"
	"github.com/chefbuild/chef/internal/rpcclient"
)

// cli is serve-exec's direct-invocation flag set.
var cli struct {
	Container string   `help:"Container id to join." placeholder:"ID"`
	Path      string   `help:"In-container executable path." placeholder:"PATH"`
	Wdir      string   `help:"In-container working directory." placeholder:"DIR"`
	Args      []string `arg:"" optional:"" help:"Arguments, after --."`

	ServedAddress string `help:"served's listen address." placeholder:"ADDR"`
	CVDAddress    string `help:"cvd's listen address." placeholder:"ADDR"`
}

// Execute resolves the command record (directly or via served's
// get_command RPC) and execs it inside the owning container through cvd.
func Execute() error {
	internal.Name = "serve-exec"

	invoked := filepath.Base(os.Args[0])

	if invoked != "serve-exec" {
		kong.Parse(&cli, kong.Name(invoked))
		return runInvoked(invoked)
	}

	kong.Parse(&cli, kong.Name(internal.Name))
	if cli.Container == "" || cli.Path == "" {
		return cheferr.Wrapf(cheferr.ErrInvalidArgument, "--container and --path are required")
	}
	return join(protocol.CommandRecord{
		ContainerID: cli.Container,
		Path:        cli.Path,
		Args:        cli.Args,
		Cwd:         cli.Wdir,
	})
}

// runInvoked is the symlink path: ask served which container/path/args
// this invoked name resolves to.
func runInvoked(invoked string) error {
	servedAddress := servedAddress()

	var record protocol.CommandRecord
	err := rpcclient.Call(servedAddress, protocol.CmdGetCommand,
		&protocol.GetCommandRequest{InvokedPath: filepath.Join(paths.ChefBin, invoked)},
		&record)
	if err != nil {
		return err
	}

	record.Args = append(append([]string{}, record.Args...), cli.Args...)
	return join(record)
}

// join asks cvd to spawn record's command inside its owning container and
// exits the process with the same exit code the in-container command
// used.
func join(record protocol.CommandRecord) error {
	var result protocol.ContainerSpawnResult
	err := rpcclient.Call(cvdAddress(), protocol.CmdContainerExec,
		&protocol.ContainerSpawnRequest{
			ID:      record.ContainerID,
			Command: append([]string{record.Path}, record.Args...),
			Workdir: record.Cwd,
		}, &result)
	if err != nil {
		return err
	}

	os.Stdout.WriteString(result.Stdout)
	os.Stderr.WriteString(result.Stderr)
	os.Exit(result.ExitCode)
	return nil
}

func servedAddress() protocol.Address {
	if cli.ServedAddress != "" {
		return protocol.Address{Type: protocol.AddressLocal, Value: cli.ServedAddress}
	}
	return protocol.Address{Type: protocol.AddressLocal, Value: paths.ServedSocket()}
}

func cvdAddress() protocol.Address {
	if cli.CVDAddress != "" {
		return protocol.Address{Type: protocol.AddressLocal, Value: cli.CVDAddress}
	}
	return protocol.Address{Type: protocol.AddressLocal, Value: paths.CVDSocket()}
}
