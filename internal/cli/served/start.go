package served

import (
	"context"

	"github.com/chefbuild/chef/internal/protocol"
	"github.com/chefbuild/chef/internal/servedserver"
)

// StartCmd is "served start".
//
// The registry client that resolves and fetches packs over the network is
// out of scope for this module; a real deployment links a concrete
// registry.Client into this binary build. Run here leaves it nil, which is
// sufficient to answer status and get_command lookups against whatever is
// already in the inventory, but install/remove transactions that need to
// resolve a new revision will fail until one is wired in.
type StartCmd struct{}

// Run starts the listen socket and blocks until ctx is cancelled.
func (c *StartCmd) Run(ctx context.Context) error {
	address := protocol.Address{Type: protocol.AddressLocal, Value: RootCmd.Address}
	switch {
	case RootCmd.Inet4:
		address.Type = protocol.AddressInet4
	case RootCmd.Inet6:
		address.Type = protocol.AddressInet6
	}

	cvdAddress := protocol.Address{Type: protocol.AddressLocal, Value: RootCmd.CVDAddress}

	srv, err := servedserver.New(servedserver.Config{
		Address:    address,
		CVDAddress: cvdAddress,
		StatePath:  RootCmd.StatePath,
		Log:        Log,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	Log.Info("served is running")

	<-ctx.Done()

	Log.Info("shutting down")
	return srv.Stop()
}
