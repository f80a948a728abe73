package cvd

import (
	"context"

	"github.com/chefbuild/chef/internal/cvdserver"
	"github.com/chefbuild/chef/internal/protocol"
)

// StartCmd is "cvd start".
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

	srv, err := cvdserver.New(cvdserver.Config{
		Address:             address,
		ContainerdAddress:   RootCmd.Containerd,
		ContainerdNamespace: RootCmd.Namespace,
		Log:                 Log,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	Log.Info("cvd is running")

	<-ctx.Done()

	Log.Info("shutting down")
	return srv.Stop()
}
