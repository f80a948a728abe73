// Package rpcclient is a minimal client for the wire protocol
// internal/protocol defines: dial one of cvd/served's addresses, write a
// single envelope, read the one response envelope back. serve-exec uses
// it to reach both daemons; served uses it to drive cvd's container
// lifecycle for installed packages.
package rpcclient

import (
	"bufio"
	"encoding/json"
	"net"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/protocol"
)

// Call dials address, sends one (cmd, req) envelope, and decodes the
// response payload into resp (which may be nil to discard it).
func Call(address protocol.Address, cmd protocol.Command, req any, resp any) error {
	network := "unix"
	switch address.Type {
	case protocol.AddressInet4:
		network = "tcp4"
	case protocol.AddressInet6:
		network = "tcp6"
	}

	conn, err := net.Dial(network, address.Value)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrNetworkFailure, err)
	}
	defer conn.Close()

	frame, err := protocol.Encode(cmd, req)
	if err != nil {
		return err
	}
	frame = append(frame, '\n')
	if _, err := conn.Write(frame); err != nil {
		return cheferr.Wrap(cheferr.ErrNetworkFailure, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return cheferr.Wrap(cheferr.ErrNetworkFailure, err)
	}

	env, payload, err := protocol.Decode(line)
	if err != nil {
		return err
	}
	if env.Command == protocol.CmdError {
		var errResult protocol.ErrorResult
		if err := json.Unmarshal(payload, &errResult); err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, err)
		}
		return cheferr.Wrapf(cheferr.ErrInternal, "%s: %s", errResult.Category, errResult.Message)
	}

	if resp == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, resp)
}
