package servedserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chefbuild/chef/internal"
	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/inventory"
	"github.com/chefbuild/chef/internal/paths"
	"github.com/chefbuild/chef/internal/proof"
	"github.com/chefbuild/chef/internal/protocol"
	"github.com/chefbuild/chef/internal/registry"
)

// Config configures [New].
type Config struct {
	Address    protocol.Address // Listen address. Empty Value uses [paths.ServedSocket].
	CVDAddress protocol.Address // cvd's listen address. Empty Value uses [paths.CVDSocket].
	Registry   registry.Client
	RootCAPEM  []byte // Empty uses [proof.DefaultRootCA].
	StatePath  string // Inventory state file. Empty uses [paths.ServedStateFile].
	Log        *logrus.Entry
}

// Server is served: it runs install/remove transactions and answers
// get_command lookups.
type Server struct {
	address    protocol.Address
	cvdAddress protocol.Address
	registry   registry.Client
	verifier   *proof.Verifier
	inv        *inventory.Inventory
	log        *logrus.Entry

	listener  net.Listener
	startedAt time.Time
	done      chan struct{}

	mu           sync.Mutex
	transactions map[string]*transaction
	commands     map[string]commandEntry
}

// New loads the inventory and command index and constructs a served
// server. The socket is not opened until [Server.Start].
func New(cfg Config) (*Server, error) {
	address := cfg.Address
	if address.Value == "" {
		address = protocol.Address{Type: protocol.AddressLocal, Value: paths.ServedSocket()}
	}

	cvdAddress := cfg.CVDAddress
	if cvdAddress.Value == "" {
		cvdAddress = protocol.Address{Type: protocol.AddressLocal, Value: paths.CVDSocket()}
	}

	rootCA := cfg.RootCAPEM
	if rootCA == nil {
		rootCA = proof.DefaultRootCA()
	}
	verifier, err := proof.New(rootCA, cfg.Registry)
	if err != nil {
		return nil, err
	}

	statePath := cfg.StatePath
	if statePath == "" {
		statePath = paths.ServedStateFile
	}
	inv, err := inventory.Load(statePath)
	if err != nil {
		return nil, err
	}

	commands, err := loadCommands(commandsFile())
	if err != nil {
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Server{
		address:      address,
		cvdAddress:   cvdAddress,
		registry:     cfg.Registry,
		verifier:     verifier,
		inv:          inv,
		log:          log,
		done:         make(chan struct{}),
		transactions: map[string]*transaction{},
		commands:     commands,
	}, nil
}

// Start opens the listen socket and begins accepting connections.
func (s *Server) Start() error {
	listener, err := listenServed(s.address)
	if err != nil {
		return err
	}

	s.listener = listener
	s.startedAt = time.Now()

	if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err == nil {
		os.WriteFile(paths.ServedPIDFile(), []byte(fmt.Sprintf("%d", os.Getpid())), paths.DefaultFileMode)
	}
	if err := writeProfileScript(); err != nil {
		s.log.WithError(err).Warn("failed to write profile script")
	}

	s.log.WithField("address", s.address.Value).Info("served listening")

	go s.accept()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.address.Type == protocol.AddressLocal && len(s.address.Value) > 0 && s.address.Value[0] != '@' {
		os.Remove(s.address.Value)
	}
	os.Remove(paths.ServedPIDFile())
	return nil
}

// Wait blocks until the server stops.
func (s *Server) Wait() { <-s.done }

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.log.WithError(err).Error("accept error")
				continue
			}
		}
		go s.handle(conn)
	}
}

// handle reads one request envelope and dispatches it. install/remove
// handlers keep conn open to stream progress; every other handler
// responds once and returns, at which point handle closes the
// connection.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return
	}

	env, payload, err := protocol.Decode(line)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	ctx := context.Background()
	emit := func(cmd protocol.Command, p any) { s.respond(conn, cmd, p) }

	switch env.Command {
	case protocol.CmdInstall:
		req, err := protocol.DecodePayload[protocol.InstallRequest](payload)
		if err != nil {
			s.respondError(conn, err)
			return
		}
		s.runInstall(ctx, req, emit)
	case protocol.CmdRemove:
		req, err := protocol.DecodePayload[protocol.RemoveRequest](payload)
		if err != nil {
			s.respondError(conn, err)
			return
		}
		s.runRemove(ctx, req, emit)
	case protocol.CmdGetCommand:
		s.handleGetCommand(conn, payload)
	case protocol.CmdStatus:
		s.handleStatus(conn)
	case protocol.CmdShutdown:
		s.handleShutdown(conn)
	default:
		s.respondError(conn, cheferr.Wrapf(cheferr.ErrInvalidArgument, "unknown command: %s", env.Command))
	}
}

func (s *Server) respond(conn net.Conn, cmd protocol.Command, payload any) {
	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		s.log.WithError(err).Error("encode response failed")
		return
	}
	data = append(data, '\n')
	conn.Write(data)
}

func (s *Server) respondError(conn net.Conn, err error) {
	data, encErr := protocol.EncodeError(err)
	if encErr != nil {
		s.log.WithError(encErr).Error("encode error response failed")
		return
	}
	data = append(data, '\n')
	conn.Write(data)
}

func (s *Server) handleGetCommand(conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.GetCommandRequest](payload)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	record, ok := s.lookupCommand(req.InvokedPath)
	if !ok {
		s.respondError(conn, cheferr.Wrapf(cheferr.ErrNotFound, "no installed command for %s", req.InvokedPath))
		return
	}
	s.respond(conn, protocol.CmdOK, &record)
}

func (s *Server) handleStatus(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	s.log.Info("shutdown requested")
	go s.Stop()
}

// profileScript exports CHEF_HOME and puts installed commands on PATH
// for every login shell.
const profileScript = `export CHEF_HOME=/chef
export PATH="$CHEF_HOME/bin:$PATH"
`

// writeProfileScript installs /etc/profile.d/chef.sh once; an existing
// script is left untouched.
func writeProfileScript() error {
	if _, err := os.Stat(paths.ProfileScript); err == nil {
		return nil
	}
	return os.WriteFile(paths.ProfileScript, []byte(profileScript), 0755)
}

// listenServed opens address, creating the runtime directory for a
// filesystem-backed local socket (mirrors cvdserver's listen; served and
// cvd are separate processes with separate sockets, so the setup isn't
// shared code, just the same idiom).
func listenServed(address protocol.Address) (net.Listener, error) {
	switch address.Type {
	case protocol.AddressInet4:
		return net.Listen("tcp4", address.Value)
	case protocol.AddressInet6:
		return net.Listen("tcp6", address.Value)
	default:
		if len(address.Value) == 0 || address.Value[0] != '@' {
			if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err != nil {
				return nil, cheferr.Wrap(cheferr.ErrInternal, err)
			}
			os.Remove(address.Value)
		}
		listener, err := net.Listen("unix", address.Value)
		if err != nil {
			return nil, cheferr.Wrapf(cheferr.ErrInternal, "listen on %s: %v", address.Value, err)
		}
		if len(address.Value) > 0 && address.Value[0] != '@' {
			os.Chmod(address.Value, 0660)
		}
		return listener, nil
	}
}
