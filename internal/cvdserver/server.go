package cvdserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chefbuild/chef/internal"
	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/paths"
	"github.com/chefbuild/chef/internal/policy/bpflsm"
	"github.com/chefbuild/chef/internal/protocol"
	"github.com/chefbuild/chef/internal/runtime"
)

const (
	// socketGroup is the group granted access to a local socket without
	// owning the process.
	socketGroup = "chef"
	// socketMode is applied to a local Unix socket file.
	socketMode = 0660
)

// Config configures [New].
type Config struct {
	Address             protocol.Address // Listen address. Empty Value uses [paths.CVDSocket].
	ContainerdAddress   string           // Containerd socket address. Empty uses [DefaultContainerdAddress].
	ContainerdNamespace string           // Containerd namespace. Empty uses [DefaultContainerdNamespace].
	PolicyPin           string           // BPF-LSM policy_map pin path. Empty uses [paths.BPFPolicyMapPin].
	Log                 *logrus.Entry
}

const (
	DefaultContainerdAddress   = "/run/containerd/containerd.sock"
	DefaultContainerdNamespace = "chef"
)

// Server is cvd: a socket server dispatching container.* RPCs against a
// containerd-backed runtime.
type Server struct {
	address   protocol.Address
	runtime   *runtime.Runtime
	bpf       *bpflsm.Manager // nil if BPF-LSM is unavailable; seccomp-only fallback.
	log       *logrus.Entry
	listener  net.Listener
	startedAt time.Time
	done      chan struct{}

	mu       sync.Mutex
	commands int
	cgroups  map[string]uint64 // container id -> cgroup id, tracked for eviction at destroy
	chroots  map[string]string // container id -> chroot path, needed to re-walk on container.update
}

// New creates a cvd server. The socket is not opened until [Server.Start].
func New(cfg Config) (*Server, error) {
	address := cfg.Address
	if address.Value == "" {
		address = protocol.Address{Type: protocol.AddressLocal, Value: paths.CVDSocket()}
	}

	containerdAddress := cfg.ContainerdAddress
	if containerdAddress == "" {
		containerdAddress = DefaultContainerdAddress
	}
	containerdNamespace := cfg.ContainerdNamespace
	if containerdNamespace == "" {
		containerdNamespace = DefaultContainerdNamespace
	}

	rt, err := runtime.New(containerdAddress, containerdNamespace)
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	pin := cfg.PolicyPin
	if pin == "" {
		pin = paths.BPFPolicyMapPin
	}
	bpf, err := bpflsm.Load(pin)
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err != nil {
		log.WithError(err).Info("BPF-LSM unavailable, falling back to seccomp-only enforcement")
		bpf = nil
	}

	return &Server{
		address: address,
		runtime: rt,
		bpf:     bpf,
		log:     log,
		done:    make(chan struct{}),
		cgroups: map[string]uint64{},
		chroots: map[string]string{},
	}, nil
}

// Start opens the listen socket and begins accepting connections.
func (s *Server) Start() error {
	listener, err := listen(s.address)
	if err != nil {
		return err
	}

	s.listener = listener
	s.startedAt = time.Now()

	if err := writePID(); err != nil {
		s.log.WithError(err).Warn("failed to write PID file")
	}

	s.log.WithField("address", s.address.Value).Info("cvd listening")

	go s.accept()
	return nil
}

// listen opens address, creating the runtime directory and applying
// socket permissions for [protocol.AddressLocal].
func listen(address protocol.Address) (net.Listener, error) {
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
			if err := setSocketPermissions(address.Value); err != nil {
				listener.Close()
				return nil, err
			}
		}
		return listener, nil
	}
}

func setSocketPermissions(socketPath string) error {
	if err := os.Chmod(socketPath, socketMode); err != nil {
		return cheferr.Wrapf(cheferr.ErrInternal, "chmod socket %s: %v", socketPath, err)
	}
	if g, err := user.LookupGroup(socketGroup); err == nil {
		if gid, err := strconv.Atoi(g.Gid); err == nil {
			os.Chown(socketPath, -1, gid)
		}
	}
	return nil
}

func writePID() error {
	if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(paths.CVDPIDFile(), []byte(fmt.Sprintf("%d", os.Getpid())), paths.DefaultFileMode)
}

// Stop shuts the server down, closing the runtime and removing the
// socket/PID files.
func (s *Server) Stop() error {
	close(s.done)

	if s.listener != nil {
		s.listener.Close()
	}
	if s.bpf != nil {
		s.bpf.Close()
	}
	if s.runtime != nil {
		s.runtime.Close()
	}

	if s.address.Type == protocol.AddressLocal && len(s.address.Value) > 0 && s.address.Value[0] != '@' {
		os.Remove(s.address.Value)
	}
	os.Remove(paths.CVDPIDFile())
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

// handle processes a single connection: one request, one response,
// per the framed wire protocol applied over a per-exchange connection.
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

	s.mu.Lock()
	s.commands++
	s.mu.Unlock()

	ctx, cancel := contextWithDisconnect(context.Background(), reader)
	defer cancel()

	s.dispatch(ctx, conn, env.Command, payload)
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, cmd protocol.Command, payload json.RawMessage) {
	switch cmd {
	case protocol.CmdContainerCreate:
		s.handleContainerCreate(ctx, conn, payload)
	case protocol.CmdContainerSpawn:
		s.handleContainerSpawn(ctx, conn, payload)
	case protocol.CmdContainerUpload:
		s.handleContainerUpload(ctx, conn, payload)
	case protocol.CmdContainerDestroy:
		s.handleContainerDestroy(ctx, conn, payload)
	case protocol.CmdContainerStop:
		s.handleContainerStop(ctx, conn, payload)
	case protocol.CmdContainerStatus:
		s.handleContainerStatus(ctx, conn, payload)
	case protocol.CmdContainerExec:
		s.handleContainerExec(ctx, conn, payload)
	case protocol.CmdContainerUpdate:
		s.handleContainerUpdate(ctx, conn, payload)
	case protocol.CmdStatus:
		s.handleStatus(conn)
	case protocol.CmdShutdown:
		s.handleShutdown(conn)
	default:
		s.respondError(conn, cheferr.Wrapf(cheferr.ErrInvalidArgument, "unknown command: %s", cmd))
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

// handleStatus answers a liveness probe.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	commands := s.commands
	s.mu.Unlock()

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running:  true,
		Version:  internal.VersionString(),
		Pid:      os.Getpid(),
		Uptime:   time.Since(s.startedAt).Truncate(time.Second).String(),
		Commands: commands,
	})
}

func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	s.log.Info("shutdown requested")
	go s.Stop()
}

// contextWithDisconnect derives a context cancelled when the peer
// closes the connection, detected by a blocking background read.
func contextWithDisconnect(parent context.Context, r io.Reader) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		buf := make([]byte, 1)
		r.Read(buf)
		cancel()
	}()
	return ctx, cancel
}
