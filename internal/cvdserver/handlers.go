package cvdserver

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/paths"
	"github.com/chefbuild/chef/internal/protocol"
	"github.com/chefbuild/chef/internal/runtime"
)

// handleContainerCreate validates and creates the containerd task
// (delegated to [runtime.Container.Create]), then populates the
// BPF-LSM policy_map for the chroot under the resolved cgroup id.
func (s *Server) handleContainerCreate(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.ContainerCreateRequest](payload)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	ctr := s.runtime.Container(req.ID)
	opts := runtime.CreateOptions{
		Chroot:       req.Chroot,
		Platform:     req.Platform,
		Capabilities: req.Capabilities,
		Mounts:       req.Mounts,
	}
	if err := ctr.Create(ctx, opts); err != nil {
		s.respondError(conn, err)
		return
	}

	if err := s.populatePolicy(ctx, req.ID, req.Chroot, req.ProfileBlob); err != nil {
		s.log.WithError(err).WithField("container", req.ID).Warn("policy_map population failed, falling back to seccomp")
	}

	if err := writeControlRecord(req.ID); err != nil {
		s.log.WithError(err).WithField("container", req.ID).Warn("failed to pin container control record")
	}

	s.respond(conn, protocol.CmdOK, &protocol.ContainerCreateResult{ID: req.ID})
}

func (s *Server) handleContainerSpawn(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.ContainerSpawnRequest](payload)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	result, err := s.runtime.Container(req.ID).Spawn(ctx, req.Command, req.Env, req.Workdir)
	if err != nil {
		s.respondError(conn, err)
		return
	}
	s.respond(conn, protocol.CmdOK, result)
}

func (s *Server) handleContainerUpload(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.ContainerUploadRequest](payload)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	if err := s.runtime.Container(req.ID).Upload(ctx, req.HostPath, req.ContainerPath); err != nil {
		s.respondError(conn, err)
		return
	}
	s.respond(conn, protocol.CmdOK, nil)
}

// handleContainerDestroy destroys the containerd task first, then
// evicts this container's policy_map entries. Destroy is idempotent,
// so eviction still runs even if the container was already gone.
func (s *Server) handleContainerDestroy(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.ContainerIDRequest](payload)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	if err := s.runtime.Container(req.ID).Destroy(ctx); err != nil {
		s.respondError(conn, err)
		return
	}
	if err := s.evictPolicy(req.ID); err != nil {
		s.log.WithError(err).WithField("container", req.ID).Warn("policy_map eviction failed")
	}
	removeControlRecord(req.ID)
	s.respond(conn, protocol.CmdOK, nil)
}

// writeControlRecord pins the container's identity under its control
// path so helper processes can find the daemon that owns it. The record
// holds the container id; the reattach endpoint itself is the daemon's
// own socket.
func writeControlRecord(id string) error {
	path := paths.ContainerSocket(id)
	if err := os.MkdirAll(filepath.Dir(path), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(id+"\n"), paths.DefaultFileMode)
}

func removeControlRecord(id string) {
	os.Remove(paths.ContainerSocket(id))
}

func (s *Server) handleContainerStop(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.ContainerIDRequest](payload)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	if err := s.runtime.Container(req.ID).Stop(ctx); err != nil {
		s.respondError(conn, err)
		return
	}
	s.respond(conn, protocol.CmdOK, nil)
}

func (s *Server) handleContainerStatus(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.ContainerIDRequest](payload)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	state, err := s.runtime.Container(req.ID).Status(ctx)
	if err != nil {
		s.respondError(conn, err)
		return
	}
	s.respond(conn, protocol.CmdOK, &protocol.ContainerStatusResult{State: state})
}

// handleContainerExec aliases container.spawn: exec is the interactive
// counterpart to spawn, distinguished only by the client's I/O
// handling, not by the daemon's behavior.
func (s *Server) handleContainerExec(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	s.handleContainerSpawn(ctx, conn, payload)
}

// handleContainerUpdate re-derives the policy_map entries for a running
// container from a freshly supplied profile, without recreating its
// task.
func (s *Server) handleContainerUpdate(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.ContainerUpdateRequest](payload)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	status, err := s.runtime.Container(req.ID).Status(ctx)
	if err != nil {
		s.respondError(conn, err)
		return
	}
	if status == protocol.ContainerNotCreated {
		s.respondError(conn, cheferr.Wrapf(cheferr.ErrNotFound, "container %s not found", req.ID))
		return
	}

	chroot, ok := s.chrootFor(req.ID)
	if !ok {
		s.respondError(conn, cheferr.Wrapf(cheferr.ErrInvalidArgument, "no recorded chroot for container %s", req.ID))
		return
	}

	if err := s.evictPolicy(req.ID); err != nil {
		s.respondError(conn, err)
		return
	}
	if err := s.populatePolicy(ctx, req.ID, chroot, req.ProfileBlob); err != nil {
		s.respondError(conn, err)
		return
	}

	s.respond(conn, protocol.CmdOK, nil)
}
