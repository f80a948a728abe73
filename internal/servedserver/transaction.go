package servedserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/chefbuild/chef/internal/archive"
	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/inventory"
	"github.com/chefbuild/chef/internal/paths"
	"github.com/chefbuild/chef/internal/protocol"
	"github.com/chefbuild/chef/internal/rpcclient"
)

// progressThreshold is the minimum percentage-point delta between two
// reported io-progress events.
const progressThreshold = 5

// transaction tracks one install or remove's state-machine run. Mutated
// only by its own worker goroutine.
type transaction struct {
	id            string
	kind          protocol.TransactionKind
	phase         protocol.TransactionPhase
	bytesCurrent  int64
	bytesTotal    int64
	lastReported  int
	failureReason string
}

// emitter delivers io-progress and final-result envelopes to one open
// connection; [Server.handleInstall] and [Server.handleRemove] are the
// only callers.
type emitter func(cmd protocol.Command, payload any)

// runInstall drives INIT -> DOWNLOAD -> VERIFY -> APPLY -> COMMIT -> DONE
// for one install transaction.
func (s *Server) runInstall(ctx context.Context, req protocol.InstallRequest, emit emitter) {
	tx := &transaction{id: uuid.NewString(), kind: protocol.TxInstall, phase: protocol.PhaseInit}
	s.trackTransaction(tx)
	defer s.untrackTransaction(tx.id)

	if s.registry == nil {
		s.fail(tx, emit, cheferr.Wrapf(cheferr.ErrInvalidArgument, "no registry client configured"))
		return
	}

	meta, err := s.registry.Resolve(ctx, req.Publisher, req.Package, req.Channel, "", req.Platform, req.Arch)
	if err != nil {
		s.fail(tx, emit, err)
		return
	}

	tx.phase = protocol.PhaseDownload
	packPath := filepath.Join(paths.PacksDir, fmt.Sprintf("%s_%s_%s.pack", req.Publisher, req.Package, meta.LatestRevision))
	if err := os.MkdirAll(filepath.Dir(packPath), paths.DefaultDirMode); err != nil {
		s.fail(tx, emit, cheferr.Wrap(cheferr.ErrInternal, err))
		return
	}

	err = s.registry.Fetch(ctx, req.Publisher, req.Package, meta.LatestRevision, req.Platform, req.Arch, packPath,
		func(current, total int64) { s.reportProgress(tx, emit, current, total) })
	if err != nil {
		s.fail(tx, emit, err)
		return
	}

	tx.phase = protocol.PhaseVerify
	if err := s.verifier.VerifyPackage(req.Publisher, req.Package, meta.LatestRevision, packPath); err != nil {
		// A pack that fails verification must not linger in the packs
		// directory where a later install could pick it up.
		os.Remove(packPath)
		s.fail(tx, emit, err)
		return
	}

	tx.phase = protocol.PhaseApply
	mountDir := filepath.Join(paths.MountDir, fmt.Sprintf("%s_%s", req.Publisher, req.Package))
	if err := archive.Unpack(packPath, mountDir); err != nil {
		s.fail(tx, emit, err)
		return
	}

	commands, err := readCommands(packPath)
	if err != nil {
		s.fail(tx, emit, err)
		return
	}

	containerID, err := s.createPackageContainer(ctx, req.Publisher, req.Package, mountDir)
	if err != nil {
		s.fail(tx, emit, err)
		return
	}
	s.registerCommands(req.Publisher, req.Package, containerID, mountDir, commands)

	tx.phase = protocol.PhaseCommit
	if err := s.inv.Add(inventory.Entry{
		Publisher: req.Publisher,
		Package:   req.Package,
		Platform:  req.Platform,
		Arch:      req.Arch,
		Channel:   req.Channel,
		Revision:  meta.LatestRevision,
		Path:      mountDir,
		AddedAt:   time.Now().Unix(),
		Unpacked:  true,
	}); err != nil {
		s.fail(tx, emit, err)
		return
	}
	if err := s.inv.Save(); err != nil {
		s.fail(tx, emit, err)
		return
	}
	if err := s.saveCommands(); err != nil {
		s.fail(tx, emit, err)
		return
	}

	tx.phase = protocol.PhaseDone
	emit(protocol.CmdOK, &protocol.TransactionResult{ID: tx.id, Phase: tx.phase})
}

// runRemove drives INIT -> APPLY -> COMMIT -> DONE for a removal: there
// is nothing to download or verify, only the mounted tree and inventory
// record to retire.
func (s *Server) runRemove(ctx context.Context, req protocol.RemoveRequest, emit emitter) {
	tx := &transaction{id: uuid.NewString(), kind: protocol.TxRemove, phase: protocol.PhaseInit}
	s.trackTransaction(tx)
	defer s.untrackTransaction(tx.id)

	var entry inventory.Entry
	var ok bool
	for _, e := range s.inv.Entries() {
		if e.Publisher == req.Publisher && e.Package == req.Package {
			entry, ok = e, true
			break
		}
	}
	if !ok {
		s.fail(tx, emit, cheferr.Wrapf(cheferr.ErrNotFound, "%s/%s is not installed", req.Publisher, req.Package))
		return
	}

	tx.phase = protocol.PhaseApply
	if entry.Path != "" {
		if err := os.RemoveAll(entry.Path); err != nil {
			s.fail(tx, emit, cheferr.Wrap(cheferr.ErrInternal, err))
			return
		}
	}
	s.destroyPackageContainer(ctx, req.Publisher, req.Package)
	s.unregisterCommands(req.Publisher, req.Package)

	tx.phase = protocol.PhaseCommit
	if err := s.inv.Remove(req.Publisher, req.Package); err != nil {
		s.fail(tx, emit, err)
		return
	}
	if err := s.inv.Save(); err != nil {
		s.fail(tx, emit, err)
		return
	}
	if err := s.saveCommands(); err != nil {
		s.fail(tx, emit, err)
		return
	}

	tx.phase = protocol.PhaseDone
	emit(protocol.CmdOK, &protocol.TransactionResult{ID: tx.id, Phase: tx.phase})
}

// createPackageContainer asks cvd to create the container a package's
// installed commands will run in, rooted at mountDir, and returns its id
// for [Server.registerCommands] to record against every command the
// package declares.
func (s *Server) createPackageContainer(ctx context.Context, publisher, pkg, mountDir string) (string, error) {
	id := containerIDFor(publisher, pkg)
	var result protocol.ContainerCreateResult
	err := rpcclient.Call(s.cvdAddress, protocol.CmdContainerCreate,
		&protocol.ContainerCreateRequest{
			ID:     id,
			Chroot: mountDir,
			Capabilities: []protocol.Capability{
				protocol.CapFilesystem, protocol.CapProcessControl, protocol.CapUserNamespace,
			},
		}, &result)
	if err != nil {
		return "", cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return result.ID, nil
}

// destroyPackageContainer tears down a removed package's container.
// Best-effort: a transaction that already destroyed it, or a cvd that is
// not currently reachable, should not block the removal from completing.
func (s *Server) destroyPackageContainer(ctx context.Context, publisher, pkg string) {
	err := rpcclient.Call(s.cvdAddress, protocol.CmdContainerDestroy,
		&protocol.ContainerIDRequest{ID: containerIDFor(publisher, pkg)}, nil)
	if err != nil {
		s.log.WithError(err).WithField("package", publisher+"/"+pkg).Warn("package container destroy failed")
	}
}

// containerIDFor derives a stable container id for a package so a
// reinstall replaces its previous container rather than leaking one.
func containerIDFor(publisher, pkg string) string {
	return fmt.Sprintf("pkg-%s_%s", publisher, pkg)
}

// reportProgress throttles io-progress emission to >=5 percentage-point
// deltas.
func (s *Server) reportProgress(tx *transaction, emit emitter, current, total int64) {
	tx.bytesCurrent, tx.bytesTotal = current, total
	percentage := 0
	if total > 0 {
		percentage = int(current * 100 / total)
	}
	if percentage-tx.lastReported < progressThreshold && percentage < 100 {
		return
	}
	tx.lastReported = percentage
	emit(protocol.CmdIOProgress, &protocol.IOProgressEvent{
		ID:           tx.id,
		State:        tx.phase,
		BytesCurrent: current,
		BytesTotal:   total,
		Percentage:   percentage,
	})
}

func (s *Server) fail(tx *transaction, emit emitter, err error) {
	tx.phase = protocol.PhaseFailed
	tx.failureReason = err.Error()
	s.log.WithError(err).WithField("transaction", tx.id).Warn("transaction failed")
	emit(protocol.CmdError, &protocol.ErrorResult{
		Category: cheferr.Category(err).Error(),
		Message:  err.Error(),
	})
}

func (s *Server) trackTransaction(tx *transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.id] = tx
}

func (s *Server) untrackTransaction(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transactions, id)
}
