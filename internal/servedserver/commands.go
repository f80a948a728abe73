package servedserver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/chefbuild/chef/internal/archive"
	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/paths"
	"github.com/chefbuild/chef/internal/protocol"
)

// commandsFile records the installed-command index alongside the
// inventory state file so a restart rediscovers get_command answers
// without re-reading every installed pack's header.
func commandsFile() string {
	return filepath.Join(filepath.Dir(paths.ServedStateFile), "commands.json")
}

// commandEntry is one row of the persisted command index.
type commandEntry struct {
	Publisher string                 `json:"publisher"`
	Package   string                 `json:"package"`
	Record    protocol.CommandRecord `json:"record"`
}

// commandRow pairs an invoked path with its entry for JSON persistence,
// since a Go map's key order is not stable across encodes.
type commandRow struct {
	InvokedPath string       `json:"invoked_path"`
	Entry       commandEntry `json:"entry"`
}

// loadCommands reads the persisted command index, tolerating a missing
// file on first run.
func loadCommands(path string) (map[string]commandEntry, error) {
	out := map[string]commandEntry{}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}

	var rows []commandRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	for _, r := range rows {
		out[r.InvokedPath] = r.Entry
	}
	return out, nil
}

// saveCommands persists the in-memory command index.
func (s *Server) saveCommands() error {
	s.mu.Lock()
	rows := make([]commandRow, 0, len(s.commands))
	for invoked, entry := range s.commands {
		rows = append(rows, commandRow{InvokedPath: invoked, Entry: entry})
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	path := commandsFile()
	if err := os.MkdirAll(filepath.Dir(path), paths.DefaultDirMode); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return cheferr.Wrap(cheferr.ErrInternal, os.WriteFile(path, data, paths.DefaultFileMode))
}

// readCommands extracts the command manifest from a pack's header.
func readCommands(packPath string) ([]manifest.Command, error) {
	r, err := archive.Open(packPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Header().Commands, nil
}

// registerCommands adds one invoked-path entry per command a just-applied
// pack declares, joined to containerID, the container
// [Server.createPackageContainer] rooted at mountDir for this package.
// Path and Cwd are container-internal: containerID's root filesystem is
// mountDir itself, so a command's executable is addressed relative to
// "/", not by its host-side mountDir-joined path.
func (s *Server) registerCommands(publisher, pkg, containerID, mountDir string, cmds []manifest.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range cmds {
		invoked := filepath.Join(paths.ChefBin, c.Name)
		s.commands[invoked] = commandEntry{
			Publisher: publisher,
			Package:   pkg,
			Record: protocol.CommandRecord{
				ContainerID: containerID,
				Path:        filepath.Join("/", c.Executable),
				Args:        argsFromTemplate(c.ArgTemplate),
				Cwd:         "/",
			},
		}
	}
}

// unregisterCommands removes every command entry belonging to
// (publisher, package), e.g. during a remove transaction.
func (s *Server) unregisterCommands(publisher, pkg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for invoked, entry := range s.commands {
		if entry.Publisher == publisher && entry.Package == pkg {
			delete(s.commands, invoked)
		}
	}
}

// lookupCommand answers a get_command RPC.
func (s *Server) lookupCommand(invokedPath string) (protocol.CommandRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.commands[invokedPath]
	return entry.Record, ok
}

// argsFromTemplate splits a command's arg template on whitespace. There
// is no variable substitution syntax beyond the literal template
// string, so this is a direct field split.
func argsFromTemplate(template string) []string {
	args := strings.Fields(template)
	if len(args) == 0 {
		return nil
	}
	return args
}
