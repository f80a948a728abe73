package kitchen

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/chefbuild/chef/internal/cheferr"
)

// Cache is the recipe cache scoped to one kitchen's UUID: a key-value
// store persisting each completed checkpoint inside a transaction
// (begin/commit). Checkpoints that declare the same key in a step's
// DependsOn set are tracked so [Cache.Reset] can clear every transitive
// dependent.
type Cache struct {
	path string

	mu         sync.Mutex
	done       map[string]bool
	dependents map[string][]string // checkpoint key -> step keys that declared it in DependsOn
	pending    map[string]bool     // staged inside an open transaction, not yet committed
	open       bool
}

// OpenCache loads a recipe cache from path, creating an empty one if the
// file does not yet exist.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{path: path, done: map[string]bool{}, dependents: map[string][]string{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}
	if err := json.Unmarshal(data, &c.done); err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	return c, nil
}

// Done reports whether key's checkpoint already completed, letting
// setup re-runs skip it.
func (c *Cache) Done(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done[key]
}

// RegisterDependency records that step declared checkpoint in its
// DependsOn set, so resetting checkpoint also resets step.
func (c *Cache) RegisterDependency(checkpoint, step string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dependents[checkpoint] = append(c.dependents[checkpoint], step)
}

// Begin opens a transaction. Set calls before the matching Commit are
// staged in memory only; nothing is marked done and nothing is
// persisted until Commit returns.
func (c *Cache) Begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.pending = map[string]bool{}
}

// Set stages key as completed within the current transaction. Panics if
// called outside Begin/Commit, since that indicates an orchestration
// bug, not a recoverable runtime condition.
func (c *Cache) Set(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		panic("kitchen: Cache.Set called outside a transaction")
	}
	c.pending[key] = true
}

// Commit persists every key staged since Begin and writes the cache to
// disk.
func (c *Cache) Commit() error {
	c.mu.Lock()
	for k := range c.pending {
		c.done[k] = true
	}
	c.open = false
	c.pending = nil
	snapshot := make(map[string]bool, len(c.done))
	for k, v := range c.done {
		snapshot[k] = v
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return cheferr.Wrap(cheferr.ErrInternal, os.WriteFile(c.path, data, 0644))
}

// Reset clears checkpoint and recursively clears every checkpoint that
// named it in a RegisterDependency call. The cleared set is persisted
// before Reset returns.
func (c *Cache) Reset(checkpoint string) error {
	c.mu.Lock()
	visited := map[string]bool{}
	c.resetRecursive(checkpoint, visited)
	snapshot := make(map[string]bool, len(c.done))
	for k, v := range c.done {
		snapshot[k] = v
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return cheferr.Wrap(cheferr.ErrInternal, os.WriteFile(c.path, data, 0644))
}

// resetRecursive must be called with c.mu held.
func (c *Cache) resetRecursive(key string, visited map[string]bool) {
	if visited[key] {
		return
	}
	visited[key] = true
	delete(c.done, key)
	for _, dep := range c.dependents[key] {
		c.resetRecursive(dep, visited)
	}
}
