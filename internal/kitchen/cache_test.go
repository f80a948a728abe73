package kitchen

import (
	"path/filepath"
	"testing"
)

func TestCacheSetRequiresTransaction(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling Set outside a transaction")
		}
	}()

	c, err := OpenCache(filepath.Join(t.TempDir(), "cache.json"))
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	c.Set("setup_rootfs")
}

func TestCacheCommitPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c, err := OpenCache(path)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	c.Begin()
	c.Set("setup_rootfs")
	c.Set("setup_ingredients")
	if err := c.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reopened, err := OpenCache(path)
	if err != nil {
		t.Fatalf("reopen OpenCache: %v", err)
	}
	if !reopened.Done("setup_rootfs") || !reopened.Done("setup_ingredients") {
		t.Fatalf("expected both checkpoints done after reopen")
	}
	if reopened.Done("setup_hook") {
		t.Fatalf("setup_hook should not be done")
	}
}

func TestCacheResetClearsTransitiveDependents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c, err := OpenCache(path)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}

	c.RegisterDependency("step:lib:configure", "step:lib:build")
	c.RegisterDependency("step:lib:build", "step:lib:install")

	c.Begin()
	c.Set("step:lib:configure")
	c.Set("step:lib:build")
	c.Set("step:lib:install")
	if err := c.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := c.Reset("step:lib:configure"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if c.Done("step:lib:configure") || c.Done("step:lib:build") || c.Done("step:lib:install") {
		t.Fatalf("expected configure and every transitive dependent cleared")
	}
}

func TestCacheResetIsIdempotentOnCycles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c, err := OpenCache(path)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}

	// A malformed dependency graph with a cycle must not hang Reset.
	c.RegisterDependency("a", "b")
	c.RegisterDependency("b", "a")

	c.Begin()
	c.Set("a")
	c.Set("b")
	if err := c.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := c.Reset("a"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if c.Done("a") || c.Done("b") {
		t.Fatalf("expected both cleared")
	}
}
