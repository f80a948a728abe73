package inventory

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	inv, err := Load(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(inv.Entries()) != 0 {
		t.Fatalf("expected empty inventory, got %d entries", len(inv.Entries()))
	}
}

func TestAddSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	inv, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	entry := Entry{
		Publisher: "acme", Package: "widget", Platform: "linux",
		Arch: "amd64", Channel: "stable", Revision: "3", Path: "/var/chef/packs/widget-3.pack",
	}
	if err := inv.Add(entry); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := inv.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := reloaded.GetPack("acme", "widget", "linux", "amd64", "stable", "3")
	if !ok {
		t.Fatalf("expected entry to round-trip")
	}
	if got.Path != entry.Path {
		t.Fatalf("path mismatch: %q", got.Path)
	}
}

func TestGetPackMiss(t *testing.T) {
	inv, err := Load(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := inv.GetPack("acme", "widget", "linux", "amd64", "stable", "1"); ok {
		t.Fatalf("expected miss on empty inventory")
	}
}

func TestLatestPicksHighestRevision(t *testing.T) {
	inv, err := Load(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, rev := range []string{"1", "3", "2"} {
		if err := inv.Add(Entry{
			Publisher: "acme", Package: "widget", Platform: "linux",
			Arch: "amd64", Channel: "stable", Revision: rev,
		}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	latest, ok := inv.Latest("acme", "widget", "linux", "amd64", "stable")
	if !ok {
		t.Fatalf("expected a latest entry")
	}
	if latest.Revision != "3" {
		t.Fatalf("expected revision 3, got %s", latest.Revision)
	}
}
