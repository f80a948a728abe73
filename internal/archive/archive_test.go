package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chefbuild/chef/internal/manifest"
)

func buildTree(t *testing.T, root string) {
	t.Helper()
	mustMkdir(t, filepath.Join(root, "bin"))
	mustMkdir(t, filepath.Join(root, "lib"))
	mustWrite(t, filepath.Join(root, "bin", "x"), "x", 0755)
	mustWrite(t, filepath.Join(root, "lib", "y.so"), "shared object contents", 0644)
	if err := os.Symlink("y.so", filepath.Join(root, "lib", "y.link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func mustWrite(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	src := t.TempDir()
	buildTree(t, src)

	header := Header{Type: manifest.Application, Version: "1.0.0", Metadata: map[string]string{"publisher": "acme"}}
	packPath := filepath.Join(t.TempDir(), "out.pack")

	w, err := NewWriter(packPath, header, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.PackDir(src); err != nil {
		t.Fatalf("PackDir: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(packPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if got := r.Header(); got.Version != "1.0.0" || got.Type != manifest.Application {
		t.Fatalf("Header mismatch: %+v", got)
	}
	ov := r.Overview()
	if ov.Files != 2 || ov.Dirs != 2 || ov.Symlinks != 1 {
		t.Fatalf("Overview mismatch: %+v", ov)
	}

	dest := t.TempDir()
	if err := Unpack(packPath, dest); err != nil {
		t.Fatalf("Unpack via fresh open: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dest, "lib", "y.so"))
	if err != nil {
		t.Fatalf("read unpacked file: %v", err)
	}
	if string(content) != "shared object contents" {
		t.Fatalf("content mismatch: %q", content)
	}

	link, err := os.Readlink(filepath.Join(dest, "lib", "y.link"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if link != "y.so" {
		t.Fatalf("symlink target mismatch: %q", link)
	}

	info, err := os.Stat(filepath.Join(dest, "bin", "x"))
	if err != nil {
		t.Fatalf("stat bin/x: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Fatalf("permission mismatch: %v", info.Mode().Perm())
	}
}

func TestWriterReaderRoundTripCompressed(t *testing.T) {
	src := t.TempDir()
	buildTree(t, src)

	packPath := filepath.Join(t.TempDir(), "out.pack")
	w, err := NewWriter(packPath, Header{Type: manifest.Ingredient}, &Filter{Codec: CodecZstd})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.PackDir(src); err != nil {
		t.Fatalf("PackDir: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dest := t.TempDir()
	if err := Unpack(packPath, dest); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dest, "lib", "y.so"))
	if err != nil {
		t.Fatalf("read unpacked file: %v", err)
	}
	if string(content) != "shared object contents" {
		t.Fatalf("content mismatch after compression round trip: %q", content)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pack")
	if err := os.WriteFile(path, []byte{0, 0, 0, 0, 1, 0, 0, 0}, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestOpenRejectsTruncation(t *testing.T) {
	src := t.TempDir()
	buildTree(t, src)

	packPath := filepath.Join(t.TempDir(), "out.pack")
	w, err := NewWriter(packPath, Header{Type: manifest.Application}, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.PackDir(src); err != nil {
		t.Fatalf("PackDir: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(packPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	truncPath := filepath.Join(t.TempDir(), "trunc.pack")
	if err := os.WriteFile(truncPath, data[:len(data)-1], 0644); err != nil {
		t.Fatalf("write truncated: %v", err)
	}

	r, err := Open(truncPath)
	if err != nil {
		// Truncation inside the feature header is rejected at Open.
		return
	}
	defer r.Close()
	if err := r.Walk(func(UnpackEntry) error { return nil }); err == nil {
		t.Fatalf("expected truncated archive to fail during Walk")
	}
}
