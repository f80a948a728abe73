package packer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chefbuild/chef/internal/archive"
	"github.com/chefbuild/chef/internal/manifest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestPackAppliesIncludeFilters(t *testing.T) {
	install := t.TempDir()
	writeFile(t, filepath.Join(install, "bin", "x"), "binary")
	writeFile(t, filepath.Join(install, "lib", "y.so"), "shared")
	writeFile(t, filepath.Join(install, "lib", "y.a"), "static")
	writeFile(t, filepath.Join(install, "share", "z"), "data")

	outPath := filepath.Join(t.TempDir(), "out.pack")

	_, err := Pack(Options{
		InstallDir:    install,
		RecipeVersion: "1.0.0",
		Pack: manifest.Pack{
			Name:    "app",
			Type:    manifest.Application,
			Filters: []string{"*.so", "bin/*"},
		},
		OutputPath: outPath,
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	r, err := archive.Open(outPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	var got []string
	err = r.Walk(func(e archive.UnpackEntry) error {
		if e.Kind == "file" {
			got = append(got, e.Path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected exactly 2 files, got %v", got)
	}
	want := map[string]bool{filepath.Join("bin", "x"): true, filepath.Join("lib", "y.so"): true}
	for _, p := range got {
		if !want[p] {
			t.Fatalf("unexpected file in pack: %s", p)
		}
	}
}

func TestPackEmptyFilterIncludesAll(t *testing.T) {
	install := t.TempDir()
	writeFile(t, filepath.Join(install, "a"), "1")
	writeFile(t, filepath.Join(install, "nested", "b"), "2")

	outPath := filepath.Join(t.TempDir(), "out.pack")
	overview, err := Pack(Options{
		InstallDir:    install,
		RecipeVersion: "1.0.0",
		Pack:          manifest.Pack{Name: "app", Type: manifest.Application},
		OutputPath:    outPath,
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if overview.Files != 2 {
		t.Fatalf("expected 2 files, got %d", overview.Files)
	}
}

func TestPackFoldsIncludedIngredient(t *testing.T) {
	install := t.TempDir()
	ingredients := t.TempDir()
	writeFile(t, filepath.Join(ingredients, "acme_zlib", "lib", "libz.so"), "lib")
	writeFile(t, filepath.Join(ingredients, "acme_zlib", "include", "zlib.h"), "header")

	outPath := filepath.Join(t.TempDir(), "out.pack")
	_, err := Pack(Options{
		InstallDir:          install,
		BuildIngredientsDir: ingredients,
		Ingredients: []manifest.IngredientReference{
			{Name: "acme/zlib", IncludeInPack: true, FilterPatterns: []string{"lib/*"}},
		},
		RecipeVersion: "1.0.0",
		Pack:          manifest.Pack{Name: "app", Type: manifest.Application},
		OutputPath:    outPath,
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	if _, err := os.Stat(filepath.Join(install, "lib", "libz.so")); err != nil {
		t.Fatalf("expected libz.so folded into install tree: %v", err)
	}
	if _, err := os.Stat(filepath.Join(install, "include", "zlib.h")); !os.IsNotExist(err) {
		t.Fatalf("expected header excluded by filter, stat err = %v", err)
	}
}

func TestPackCompressedRoundTrips(t *testing.T) {
	install := t.TempDir()
	writeFile(t, filepath.Join(install, "a"), "hello world")

	outPath := filepath.Join(t.TempDir(), "out.pack")
	_, err := Pack(Options{
		InstallDir:    install,
		RecipeVersion: "1.0.0",
		Pack:          manifest.Pack{Name: "app", Type: manifest.Application},
		OutputPath:    outPath,
		Compress:      true,
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	dest := t.TempDir()
	if err := archive.Unpack(outPath, dest); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "a"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("got %q", data)
	}
}
