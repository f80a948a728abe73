package kitchen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chefbuild/chef/internal/manifest"
)

func TestMaterializeBuildEnvCollectsBinIncludeLib(t *testing.T) {
	root := t.TempDir()
	ingr := filepath.Join(root, "zlib_1.3")
	for _, sub := range []string{"bin", "include", "lib"} {
		if err := os.MkdirAll(filepath.Join(ingr, sub), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}

	env := []string{
		"PATH=/usr/bin",
		"LD_LIBRARY_PATH=",
		"CHEF_BUILD_PATH=",
		"CHEF_BUILD_INCLUDE=",
		"CHEF_BUILD_LIBS=",
		"CHEF_BUILD_CCFLAGS=",
		"CHEF_BUILD_LDFLAGS=",
	}

	got := materializeBuildEnv(env, root)

	assertHasSuffix(t, got, "PATH=", "/bin")
	assertHasSuffix(t, got, "CHEF_BUILD_INCLUDE=", "/include")
	assertHasSuffix(t, got, "CHEF_BUILD_CCFLAGS=", "-I"+filepath.Join(ingr, "include"))
	assertHasSuffix(t, got, "CHEF_BUILD_LDFLAGS=", "-L"+filepath.Join(ingr, "lib"))
}

func TestMaterializeBuildEnvToleratesMissingDir(t *testing.T) {
	env := []string{"PATH=/usr/bin"}
	got := materializeBuildEnv(env, filepath.Join(t.TempDir(), "does-not-exist"))
	if len(got) != 1 || got[0] != "PATH=/usr/bin" {
		t.Fatalf("expected env unchanged, got %v", got)
	}
}

func TestIngredientDirNameSanitizesSlash(t *testing.T) {
	got := ingredientDirName(manifest.IngredientReference{Name: "acme/zlib"})
	if got != "acme_zlib" {
		t.Fatalf("got %q", got)
	}
}

func assertHasSuffix(t *testing.T, env []string, prefix, suffix string) {
	t.Helper()
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			if strings.Contains(kv, suffix) {
				return
			}
			t.Fatalf("%s entry %q does not contain %q", prefix, kv, suffix)
		}
	}
	t.Fatalf("no entry found with prefix %q in %v", prefix, env)
}
