package runtime

import (
	"sort"
	"testing"
)

func TestMergeEnv(t *testing.T) {
	tests := []struct {
		name      string
		base      []string
		overrides []string
		want      []string
	}{
		{
			name:      "override wins over base",
			base:      []string{"PATH=/usr/bin", "HOME=/chef"},
			overrides: []string{"PATH=/chef/toolchains/bin"},
			want:      []string{"HOME=/chef", "PATH=/chef/toolchains/bin"},
		},
		{
			name:      "override adds missing key",
			base:      []string{"HOME=/chef"},
			overrides: []string{"CHEF_TARGET_ARCH=amd64"},
			want:      []string{"CHEF_TARGET_ARCH=amd64", "HOME=/chef"},
		},
		{
			name:      "nil base",
			base:      nil,
			overrides: []string{"A=1"},
			want:      []string{"A=1"},
		},
		{
			name:      "nil overrides",
			base:      []string{"A=1"},
			overrides: nil,
			want:      []string{"A=1"},
		},
		{
			name: "both nil",
			want: []string{},
		},
		{
			name: "equals sign inside value survives",
			base: []string{"LDFLAGS=-L/x -Wl,-rpath=/y"},
			want: []string{"LDFLAGS=-L/x -Wl,-rpath=/y"},
		},
		{
			name:      "entries without equals are dropped",
			base:      []string{"BROKEN", "A=1"},
			overrides: []string{"ALSOBROKEN", "B=2"},
			want:      []string{"A=1", "B=2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeEnv(tt.base, tt.overrides)
			sort.Strings(got)

			if len(got) != len(tt.want) {
				t.Fatalf("mergeEnv = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("mergeEnv[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNextExecIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		id := nextExecID()
		if id == "" {
			t.Fatal("nextExecID returned empty string")
		}
		if seen[id] {
			t.Fatalf("nextExecID returned duplicate %q", id)
		}
		seen[id] = true
	}
}
