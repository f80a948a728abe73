package runtime

import (
	"testing"

	"github.com/chefbuild/chef/internal/protocol"
)

func TestHasCapability(t *testing.T) {
	tests := []struct {
		name string
		caps []protocol.Capability
		want protocol.Capability
		ok   bool
	}{
		{"present", []protocol.Capability{protocol.CapFilesystem, protocol.CapNetwork}, protocol.CapNetwork, true},
		{"absent", []protocol.Capability{protocol.CapFilesystem}, protocol.CapNetwork, false},
		{"empty", nil, protocol.CapNetwork, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasCapability(tt.caps, tt.want); got != tt.ok {
				t.Errorf("hasCapability(%v, %v) = %v, want %v", tt.caps, tt.want, got, tt.ok)
			}
		})
	}
}

func TestIDMappingIsSingleEntryIdentityToHost(t *testing.T) {
	got := idMapping(1000)
	if len(got) != 1 {
		t.Fatalf("expected a single mapping entry, got %d", len(got))
	}
	m := got[0]
	if m.ContainerID != 0 || m.HostID != 1000 || m.Size != 1 {
		t.Errorf("idMapping(1000) = %+v, want {ContainerID:0 HostID:1000 Size:1}", m)
	}
}
