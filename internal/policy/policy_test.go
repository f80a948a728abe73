package policy

import "testing"

func TestMatchGlobClass(t *testing.T) {
	p, err := Compile([]Rule{{Pattern: "/tmp/file[a-z]", Mask: All}}, None)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	cases := []struct {
		path string
		want bool
	}{
		{"/tmp/filea", true},
		{"/tmp/fileA", false},
		{"/tmp/file1", false},
	}
	for _, c := range cases {
		if got := p.Match(c.path, 0); got != c.want {
			t.Errorf("Match(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestMatchCaseInsensitive(t *testing.T) {
	p, err := Compile([]Rule{{Pattern: "/tmp/file[a-z]", Mask: All}}, CaseInsensitive)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Match("/tmp/fileA", 0) {
		t.Errorf("case-insensitive Match(/tmp/fileA) = false, want true")
	}
}

func TestMatchNegation(t *testing.T) {
	p, err := Compile([]Rule{{Pattern: "!/etc/*", Mask: Read}}, None)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Match("/home/user", Read) {
		t.Errorf("negated pattern should match paths outside /etc/*")
	}
	if p.Match("/etc/passwd", Read) {
		t.Errorf("negated pattern should not match /etc/passwd")
	}
}

func TestMatchStarStarCrossesSeparator(t *testing.T) {
	p, err := Compile([]Rule{{Pattern: "/a/**/z", Mask: Read}}, None)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Match("/a/b/c/z", Read) {
		t.Errorf("** should cross separators")
	}
	if !p.Match("/a/z", Read) {
		t.Errorf("** should allow zero segments")
	}
}

func TestMatchStarDoesNotCrossSeparator(t *testing.T) {
	p, err := Compile([]Rule{{Pattern: "/a/*/z", Mask: Read}}, None)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Match("/a/b/c/z", Read) {
		t.Errorf("* should not cross separators")
	}
	if !p.Match("/a/b/z", Read) {
		t.Errorf("* should match a single segment")
	}
}

func TestMatchSharedPrefixIsolation(t *testing.T) {
	// A star in one pattern must not let a sibling pattern sharing the
	// same trie prefix match with characters skipped.
	p, err := Compile([]Rule{
		{Pattern: "/a*b", Mask: Read},
		{Pattern: "/ac", Mask: Write},
	}, None)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Match("/axc", 0) {
		t.Errorf("Match(/axc) = true, want false")
	}
	if !p.Match("/axb", Read) {
		t.Errorf("Match(/axb, Read) = false, want true")
	}
	if !p.Match("/ac", Write) {
		t.Errorf("Match(/ac, Write) = false, want true")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	p, err := Compile([]Rule{
		{Pattern: "/tmp/file[a-z]", Mask: All},
		{Pattern: "!/etc/*", Mask: Read},
		{Pattern: "/srv/**/bin", Mask: Exec},
	}, None)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	blob, err := p.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	imported, err := Import(blob)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	paths := []string{"/tmp/filea", "/tmp/fileA", "/etc/passwd", "/home/user", "/srv/a/b/bin"}
	for _, path := range paths {
		if got, want := imported.Match(path, 0), p.Match(path, 0); got != want {
			t.Errorf("round-trip Match(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestImportRejectsBadMagic(t *testing.T) {
	p, _ := Compile([]Rule{{Pattern: "/a", Mask: Read}}, None)
	blob, _ := p.Export()
	blob[0] ^= 0xFF

	if _, err := Import(blob); err == nil {
		t.Errorf("Import with corrupted magic should fail")
	}
}

func TestImportRejectsTruncation(t *testing.T) {
	p, _ := Compile([]Rule{{Pattern: "/a", Mask: Read}}, None)
	blob, _ := p.Export()

	if _, err := Import(blob[:len(blob)-1]); err == nil {
		t.Errorf("Import with truncated blob should fail")
	}
}

func TestImportRejectsOutOfRangeRoot(t *testing.T) {
	p, _ := Compile([]Rule{{Pattern: "/a", Mask: Read}}, None)
	blob, _ := p.Export()

	// Copy NodeCount over RootIndex (the last header field), making
	// root == nodeCount and so one past the node table.
	headerSize := 36
	copy(blob[headerSize-4:headerSize], blob[16:20])

	if _, err := Import(blob); err == nil {
		t.Errorf("Import with out-of-range root index should fail")
	}
}
