package servedserver

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chefbuild/chef/internal/archive"
	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/proof"
	"github.com/chefbuild/chef/internal/protocol"
)

func TestArgsFromTemplateSplitsWhitespace(t *testing.T) {
	got := argsFromTemplate("  --flag  value   --other ")
	want := []string{"--flag", "value", "--other"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestArgsFromTemplateEmpty(t *testing.T) {
	if got := argsFromTemplate(""); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestRegisterAndUnregisterCommands(t *testing.T) {
	s := &Server{commands: map[string]commandEntry{}}

	s.registerCommands("acme", "tool", "pkg-acme_tool", "/var/chef/mnt/acme_tool", []manifest.Command{
		{Name: "acmetool", Executable: "bin/acmetool", ArgTemplate: "--quiet"},
	})

	record, ok := s.lookupCommand(filepath.Join("/chef/bin", "acmetool"))
	if !ok {
		t.Fatalf("expected command to be registered")
	}
	if record.Path != "/bin/acmetool" {
		t.Fatalf("unexpected path: %s", record.Path)
	}
	if record.Cwd != "/" {
		t.Fatalf("unexpected cwd: %s", record.Cwd)
	}
	if record.ContainerID != "pkg-acme_tool" {
		t.Fatalf("unexpected container id: %s", record.ContainerID)
	}

	s.unregisterCommands("acme", "tool")
	if _, ok := s.lookupCommand(filepath.Join("/chef/bin", "acmetool")); ok {
		t.Fatalf("expected command to be unregistered")
	}
}

func TestContainerIDForIsStablePerPackage(t *testing.T) {
	a := containerIDFor("acme", "tool")
	b := containerIDFor("acme", "tool")
	if a != b {
		t.Fatalf("expected stable id, got %q then %q", a, b)
	}
	if containerIDFor("acme", "other") == a {
		t.Fatalf("expected distinct ids for distinct packages")
	}
}

func TestReportProgressThrottlesToFivePointDeltas(t *testing.T) {
	s := &Server{}
	tx := &transaction{id: "tx1"}

	var events []int
	emit := func(cmd protocol.Command, payload any) {
		ev := payload.(*protocol.IOProgressEvent)
		events = append(events, ev.Percentage)
	}

	for _, current := range []int64{1, 4, 6, 9, 11, 50, 100} {
		s.reportProgress(tx, emit, current, 100)
	}

	if len(events) == 0 {
		t.Fatalf("expected at least one progress event")
	}
	for i := 1; i < len(events); i++ {
		if events[i]-events[i-1] < progressThreshold && events[i] != 100 {
			t.Fatalf("delta too small between %d and %d", events[i-1], events[i])
		}
	}
	if events[len(events)-1] != 100 {
		t.Fatalf("expected final event at 100%%, got %v", events)
	}
}

// stubLookup implements [proof.Lookup] for a single in-memory
// publisher/package, signing a real proof chain so [proof.Verifier]
// exercises genuine RSA verification rather than a bypass.
type stubLookup struct {
	packPath  string
	revision  string
	rootCAPEM []byte
	publisher proof.PublisherProof
	pkgProof  proof.PackageProof
}

func newSignedStub(t *testing.T, packPath string) *stubLookup {
	t.Helper()

	rootKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey root: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-root"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageCertSign,
		IsCA:         true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	rootPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	pubKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey publisher: %v", err)
	}
	pubKeyDER := x509.MarshalPKCS1PublicKey(&pubKey.PublicKey)
	keyDigest := sha512.Sum512(pubKeyDER)
	signedKey, err := rsa.SignPKCS1v15(rand.Reader, rootKey, crypto.SHA512, keyDigest[:])
	if err != nil {
		t.Fatalf("SignPKCS1v15 key: %v", err)
	}

	data, err := os.ReadFile(packPath)
	if err != nil {
		t.Fatalf("ReadFile pack: %v", err)
	}
	digest := sha512.Sum512(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, pubKey, crypto.SHA512, digest[:])
	if err != nil {
		t.Fatalf("SignPKCS1v15 pkg: %v", err)
	}

	return &stubLookup{
		packPath:  packPath,
		revision:  "1",
		rootCAPEM: rootPEM,
		publisher: proof.PublisherProof{Publisher: "acme", PublicKey: pubKeyDER, SignedKey: signedKey},
		pkgProof:  proof.PackageProof{Publisher: "acme", Package: "tool", Revision: "1", Digest: digest[:], Signature: sig},
	}
}

func (r *stubLookup) PublisherProof(name string) (*proof.PublisherProof, bool) {
	if name != r.publisher.Publisher {
		return nil, false
	}
	p := r.publisher
	return &p, true
}

func (r *stubLookup) PackageProof(publisher, pkg, revision string) (*proof.PackageProof, bool) {
	if publisher != r.pkgProof.Publisher || pkg != r.pkgProof.Package || revision != r.pkgProof.Revision {
		return nil, false
	}
	p := r.pkgProof
	return &p, true
}

func TestVerifyPackageAgainstSignedStub(t *testing.T) {
	dir := t.TempDir()
	packPath := filepath.Join(dir, "tool.pack")

	w, err := archive.NewWriter(packPath, archive.Header{Type: manifest.Application, Version: "1"}, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	stub := newSignedStub(t, packPath)
	v, err := proof.New(stub.rootCAPEM, stub)
	if err != nil {
		t.Fatalf("proof.New: %v", err)
	}
	if err := v.VerifyPackage("acme", "tool", "1", packPath); err != nil {
		t.Fatalf("VerifyPackage: %v", err)
	}
}
