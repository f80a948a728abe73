package proof

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
)

type fakeLookup struct {
	publishers map[string]*PublisherProof
	packages   map[string]*PackageProof
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{publishers: map[string]*PublisherProof{}, packages: map[string]*PackageProof{}}
}

func (f *fakeLookup) PublisherProof(name string) (*PublisherProof, bool) {
	p, ok := f.publishers[name]
	return p, ok
}

func (f *fakeLookup) PackageProof(publisher, pkg, revision string) (*PackageProof, bool) {
	p, ok := f.packages[publisher+"/"+pkg+"@"+revision]
	return p, ok
}

// testChain builds a throwaway root CA plus a publisher key signed by
// it, so tests never depend on the compiled-in production CA.
type testChain struct {
	caPEM        []byte
	caKey        *rsa.PrivateKey
	publisherKey *rsa.PrivateKey
	publisherDER []byte
}

func newTestChain(t *testing.T) *testChain {
	t.Helper()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate CA key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Test Root CA"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create CA cert: %v", err)
	}
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	pubKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate publisher key: %v", err)
	}

	return &testChain{
		caPEM:        caPEM,
		caKey:        caKey,
		publisherKey: pubKey,
		publisherDER: x509.MarshalPKCS1PublicKey(&pubKey.PublicKey),
	}
}

func (c *testChain) signPublisherKey(t *testing.T) []byte {
	t.Helper()
	digest := sha512.Sum512(c.publisherDER)
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.caKey, crypto.SHA512, digest[:])
	if err != nil {
		t.Fatalf("sign publisher key: %v", err)
	}
	return sig
}

func (c *testChain) signPackage(t *testing.T, digest []byte) []byte {
	t.Helper()
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.publisherKey, crypto.SHA512, digest)
	if err != nil {
		t.Fatalf("sign package digest: %v", err)
	}
	return sig
}

func writePack(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkg.pack")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	return path
}

func TestVerifyPublisherSucceeds(t *testing.T) {
	chain := newTestChain(t)
	lookup := newFakeLookup()
	lookup.publishers["acme"] = &PublisherProof{
		Publisher: "acme",
		PublicKey: chain.publisherDER,
		SignedKey: chain.signPublisherKey(t),
	}

	v, err := New(chain.caPEM, lookup)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := v.VerifyPublisher("acme"); err != nil {
		t.Fatalf("VerifyPublisher: %v", err)
	}
}

func TestVerifyPublisherUnknown(t *testing.T) {
	chain := newTestChain(t)
	v, err := New(chain.caPEM, newFakeLookup())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := v.VerifyPublisher("ghost"); err == nil {
		t.Fatalf("expected error for unknown publisher")
	}
}

func TestVerifyPackageRoundTrip(t *testing.T) {
	chain := newTestChain(t)
	lookup := newFakeLookup()
	lookup.publishers["acme"] = &PublisherProof{
		Publisher: "acme",
		PublicKey: chain.publisherDER,
		SignedKey: chain.signPublisherKey(t),
	}

	packPath := writePack(t, "pack file bytes")
	digest, err := hashFile(packPath)
	if err != nil {
		t.Fatalf("hashFile: %v", err)
	}
	lookup.packages["acme/widget@1"] = &PackageProof{
		Publisher: "acme",
		Package:   "widget",
		Revision:  "1",
		Digest:    digest,
		Signature: chain.signPackage(t, digest),
	}

	v, err := New(chain.caPEM, lookup)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := v.VerifyPackage("acme", "widget", "1", packPath); err != nil {
		t.Fatalf("VerifyPackage: %v", err)
	}
}

// Flip one byte in a valid pack and expect IntegrityFailure; with the
// byte restored but the publisher proof absent, expect NotFound.
func TestVerifyPackageTamperedByte(t *testing.T) {
	chain := newTestChain(t)
	lookup := newFakeLookup()
	lookup.publishers["acme"] = &PublisherProof{
		Publisher: "acme",
		PublicKey: chain.publisherDER,
		SignedKey: chain.signPublisherKey(t),
	}

	packPath := writePack(t, "pack file bytes")
	digest, err := hashFile(packPath)
	if err != nil {
		t.Fatalf("hashFile: %v", err)
	}
	lookup.packages["acme/widget@1"] = &PackageProof{
		Publisher: "acme", Package: "widget", Revision: "1",
		Digest: digest, Signature: chain.signPackage(t, digest),
	}

	v, err := New(chain.caPEM, lookup)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := os.ReadFile(packPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data[0] ^= 0xFF
	if err := os.WriteFile(packPath, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := v.VerifyPackage("acme", "widget", "1", packPath); err == nil {
		t.Fatalf("expected IntegrityFailure for tampered pack")
	}

	data[0] ^= 0xFF
	if err := os.WriteFile(packPath, data, 0644); err != nil {
		t.Fatalf("restore: %v", err)
	}
	delete(lookup.publishers, "acme")
	if err := v.VerifyPackage("acme", "widget", "1", packPath); err == nil {
		t.Fatalf("expected NotFound once publisher proof is absent")
	}
}
