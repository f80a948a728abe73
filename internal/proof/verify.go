package proof

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"io"
	"os"

	"github.com/chefbuild/chef/internal/cheferr"
)

// chunkSize: SHA-512 of the pack file is computed in 1-MiB streaming
// chunks.
const chunkSize = 1 << 20

// Verifier checks publisher and package proofs against a fixed root CA.
// The signature scheme is fixed: RSA public-key, SHA-512 digest.
type Verifier struct {
	rootCA *x509.Certificate
	lookup Lookup
}

// New parses caPEM as the trusted root certificate authority and returns
// a Verifier backed by lookup for resolving publisher/package proofs.
func New(caPEM []byte, lookup Lookup) (*Verifier, error) {
	block, _ := pem.Decode(caPEM)
	if block == nil {
		return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "proof: root CA is not valid PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	return &Verifier{rootCA: cert, lookup: lookup}, nil
}

// VerifyPublisher validates that name's publisher proof is a public key
// genuinely signed by the root CA.
func (v *Verifier) VerifyPublisher(name string) (*PublisherProof, error) {
	p, ok := v.lookup.PublisherProof(name)
	if !ok {
		return nil, cheferr.Wrapf(cheferr.ErrNotFound, "publisher proof not found: %s", name)
	}

	rootPub, ok := v.rootCA.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, cheferr.Wrapf(cheferr.ErrInternal, "proof: root CA public key is not RSA")
	}

	digest := sha512.Sum512(p.PublicKey)
	if err := rsa.VerifyPKCS1v15(rootPub, crypto.SHA512, digest[:], p.SignedKey); err != nil {
		return nil, cheferr.Wrap(cheferr.ErrIntegrityFailure, err)
	}

	return p, nil
}

// VerifyPackage validates that the pack at packPath matches the SHA-512
// digest the named publisher signed for (publisher, package, revision).
// It first re-verifies the publisher proof, so an unknown or tampered
// publisher key fails before the pack is even hashed.
func (v *Verifier) VerifyPackage(publisher, pkg, revision, packPath string) error {
	pubProof, err := v.VerifyPublisher(publisher)
	if err != nil {
		return err
	}

	pkgProof, ok := v.lookup.PackageProof(publisher, pkg, revision)
	if !ok {
		return cheferr.Wrapf(cheferr.ErrNotFound, "package proof not found: %s/%s@%s", publisher, pkg, revision)
	}

	digest, err := hashFile(packPath)
	if err != nil {
		return err
	}
	if !bytes.Equal(digest, pkgProof.Digest) {
		return cheferr.Wrapf(cheferr.ErrIntegrityFailure, "package digest mismatch for %s/%s@%s", publisher, pkg, revision)
	}

	publisherKey, err := x509.ParsePKCS1PublicKey(pubProof.PublicKey)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}

	if err := rsa.VerifyPKCS1v15(publisherKey, crypto.SHA512, digest, pkgProof.Signature); err != nil {
		return cheferr.Wrap(cheferr.ErrIntegrityFailure, err)
	}

	return nil
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrNotFound, err)
	}
	defer f.Close()

	h := sha512.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return h.Sum(nil), nil
}
