// Package proof implements the two-link signature chain that
// establishes trust in a pack before it is installed: a root
// certificate authority vouches for a publisher's public key, and that
// publisher's private key signs a digest of each package revision it
// ships. RSA over SHA-512 is the only accepted scheme.
package proof

import (
	"bytes"
	_ "embed"
)

//go:embed rootca.pem
var rootCAPEM []byte

// PublisherProof binds a publisher name to a public key, itself signed
// by the root CA.
type PublisherProof struct {
	Publisher string
	PublicKey []byte // DER-encoded RSA public key.
	SignedKey []byte // Root CA's SHA-512/RSA signature over PublicKey.
}

// PackageProof binds (publisher, package, revision) to a SHA-512 digest
// of the pack, signed by the publisher's private key.
type PackageProof struct {
	Publisher string
	Package   string
	Revision  string
	Digest    []byte // SHA-512 of the pack file at signing time.
	Signature []byte // Publisher's SHA-512/RSA signature over Digest.
}

// Lookup resolves proofs by opaque keys. Callers supply an
// implementation backed by the registry client or a local cache; proof
// itself has no storage opinion.
type Lookup interface {
	PublisherProof(name string) (*PublisherProof, bool)
	PackageProof(publisher, pkg, revision string) (*PackageProof, bool)
}

// DefaultRootCA returns the compiled-in root certificate authority PEM.
func DefaultRootCA() []byte {
	return bytes.Clone(rootCAPEM)
}
