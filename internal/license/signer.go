package license

import (
	"crypto/ed25519"
	"fmt"
)

// Signer signs canonical payloads and verifies their signatures with a
// process-wide Ed25519 key pair loaded once at startup. Ed25519 signatures
// are deterministic per key, so no signing randomness is involved.
//
// A Signer built with only a public key supports verification; Sign then
// fails with ErrNotConfigured.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewSigner builds a Signer. The public key is always required; the private
// key may be nil for verify-only deployments.
func NewSigner(privateKey ed25519.PrivateKey, publicKey ed25519.PublicKey) (*Signer, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrNotConfigured, ed25519.PublicKeySize, len(publicKey))
	}
	if privateKey != nil && len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrNotConfigured, ed25519.PrivateKeySize, len(privateKey))
	}
	return &Signer{privateKey: privateKey, publicKey: publicKey}, nil
}

// Sign computes the Ed25519 signature over payload.
func (s *Signer) Sign(payload []byte) ([]byte, error) {
	if s.privateKey == nil {
		return nil, fmt.Errorf("%w: no signing key loaded", ErrNotConfigured)
	}
	return ed25519.Sign(s.privateKey, payload), nil
}

// Verify reports whether sig is a valid signature over payload. It never
// fails on malformed signature bytes; any defect simply yields false. There
// is no partial or "unknown" outcome.
func (s *Signer) Verify(payload, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.publicKey, payload, sig)
}
