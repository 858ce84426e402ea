package license

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/scrypt"
)

const (
	aesKeySize   = 32 // AES-256
	gcmNonceSize = 12 // 96-bit nonce, GCM standard
	gcmTagSize   = 16 // 128-bit authentication tag

	// scrypt parameters, OWASP recommended minimums.
	scryptN = 32768
	scryptR = 8
	scryptP = 1

	// payloadSeparator sits between the canonical payload and its signature
	// inside the sealed plaintext.
	payloadSeparator = '\n'
)

// DeriveKey derives a 32-byte AES key from an operator-supplied passphrase
// and salt using scrypt. Derivation happens once at startup; the resulting
// key is immutable for the lifetime of the service instance.
func DeriveKey(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: encryption passphrase is empty", ErrNotConfigured)
	}
	if len(salt) < 16 {
		return nil, fmt.Errorf("%w: encryption salt must be at least 16 bytes", ErrNotConfigured)
	}
	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, aesKeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: key derivation failed: %v", ErrNotConfigured, err)
	}
	return key, nil
}

// Keyring holds the AEADs for every known key version plus the active
// version used for sealing. Each sealed payload records the version that
// produced it, so rotating keys never races in-flight validations: old
// versions stay resolvable until every license sealed under them is gone.
type Keyring struct {
	active int
	aeads  map[int]cipher.AEAD
}

// NewKeyring builds a keyring from 32-byte keys indexed by version. The
// active version must be present in the map.
func NewKeyring(active int, keys map[int][]byte) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: keyring is empty", ErrNotConfigured)
	}
	if _, ok := keys[active]; !ok {
		return nil, fmt.Errorf("%w: active key version %d not in keyring", ErrNotConfigured, active)
	}

	aeads := make(map[int]cipher.AEAD, len(keys))
	for version, key := range keys {
		if len(key) != aesKeySize {
			return nil, fmt.Errorf("%w: key version %d must be %d bytes, got %d", ErrNotConfigured, version, aesKeySize, len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("%w: key version %d: %v", ErrNotConfigured, version, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("%w: key version %d: %v", ErrNotConfigured, version, err)
		}
		aeads[version] = aead
	}
	return &Keyring{active: active, aeads: aeads}, nil
}

// ActiveVersion returns the version new seals are produced under.
func (k *Keyring) ActiveVersion() int { return k.active }

// Versions returns the known key versions in ascending order.
func (k *Keyring) Versions() []int {
	versions := make([]int, 0, len(k.aeads))
	for v := range k.aeads {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

// Encryptor performs authenticated encryption of sealed license payloads
// with AES-256-GCM. Nonces are generated internally from crypto/rand on
// every Seal call; callers cannot supply one, which structurally rules out
// nonce reuse under a given key.
type Encryptor struct {
	ring *Keyring
}

// NewEncryptor builds an Encryptor over a keyring.
func NewEncryptor(ring *Keyring) (*Encryptor, error) {
	if ring == nil {
		return nil, fmt.Errorf("%w: nil keyring", ErrNotConfigured)
	}
	return &Encryptor{ring: ring}, nil
}

// Seal encrypts plaintext under the active key, binding it to the given
// associated data. The blob layout is nonce ∥ ciphertext ∥ tag. It returns
// the blob and the key version that produced it.
func (e *Encryptor) Seal(plaintext, associatedData []byte) ([]byte, int, error) {
	aead := e.ring.aeads[e.ring.active]

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, 0, fmt.Errorf("nonce generation failed: %w", err)
	}

	blob := aead.Seal(nonce, nonce, plaintext, associatedData)
	return blob, e.ring.active, nil
}

// Open decrypts and authenticates a sealed blob produced under keyVersion.
// Every failure mode — truncated blob, unknown key version, tag mismatch,
// associated-data mismatch — collapses into ErrAuthenticationFailed.
func (e *Encryptor) Open(blob []byte, keyVersion int, associatedData []byte) ([]byte, error) {
	aead, ok := e.ring.aeads[keyVersion]
	if !ok {
		return nil, ErrAuthenticationFailed
	}
	if len(blob) < gcmNonceSize+gcmTagSize {
		return nil, ErrAuthenticationFailed
	}
	plaintext, err := aead.Open(nil, blob[:gcmNonceSize], blob[gcmNonceSize:], associatedData)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// joinPayloadSignature assembles the plaintext sealed by the Encryptor:
// canonical payload, separator byte, then the fixed-size signature.
func joinPayloadSignature(payload, sig []byte) []byte {
	out := make([]byte, 0, len(payload)+1+len(sig))
	out = append(out, payload...)
	out = append(out, payloadSeparator)
	out = append(out, sig...)
	return out
}

// splitPayloadSignature reverses joinPayloadSignature. The signature has a
// fixed size, so the split point is unambiguous; anything that does not fit
// the layout is ErrMalformedPayload.
func splitPayloadSignature(plaintext []byte) (payload, sig []byte, err error) {
	if len(plaintext) < ed25519.SignatureSize+2 {
		return nil, nil, fmt.Errorf("%w: plaintext too short", ErrMalformedPayload)
	}
	sep := len(plaintext) - ed25519.SignatureSize - 1
	if plaintext[sep] != payloadSeparator {
		return nil, nil, fmt.Errorf("%w: missing separator", ErrMalformedPayload)
	}
	return plaintext[:sep], plaintext[sep+1:], nil
}
