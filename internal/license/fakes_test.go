package license

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with the same optimistic-versioning
// behavior the SQLite store implements.
type memStore struct {
	mu       sync.Mutex
	licenses map[string]*License
}

func newMemStore() *memStore {
	return &memStore{licenses: make(map[string]*License)}
}

func (s *memStore) Save(_ context.Context, lic *License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *lic
	clone.Version = 1
	s.licenses[lic.ID] = &clone
	lic.Version = 1
	return nil
}

func (s *memStore) FindByID(_ context.Context, id string) (*License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lic, ok := s.licenses[id]
	if !ok {
		return nil, nil
	}
	clone := *lic
	return &clone, nil
}

func (s *memStore) FindByTenant(_ context.Context, tenantID string) ([]*License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*License
	for _, lic := range s.licenses {
		if lic.TenantID == tenantID {
			clone := *lic
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, status Status, revokedBy, reason string, revokedAt time.Time, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lic, ok := s.licenses[id]
	if !ok || lic.Version != expectedVersion {
		return false, nil
	}
	lic.Status = status
	lic.RevokedBy = revokedBy
	lic.RevocationReason = reason
	at := revokedAt
	lic.RevokedDate = &at
	lic.Version++
	return true, nil
}

// memSink collects audit entries for assertions.
type memSink struct {
	mu      sync.Mutex
	entries []auditEntry
}

type auditEntry struct {
	component string
	action    string
	subject   string
	message   string
	isError   bool
}

func (s *memSink) Record(_ context.Context, component, action, subject, message string, isError bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, auditEntry{component, action, subject, message, isError})
	return nil
}

func (s *memSink) count(action, subject string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.action == action && e.subject == subject {
			n++
		}
	}
	return n
}

// memTenants is an in-memory TenantDirectory.
type memTenants map[string]bool

func (m memTenants) Exists(_ context.Context, tenantID string) (bool, error) {
	return m[tenantID], nil
}

// newTestSigner generates a fresh Ed25519 key pair.
func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := NewSigner(priv, pub)
	require.NoError(t, err)
	return signer
}

// newTestEncryptor builds an encryptor over a single-version keyring.
func newTestEncryptor(t *testing.T) *Encryptor {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	ring, err := NewKeyring(1, map[int][]byte{1: key})
	require.NoError(t, err)
	enc, err := NewEncryptor(ring)
	require.NoError(t, err)
	return enc
}

// sealLicense runs the full issuance crypto path by hand and returns a stored
// license record, bypassing the engine.
func sealLicense(t *testing.T, signer *Signer, enc *Encryptor, tenantID string, expiry time.Time) *License {
	t.Helper()
	issued := expiry.Add(-365 * 24 * time.Hour)
	flags := Flags{"EnableAPI": "true", "MaxExports": "25"}

	payload, err := BuildPayload(tenantID, "P4-ENTERPRISE", 50, issued, expiry, flags)
	require.NoError(t, err)
	sig, err := signer.Sign(payload)
	require.NoError(t, err)
	blob, keyVersion, err := enc.Seal(joinPayloadSignature(payload, sig), []byte(tenantID))
	require.NoError(t, err)

	return &License{
		ID:            "lic-test-0001",
		TenantID:      tenantID,
		ProductCode:   "P4-ENTERPRISE",
		MaxUsers:      50,
		IssuedDate:    issued,
		ExpiryDate:    expiry,
		FeatureFlags:  flags,
		Status:        StatusActive,
		SealedPayload: blob,
		KeyVersion:    keyVersion,
	}
}
