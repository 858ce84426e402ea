package license

import (
	"context"
	"time"
)

// Status is the stored lifecycle state of a license. The only stored
// transition is Active to Revoked; expiry is derived from the expiry date at
// read time and never stored as a transition.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// License is the aggregate root. All fields except the revocation triple are
// immutable once issued; changing terms or flags requires issuing a new
// license under a new id. Licenses are never physically deleted — revocation
// is the terminal operation, and deletion requests are translated to it.
type License struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	ProductCode      string     `json:"product_code"`
	MaxUsers         int        `json:"max_users"`
	IssuedDate       time.Time  `json:"issued_date"`
	ExpiryDate       time.Time  `json:"expiry_date"`
	FeatureFlags     Flags      `json:"feature_flags"`
	Status           Status     `json:"status"`
	IssuedBy         string     `json:"issued_by"`
	RevokedDate      *time.Time `json:"revoked_date,omitempty"`
	RevokedBy        string     `json:"revoked_by,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`

	// SealedPayload holds nonce ∥ ciphertext ∥ tag; KeyVersion records which
	// keyring version sealed it. Stores persist the blob base64-encoded.
	SealedPayload []byte `json:"sealed_payload"`
	KeyVersion    int    `json:"key_version"`

	// Version guards optimistic-concurrency updates in the store.
	Version int64 `json:"-"`
}

// IsExpired reports whether the license's stored expiry date has passed.
// This is a convenience for display paths only; the Validator re-derives the
// expiry from the verified payload and never trusts this column.
func (l *License) IsExpired(now time.Time) bool {
	return now.After(l.ExpiryDate)
}

// Store is the persistence boundary the engine depends on. Implementations
// must preserve the record layout verbatim, including the base64 sealed
// payload and the key version. A nil license with a nil error from the find
// methods means "not found".
type Store interface {
	Save(ctx context.Context, lic *License) error
	FindByID(ctx context.Context, id string) (*License, error)
	FindByTenant(ctx context.Context, tenantID string) ([]*License, error)

	// UpdateStatus applies the Active→Revoked transition guarded by the
	// expected record version. It returns false with a nil error when the
	// guard fails (another writer got there first).
	UpdateStatus(ctx context.Context, id string, status Status, revokedBy, reason string, revokedAt time.Time, expectedVersion int64) (bool, error)
}

// TenantDirectory answers tenant existence checks at issuance time.
type TenantDirectory interface {
	Exists(ctx context.Context, tenantID string) (bool, error)
}
