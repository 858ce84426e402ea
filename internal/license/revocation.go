package license

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"p4portal/internal/audit"
)

const (
	revocationStripes   = 64
	maxRevocationReason = 500
)

// RevocationManager applies the Active→Revoked transition. Revocations for
// the same license id are serialized on a striped mutex, and the store update
// is additionally guarded by the record version, so concurrent revoke calls
// produce exactly one state transition and exactly one audit entry. Repeat
// revocations surface ErrAlreadyRevoked, which callers treat as benign.
type RevocationManager struct {
	store Store
	audit audit.Sink
	locks [revocationStripes]sync.Mutex
	now   func() time.Time
}

// NewRevocationManager builds a RevocationManager.
func NewRevocationManager(store Store, sink audit.Sink) *RevocationManager {
	return &RevocationManager{
		store: store,
		audit: sink,
		now:   time.Now,
	}
}

func (m *RevocationManager) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &m.locks[h.Sum32()%revocationStripes]
}

// Revoke marks a license revoked, recording who revoked it, why, and when.
// The reason is required and capped at 500 characters. Revoking an already
// revoked license returns ErrAlreadyRevoked without touching the record or
// the audit trail.
func (m *RevocationManager) Revoke(ctx context.Context, id, revokedBy, reason string) error {
	if id == "" {
		return fmt.Errorf("%w: license id is empty", ErrInvalidRevocation)
	}
	if revokedBy == "" {
		return fmt.Errorf("%w: revoking actor is required", ErrInvalidRevocation)
	}
	if reason == "" {
		return fmt.Errorf("%w: revocation reason is required", ErrInvalidRevocation)
	}
	if len(reason) > maxRevocationReason {
		return fmt.Errorf("%w: revocation reason exceeds %d characters", ErrInvalidRevocation, maxRevocationReason)
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	lic, err := m.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load license %s: %w", id, err)
	}
	if lic == nil {
		return fmt.Errorf("%w: license %s", ErrNotFound, id)
	}
	if lic.Status == StatusRevoked {
		return ErrAlreadyRevoked
	}

	revokedAt := m.now().UTC()
	applied, err := m.store.UpdateStatus(ctx, id, StatusRevoked, revokedBy, reason, revokedAt, lic.Version)
	if err != nil {
		return fmt.Errorf("failed to revoke license %s: %w", id, err)
	}
	if !applied {
		// Version guard failed under the stripe lock: a writer outside this
		// process raced us. Re-read to classify.
		current, err := m.store.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to re-load license %s: %w", id, err)
		}
		if current != nil && current.Status == StatusRevoked {
			return ErrAlreadyRevoked
		}
		return fmt.Errorf("failed to revoke license %s: concurrent update", id)
	}

	if m.audit != nil {
		// The transition already happened; an audit write failure is an
		// operational error, not grounds to report the revocation failed.
		msg := fmt.Sprintf("license revoked by %s: %s", revokedBy, reason)
		_ = m.audit.Record(ctx, "revocation_manager", "revoke", id, msg, false)
	}
	return nil
}
