package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p4portal/internal/license"
	"p4portal/internal/tenant"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleLicense(id, tenantID string) *license.License {
	return &license.License{
		ID:            id,
		TenantID:      tenantID,
		ProductCode:   "P4-ENTERPRISE",
		MaxUsers:      50,
		IssuedDate:    time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		ExpiryDate:    time.Date(2027, 1, 15, 10, 30, 0, 0, time.UTC),
		FeatureFlags:  license.Flags{"EnableAPI": "true", "MaxExports": "25"},
		Status:        license.StatusActive,
		IssuedBy:      "admin@p4.example",
		SealedPayload: []byte{0x01, 0x02, 0xFE, 0xFF, 0x00, 0x7F},
		KeyVersion:    3,
	}
}

func TestSQLiteStore_SaveAndFindLicense(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lic := sampleLicense("lic-1", "tenant-42")
	require.NoError(t, s.Save(ctx, lic))
	assert.EqualValues(t, 1, lic.Version)

	got, err := s.FindByID(ctx, "lic-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, lic.ID, got.ID)
	assert.Equal(t, lic.TenantID, got.TenantID)
	assert.Equal(t, lic.ProductCode, got.ProductCode)
	assert.Equal(t, lic.MaxUsers, got.MaxUsers)
	assert.Equal(t, lic.FeatureFlags, got.FeatureFlags)
	assert.Equal(t, license.StatusActive, got.Status)
	assert.Equal(t, "admin@p4.example", got.IssuedBy)
	assert.Nil(t, got.RevokedDate)
	assert.EqualValues(t, 1, got.Version)
	assert.Equal(t, 3, got.KeyVersion)
	assert.Equal(t, lic.SealedPayload, got.SealedPayload, "blob must round-trip byte for byte")
	assert.True(t, got.IssuedDate.Equal(lic.IssuedDate))
	assert.True(t, got.ExpiryDate.Equal(lic.ExpiryDate))
}

func TestSQLiteStore_FindByIDMissing(t *testing.T) {
	s := openTestStore(t)

	got, err := s.FindByID(context.Background(), "lic-missing")
	require.NoError(t, err)
	assert.Nil(t, got, "absence is nil, nil — not an error")
}

func TestSQLiteStore_FindByTenant(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := sampleLicense("lic-older", "tenant-42")
	older.IssuedDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := sampleLicense("lic-newer", "tenant-42")
	other := sampleLicense("lic-other", "tenant-acme")

	require.NoError(t, s.Save(ctx, older))
	require.NoError(t, s.Save(ctx, newer))
	require.NoError(t, s.Save(ctx, other))

	licenses, err := s.FindByTenant(ctx, "tenant-42")
	require.NoError(t, err)
	require.Len(t, licenses, 2)
	assert.Equal(t, "lic-newer", licenses[0].ID, "newest first")
	assert.Equal(t, "lic-older", licenses[1].ID)

	empty, err := s.FindByTenant(ctx, "tenant-nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStore_SaveRejectsDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleLicense("lic-1", "tenant-42")))
	err := s.Save(ctx, sampleLicense("lic-1", "tenant-42"))
	assert.Error(t, err, "license ids are immutable, no silent overwrite")
}

func TestSQLiteStore_UpdateStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lic := sampleLicense("lic-1", "tenant-42")
	require.NoError(t, s.Save(ctx, lic))

	revokedAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	applied, err := s.UpdateStatus(ctx, "lic-1", license.StatusRevoked, "admin", "contract ended", revokedAt, 1)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.FindByID(ctx, "lic-1")
	require.NoError(t, err)
	assert.Equal(t, license.StatusRevoked, got.Status)
	assert.Equal(t, "admin", got.RevokedBy)
	assert.Equal(t, "contract ended", got.RevocationReason)
	require.NotNil(t, got.RevokedDate)
	assert.True(t, got.RevokedDate.Equal(revokedAt))
	assert.EqualValues(t, 2, got.Version)
}

func TestSQLiteStore_UpdateStatusVersionGuard(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lic := sampleLicense("lic-1", "tenant-42")
	require.NoError(t, s.Save(ctx, lic))

	// Stale version: the update must not apply.
	applied, err := s.UpdateStatus(ctx, "lic-1", license.StatusRevoked, "admin", "stale", time.Now(), 99)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.FindByID(ctx, "lic-1")
	require.NoError(t, err)
	assert.Equal(t, license.StatusActive, got.Status)

	// Unknown id behaves the same way.
	applied, err = s.UpdateStatus(ctx, "lic-missing", license.StatusRevoked, "admin", "none", time.Now(), 1)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestSQLiteStore_PartnersAndTenants(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &tenant.Partner{
		ID:           "partner-1",
		Name:         "Acme Resellers",
		Kind:         tenant.KindDistributor,
		ContactEmail: "sales@acme.example",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SavePartner(ctx, p))

	gotP, err := s.FindPartner(ctx, "partner-1")
	require.NoError(t, err)
	require.NotNil(t, gotP)
	assert.Equal(t, p.Name, gotP.Name)
	assert.Equal(t, tenant.KindDistributor, gotP.Kind)
	assert.Equal(t, p.ContactEmail, gotP.ContactEmail)

	missing, err := s.FindPartner(ctx, "partner-missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ten := &tenant.Tenant{
		ID:        "tenant-42",
		PartnerID: "partner-1",
		Name:      "Tenant Forty Two",
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveTenant(ctx, ten))

	gotT, err := s.FindTenant(ctx, "tenant-42")
	require.NoError(t, err)
	require.NotNil(t, gotT)
	assert.Equal(t, "partner-1", gotT.PartnerID)

	tenants, err := s.ListTenantsByPartner(ctx, "partner-1")
	require.NoError(t, err)
	assert.Len(t, tenants, 1)

	partners, err := s.ListPartners(ctx)
	require.NoError(t, err)
	assert.Len(t, partners, 1)
}

func TestSQLiteStore_WorksWithRevocationManager(t *testing.T) {
	// The SQLite store must satisfy the same contract the engine's in-memory
	// test double does: version-guarded transitions.
	s := openTestStore(t)
	ctx := context.Background()

	var _ license.Store = s

	lic := sampleLicense("lic-1", "tenant-42")
	require.NoError(t, s.Save(ctx, lic))

	applied, err := s.UpdateStatus(ctx, "lic-1", license.StatusRevoked, "a", "first", time.Now().UTC(), lic.Version)
	require.NoError(t, err)
	require.True(t, applied)

	// Second transition with the original version must lose.
	applied, err = s.UpdateStatus(ctx, "lic-1", license.StatusRevoked, "b", "second", time.Now().UTC(), lic.Version)
	require.NoError(t, err)
	assert.False(t, applied)
}
