package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p4portal/internal/license"
)

type memStore struct {
	partners map[string]*Partner
	tenants  map[string]*Tenant
}

func newMemStore() *memStore {
	return &memStore{
		partners: make(map[string]*Partner),
		tenants:  make(map[string]*Tenant),
	}
}

func (s *memStore) SavePartner(_ context.Context, p *Partner) error {
	clone := *p
	s.partners[p.ID] = &clone
	return nil
}

func (s *memStore) FindPartner(_ context.Context, id string) (*Partner, error) {
	p, ok := s.partners[id]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (s *memStore) ListPartners(_ context.Context) ([]*Partner, error) {
	var out []*Partner
	for _, p := range s.partners {
		clone := *p
		out = append(out, &clone)
	}
	return out, nil
}

func (s *memStore) SaveTenant(_ context.Context, t *Tenant) error {
	clone := *t
	s.tenants[t.ID] = &clone
	return nil
}

func (s *memStore) FindTenant(_ context.Context, id string) (*Tenant, error) {
	t, ok := s.tenants[id]
	if !ok {
		return nil, nil
	}
	clone := *t
	return &clone, nil
}

func (s *memStore) ListTenantsByPartner(_ context.Context, partnerID string) ([]*Tenant, error) {
	var out []*Tenant
	for _, t := range s.tenants {
		if t.PartnerID == partnerID {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}

func TestDirectory_RegisterPartner(t *testing.T) {
	d := NewDirectory(newMemStore())
	ctx := context.Background()

	p, err := d.RegisterPartner(ctx, "  Acme Resellers  ", "sales@acme.example", KindReseller)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Acme Resellers", p.Name, "names are trimmed")
	assert.Equal(t, KindReseller, p.Kind)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := d.GetPartner(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestDirectory_RegisterPartnerInvalid(t *testing.T) {
	d := NewDirectory(newMemStore())
	ctx := context.Background()

	_, err := d.RegisterPartner(ctx, "", "sales@acme.example", KindReseller)
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = d.RegisterPartner(ctx, "Acme", "   ", KindReseller)
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = d.RegisterPartner(ctx, "Acme", "sales@acme.example", PartnerKind("franchise"))
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestDirectory_RegisterTenant(t *testing.T) {
	d := NewDirectory(newMemStore())
	ctx := context.Background()

	p, err := d.RegisterPartner(ctx, "Acme", "sales@acme.example", KindDistributor)
	require.NoError(t, err)

	ten, err := d.RegisterTenant(ctx, p.ID, "Tenant Forty Two")
	require.NoError(t, err)
	assert.Equal(t, p.ID, ten.PartnerID)

	exists, err := d.Exists(ctx, ten.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = d.Exists(ctx, "tenant-unknown")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDirectory_RegisterTenantUnknownPartner(t *testing.T) {
	d := NewDirectory(newMemStore())

	_, err := d.RegisterTenant(context.Background(), "partner-missing", "Tenant")
	assert.ErrorIs(t, err, license.ErrNotFound)
}

func TestDirectory_GetTenantMissing(t *testing.T) {
	d := NewDirectory(newMemStore())

	_, err := d.GetTenant(context.Background(), "tenant-missing")
	assert.ErrorIs(t, err, license.ErrNotFound)
}

func TestDirectory_ListTenants(t *testing.T) {
	d := NewDirectory(newMemStore())
	ctx := context.Background()

	p, err := d.RegisterPartner(ctx, "Acme", "sales@acme.example", KindDistributor)
	require.NoError(t, err)
	other, err := d.RegisterPartner(ctx, "Globex", "it@globex.example", KindReseller)
	require.NoError(t, err)

	_, err = d.RegisterTenant(ctx, p.ID, "First")
	require.NoError(t, err)
	_, err = d.RegisterTenant(ctx, p.ID, "Second")
	require.NoError(t, err)
	_, err = d.RegisterTenant(ctx, other.ID, "Elsewhere")
	require.NoError(t, err)

	tenants, err := d.ListTenants(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, tenants, 2)

	// The directory satisfies the engine's issuance-time check.
	var _ license.TenantDirectory = d
}
