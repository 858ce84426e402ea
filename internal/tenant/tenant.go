// Package tenant holds the partner and tenant directory. Partners resell the
// product; tenants are the organizations licenses are issued to. Every
// tenant belongs to exactly one partner.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"p4portal/internal/license"
)

// ErrInvalidEntry reports a registration with missing or unusable fields.
var ErrInvalidEntry = errors.New("invalid directory entry")

// PartnerKind distinguishes how a partner resells the product.
type PartnerKind string

const (
	KindDistributor PartnerKind = "distributor"
	KindReseller    PartnerKind = "reseller"
)

// Partner is a reselling organization.
type Partner struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Kind         PartnerKind `json:"kind"`
	ContactEmail string      `json:"contact_email"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Tenant is a licensed organization under a partner.
type Tenant struct {
	ID        string    `json:"id"`
	PartnerID string    `json:"partner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence boundary for the directory.
type Store interface {
	SavePartner(ctx context.Context, p *Partner) error
	FindPartner(ctx context.Context, id string) (*Partner, error)
	ListPartners(ctx context.Context) ([]*Partner, error)

	SaveTenant(ctx context.Context, t *Tenant) error
	FindTenant(ctx context.Context, id string) (*Tenant, error)
	ListTenantsByPartner(ctx context.Context, partnerID string) ([]*Tenant, error)
}

// Directory exposes partner and tenant registration and lookups. It also
// implements the tenant-existence check the license engine performs at
// issuance time.
type Directory struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewDirectory builds a Directory over a store.
func NewDirectory(store Store) *Directory {
	return &Directory{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Exists reports whether a tenant is registered.
func (d *Directory) Exists(ctx context.Context, tenantID string) (bool, error) {
	t, err := d.store.FindTenant(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to look up tenant: %w", err)
	}
	return t != nil, nil
}

// RegisterPartner creates a new partner.
func (d *Directory) RegisterPartner(ctx context.Context, name, contactEmail string, kind PartnerKind) (*Partner, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: partner name is required", ErrInvalidEntry)
	}
	if strings.TrimSpace(contactEmail) == "" {
		return nil, fmt.Errorf("%w: partner contact email is required", ErrInvalidEntry)
	}
	if kind != KindDistributor && kind != KindReseller {
		return nil, fmt.Errorf("%w: unknown partner kind %q", ErrInvalidEntry, kind)
	}

	p := &Partner{
		ID:           d.newID(),
		Name:         strings.TrimSpace(name),
		Kind:         kind,
		ContactEmail: strings.TrimSpace(contactEmail),
		CreatedAt:    d.now().UTC(),
	}
	if err := d.store.SavePartner(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save partner: %w", err)
	}
	return p, nil
}

// RegisterTenant creates a new tenant under an existing partner.
func (d *Directory) RegisterTenant(ctx context.Context, partnerID, name string) (*Tenant, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: tenant name is required", ErrInvalidEntry)
	}

	p, err := d.store.FindPartner(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up partner: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: partner %s", license.ErrNotFound, partnerID)
	}

	t := &Tenant{
		ID:        d.newID(),
		PartnerID: partnerID,
		Name:      strings.TrimSpace(name),
		CreatedAt: d.now().UTC(),
	}
	if err := d.store.SaveTenant(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save tenant: %w", err)
	}
	return t, nil
}

// GetTenant returns a tenant by id.
func (d *Directory) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	t, err := d.store.FindTenant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tenant: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: tenant %s", license.ErrNotFound, id)
	}
	return t, nil
}

// GetPartner returns a partner by id.
func (d *Directory) GetPartner(ctx context.Context, id string) (*Partner, error) {
	p, err := d.store.FindPartner(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up partner: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: partner %s", license.ErrNotFound, id)
	}
	return p, nil
}

// ListPartners returns every registered partner.
func (d *Directory) ListPartners(ctx context.Context) ([]*Partner, error) {
	partners, err := d.store.ListPartners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	return partners, nil
}

// ListTenants returns the tenants registered under a partner.
func (d *Directory) ListTenants(ctx context.Context, partnerID string) ([]*Tenant, error) {
	tenants, err := d.store.ListTenantsByPartner(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}
