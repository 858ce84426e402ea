// Package store provides the SQLite persistence layer for licenses, tenants
// and partners. Sealed payloads are stored base64-encoded and returned
// byte-for-byte; the store never inspects or rewrites them.
package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"p4portal/internal/license"
	"p4portal/internal/tenant"
)

const schema = `
CREATE TABLE IF NOT EXISTS partners (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT 'reseller',
    contact_email TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tenants (
    id TEXT PRIMARY KEY,
    partner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    FOREIGN KEY (partner_id) REFERENCES partners(id)
);

CREATE TABLE IF NOT EXISTS licenses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    product_code TEXT NOT NULL,
    max_users INTEGER NOT NULL,
    issued_date DATETIME NOT NULL,
    expiry_date DATETIME NOT NULL,
    feature_flags TEXT NOT NULL,
    status TEXT NOT NULL,
    issued_by TEXT NOT NULL DEFAULT '',
    revoked_date DATETIME,
    revoked_by TEXT NOT NULL DEFAULT '',
    revocation_reason TEXT NOT NULL DEFAULT '',
    sealed_payload TEXT NOT NULL,
    key_version INTEGER NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    FOREIGN KEY (tenant_id) REFERENCES tenants(id)
);
CREATE INDEX IF NOT EXISTS idx_licenses_tenant ON licenses(tenant_id);
`

// SQLiteStore implements license.Store and tenant.Store over a single
// SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// schema. The parent directory is created when missing.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// DB exposes the underlying handle for collaborators that share the database
// file, such as the audit sink and the backup scheduler.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save inserts a new license record. The sealed payload is persisted
// base64-encoded; feature flags are stored in their canonical encoding.
func (s *SQLiteStore) Save(ctx context.Context, lic *license.License) error {
	query := `INSERT INTO licenses
        (id, tenant_id, product_code, max_users, issued_date, expiry_date, feature_flags,
         status, issued_by, revoked_date, revoked_by, revocation_reason, sealed_payload, key_version, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`

	_, err := s.db.ExecContext(ctx, query,
		lic.ID,
		lic.TenantID,
		lic.ProductCode,
		lic.MaxUsers,
		lic.IssuedDate.UTC(),
		lic.ExpiryDate.UTC(),
		string(license.EncodeFlags(lic.FeatureFlags)),
		string(lic.Status),
		lic.IssuedBy,
		nullableTime(lic.RevokedDate),
		lic.RevokedBy,
		lic.RevocationReason,
		base64.StdEncoding.EncodeToString(lic.SealedPayload),
		lic.KeyVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to save license: %w", err)
	}
	lic.Version = 1
	return nil
}

const licenseColumns = `id, tenant_id, product_code, max_users, issued_date, expiry_date,
    feature_flags, status, issued_by, revoked_date, revoked_by, revocation_reason,
    sealed_payload, key_version, version`

// FindByID returns a license by id, or nil when absent.
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*license.License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = ?`, id)
	lic, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load license: %w", err)
	}
	return lic, nil
}

// FindByTenant returns every license for a tenant, newest first.
func (s *SQLiteStore) FindByTenant(ctx context.Context, tenantID string) ([]*license.License, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE tenant_id = ? ORDER BY issued_date DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*license.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, lic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating licenses: %w", err)
	}
	return licenses, nil
}

// UpdateStatus applies a status transition guarded by the record version.
// It reports false without error when the guard fails.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status license.Status, revokedBy, reason string, revokedAt time.Time, expectedVersion int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses
         SET status = ?, revoked_by = ?, revocation_reason = ?, revoked_date = ?, version = version + 1
         WHERE id = ? AND version = ?`,
		string(status), revokedBy, reason, revokedAt.UTC(), id, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update license status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// scanner is the shared subset of sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLicense(row scanner) (*license.License, error) {
	var (
		lic         license.License
		flagsJSON   string
		status      string
		revokedDate sql.NullTime
		sealedB64   string
	)
	err := row.Scan(
		&lic.ID,
		&lic.TenantID,
		&lic.ProductCode,
		&lic.MaxUsers,
		&lic.IssuedDate,
		&lic.ExpiryDate,
		&flagsJSON,
		&status,
		&lic.IssuedBy,
		&revokedDate,
		&lic.RevokedBy,
		&lic.RevocationReason,
		&sealedB64,
		&lic.KeyVersion,
		&lic.Version,
	)
	if err != nil {
		return nil, err
	}

	lic.Status = license.Status(status)
	if revokedDate.Valid {
		t := revokedDate.Time
		lic.RevokedDate = &t
	}

	flags, err := license.DecodeFlags([]byte(flagsJSON))
	if err != nil {
		return nil, fmt.Errorf("stored feature flags are corrupt: %w", err)
	}
	lic.FeatureFlags = flags

	blob, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil {
		return nil, fmt.Errorf("stored sealed payload is corrupt: %w", err)
	}
	lic.SealedPayload = blob

	return &lic, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// SavePartner inserts or replaces a partner.
func (s *SQLiteStore) SavePartner(ctx context.Context, p *tenant.Partner) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO partners (id, name, kind, contact_email, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(p.Kind), p.ContactEmail, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save partner: %w", err)
	}
	return nil
}

// FindPartner returns a partner by id, or nil when absent.
func (s *SQLiteStore) FindPartner(ctx context.Context, id string) (*tenant.Partner, error) {
	var p tenant.Partner
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, contact_email, created_at FROM partners WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Kind, &p.ContactEmail, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load partner: %w", err)
	}
	return &p, nil
}

// ListPartners returns all partners ordered by name.
func (s *SQLiteStore) ListPartners(ctx context.Context) ([]*tenant.Partner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, contact_email, created_at FROM partners ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query partners: %w", err)
	}
	defer rows.Close()

	var partners []*tenant.Partner
	for rows.Next() {
		var p tenant.Partner
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.ContactEmail, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan partner: %w", err)
		}
		partners = append(partners, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating partners: %w", err)
	}
	return partners, nil
}

// SaveTenant inserts or replaces a tenant.
func (s *SQLiteStore) SaveTenant(ctx context.Context, t *tenant.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tenants (id, partner_id, name, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.PartnerID, t.Name, t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

// FindTenant returns a tenant by id, or nil when absent.
func (s *SQLiteStore) FindTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, partner_id, name, created_at FROM tenants WHERE id = ?`, id,
	).Scan(&t.ID, &t.PartnerID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	return &t, nil
}

// ListTenantsByPartner returns the tenants under a partner ordered by name.
func (s *SQLiteStore) ListTenantsByPartner(ctx context.Context, partnerID string) ([]*tenant.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, partner_id, name, created_at FROM tenants WHERE partner_id = ? ORDER BY name`, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		var t tenant.Tenant
		if err := rows.Scan(&t.ID, &t.PartnerID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}
	return tenants, nil
}
