package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"p4portal/internal/audit"
)

const TracerName = "license-engine"

// IssueRequest carries the commercial terms for a new license.
type IssueRequest struct {
	TenantID    string
	ProductCode string
	MaxUsers    int
	IssuedDate  time.Time
	ExpiryDate  time.Time
	Flags       Flags
	IssuedBy    string
}

// Engine is the facade over the issue/validate/revoke pipeline. It owns the
// orchestration order; the crypto components below it are deliberately
// ignorant of storage and auditing.
type Engine struct {
	signer      *Signer
	encryptor   *Encryptor
	validator   *Validator
	revocations *RevocationManager
	store       Store
	tenants     TenantDirectory
	audit       audit.Sink
	metrics     *Metrics
	tracer      trace.Tracer
	now         func() time.Time
	newID       func() string
}

// NewEngine wires an Engine from its collaborators. metrics may be nil.
func NewEngine(signer *Signer, encryptor *Encryptor, store Store, tenants TenantDirectory, sink audit.Sink, metrics *Metrics) (*Engine, error) {
	if signer == nil || encryptor == nil {
		return nil, fmt.Errorf("%w: signer and encryptor are required", ErrNotConfigured)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: license store is required", ErrNotConfigured)
	}
	return &Engine{
		signer:      signer,
		encryptor:   encryptor,
		validator:   NewValidator(signer, encryptor, sink),
		revocations: NewRevocationManager(store, sink),
		store:       store,
		tenants:     tenants,
		audit:       sink,
		metrics:     metrics,
		tracer:      otel.Tracer(TracerName),
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

// Issue validates the requested terms, builds and signs the canonical
// payload, seals it bound to the tenant, and persists the record. Term
// validation happens before any key material is touched, so a bad request
// never reaches the crypto path.
func (e *Engine) Issue(ctx context.Context, req IssueRequest) (*License, error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "license.issue")
	defer span.End()

	issued := req.IssuedDate
	if issued.IsZero() {
		issued = start
	}
	flags := req.Flags
	if flags == nil {
		flags = Flags{}
	}

	payload, err := BuildPayload(req.TenantID, req.ProductCode, req.MaxUsers, issued, req.ExpiryDate, flags)
	if err != nil {
		e.logOperation(ctx, "issue", start, err)
		return nil, err
	}

	if e.tenants != nil {
		exists, err := e.tenants.Exists(ctx, req.TenantID)
		if err != nil {
			err = fmt.Errorf("failed to check tenant %s: %w", maskTenantID(req.TenantID), err)
			e.logOperation(ctx, "issue", start, err)
			return nil, err
		}
		if !exists {
			err = fmt.Errorf("%w: tenant %s", ErrNotFound, maskTenantID(req.TenantID))
			e.logOperation(ctx, "issue", start, err)
			return nil, err
		}
	}

	sig, err := e.signer.Sign(payload)
	if err != nil {
		e.logOperation(ctx, "issue", start, err)
		return nil, err
	}

	blob, keyVersion, err := e.encryptor.Seal(joinPayloadSignature(payload, sig), []byte(req.TenantID))
	if err != nil {
		e.logOperation(ctx, "issue", start, err)
		return nil, err
	}

	lic := &License{
		ID:            e.newID(),
		TenantID:      req.TenantID,
		ProductCode:   req.ProductCode,
		MaxUsers:      req.MaxUsers,
		IssuedDate:    issued.UTC(),
		ExpiryDate:    req.ExpiryDate.UTC(),
		FeatureFlags:  flags,
		Status:        StatusActive,
		IssuedBy:      req.IssuedBy,
		SealedPayload: blob,
		KeyVersion:    keyVersion,
	}

	if err := e.store.Save(ctx, lic); err != nil {
		err = fmt.Errorf("failed to save license: %w", err)
		e.logOperation(ctx, "issue", start, err)
		return nil, err
	}

	if e.audit != nil {
		msg := fmt.Sprintf("license issued for tenant %s product %s by %s", hashSubject(req.TenantID), req.ProductCode, req.IssuedBy)
		_ = e.audit.Record(ctx, "license_engine", "issue", lic.ID, msg, false)
	}

	e.metrics.recordIssued(ctx)
	e.metrics.recordDuration(ctx, "issue", start)
	e.logInfo(ctx, "issue", "license issued",
		slog.String("license_id", lic.ID),
		slog.String("tenant_id", maskTenantID(req.TenantID)),
		slog.String("product_code", req.ProductCode),
		slog.Int("key_version", keyVersion),
	)
	e.logOperation(ctx, "issue", start, nil)
	return lic, nil
}

// Validate loads a license and classifies it. Unknown ids are ErrNotFound;
// every defect in a found license maps to a verdict, never an error.
func (e *Engine) Validate(ctx context.Context, id string) (*Result, error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "license.validate")
	defer span.End()

	lic, err := e.store.FindByID(ctx, id)
	if err != nil {
		err = fmt.Errorf("failed to load license %s: %w", id, err)
		e.logOperation(ctx, "validate", start, err)
		return nil, err
	}
	if lic == nil {
		return nil, fmt.Errorf("%w: license %s", ErrNotFound, id)
	}

	result, err := e.validator.Validate(ctx, lic)
	if err != nil {
		e.logOperation(ctx, "validate", start, err)
		return nil, err
	}

	e.metrics.recordValidation(ctx, result.Verdict)
	e.metrics.recordDuration(ctx, "validate", start)
	logVerdict := e.logInfo
	if result.Verdict == VerdictTampered || result.Verdict == VerdictMalformed {
		logVerdict = e.logWarn
	}
	logVerdict(ctx, "validate", "license validated",
		slog.String("license_id", id),
		slog.String("verdict", string(result.Verdict)),
	)
	return result, nil
}

// Revoke marks a license revoked. ErrAlreadyRevoked is passed through for
// callers to treat as benign.
func (e *Engine) Revoke(ctx context.Context, id, revokedBy, reason string) error {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "license.revoke")
	defer span.End()

	err := e.revocations.Revoke(ctx, id, revokedBy, reason)
	if err != nil {
		if errors.Is(err, ErrAlreadyRevoked) {
			e.logInfo(ctx, "revoke", "license already revoked", slog.String("license_id", id))
			return err
		}
		e.logOperation(ctx, "revoke", start, err)
		return err
	}

	e.metrics.recordRevocation(ctx)
	e.metrics.recordDuration(ctx, "revoke", start)
	e.logInfo(ctx, "revoke", "license revoked",
		slog.String("license_id", id),
		slog.String("revoked_by", revokedBy),
	)
	return nil
}

// Delete handles deletion requests. Licenses are never physically removed;
// the request is translated into a revocation so the audit trail survives.
func (e *Engine) Delete(ctx context.Context, id, requestedBy string) error {
	return e.Revoke(ctx, id, requestedBy, "deletion requested")
}

// Get returns a stored license by id.
func (e *Engine) Get(ctx context.Context, id string) (*License, error) {
	lic, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load license %s: %w", id, err)
	}
	if lic == nil {
		return nil, fmt.Errorf("%w: license %s", ErrNotFound, id)
	}
	return lic, nil
}

// ListByTenant returns every license issued to a tenant, newest first.
func (e *Engine) ListByTenant(ctx context.Context, tenantID string) ([]*License, error) {
	licenses, err := e.store.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses for tenant %s: %w", maskTenantID(tenantID), err)
	}
	return licenses, nil
}
