package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"p4portal/internal/auth"
	apierrors "p4portal/internal/errors"
	"p4portal/internal/license"
)

// LicenseHandler handles license-related HTTP requests.
type LicenseHandler struct {
	engine   *license.Engine
	logger   *slog.Logger
	validate *validator.Validate
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(engine *license.Engine, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		engine:   engine,
		logger:   logger.With(slog.String("handler", "license")),
		validate: validator.New(),
	}
}

// IssueLicenseRequest is the issuance payload.
type IssueLicenseRequest struct {
	TenantID    string            `json:"tenant_id" validate:"required"`
	ProductCode string            `json:"product_code" validate:"required"`
	MaxUsers    int               `json:"max_users" validate:"required,min=1"`
	IssuedDate  *time.Time        `json:"issued_date,omitempty"`
	ExpiryDate  time.Time         `json:"expiry_date" validate:"required"`
	Flags       map[string]string `json:"feature_flags,omitempty"`
}

// Bind implements render.Binder.
func (req *IssueLicenseRequest) Bind(r *http.Request) error {
	return nil
}

// RevokeLicenseRequest is the revocation payload.
type RevokeLicenseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Bind implements render.Binder.
func (req *RevokeLicenseRequest) Bind(r *http.Request) error {
	return nil
}

// LicenseResponse is the API view of a stored license. The sealed payload is
// not exposed; clients interact with licenses only through the API verbs.
type LicenseResponse struct {
	ID               string            `json:"id"`
	TenantID         string            `json:"tenant_id"`
	ProductCode      string            `json:"product_code"`
	MaxUsers         int               `json:"max_users"`
	IssuedDate       time.Time         `json:"issued_date"`
	ExpiryDate       time.Time         `json:"expiry_date"`
	FeatureFlags     map[string]string `json:"feature_flags"`
	Status           string            `json:"status"`
	IssuedBy         string            `json:"issued_by,omitempty"`
	RevokedDate      *time.Time        `json:"revoked_date,omitempty"`
	RevokedBy        string            `json:"revoked_by,omitempty"`
	RevocationReason string            `json:"revocation_reason,omitempty"`
	KeyVersion       int               `json:"key_version"`
}

// ValidationResponse reports a validation verdict.
type ValidationResponse struct {
	LicenseID string            `json:"license_id"`
	Verdict   string            `json:"verdict"`
	CheckedAt time.Time         `json:"checked_at"`
	MaxUsers  int               `json:"max_users,omitempty"`
	Flags     map[string]string `json:"feature_flags,omitempty"`
}

// RevocationResponse reports a revocation outcome.
type RevocationResponse struct {
	LicenseID      string `json:"license_id"`
	Status         string `json:"status"`
	AlreadyRevoked bool   `json:"already_revoked"`
}

func toLicenseResponse(lic *license.License) *LicenseResponse {
	return &LicenseResponse{
		ID:               lic.ID,
		TenantID:         lic.TenantID,
		ProductCode:      lic.ProductCode,
		MaxUsers:         lic.MaxUsers,
		IssuedDate:       lic.IssuedDate,
		ExpiryDate:       lic.ExpiryDate,
		FeatureFlags:     lic.FeatureFlags,
		Status:           string(lic.Status),
		IssuedBy:         lic.IssuedBy,
		RevokedDate:      lic.RevokedDate,
		RevokedBy:        lic.RevokedBy,
		RevocationReason: lic.RevocationReason,
		KeyVersion:       lic.KeyVersion,
	}
}

// Routes returns a chi router for license endpoints.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Issue)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/validate", h.Validate)
	r.Post("/{id}/revoke", h.Revoke)
	r.Delete("/{id}", h.Delete)

	return r
}

// Issue handles POST /api/licenses.
func (h *LicenseHandler) Issue(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license_handler.issue",
		trace.WithAttributes(attribute.String("http.route", "/api/licenses")),
	)
	defer span.End()

	var req IssueLicenseRequest
	if err := render.Bind(r, &req); err != nil {
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}

	issueReq := license.IssueRequest{
		TenantID:    req.TenantID,
		ProductCode: req.ProductCode,
		MaxUsers:    req.MaxUsers,
		ExpiryDate:  req.ExpiryDate,
		Flags:       license.Flags(req.Flags),
		IssuedBy:    callerSubject(r),
	}
	if req.IssuedDate != nil {
		issueReq.IssuedDate = *req.IssuedDate
	}

	lic, err := h.engine.Issue(ctx, issueReq)
	if err != nil {
		span.RecordError(err)
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}

	h.logger.InfoContext(ctx, "license issued",
		slog.String("license_id", lic.ID),
		slog.String("product_code", lic.ProductCode))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toLicenseResponse(lic))
}

// Get handles GET /api/licenses/{id}.
func (h *LicenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lic, err := h.engine.Get(r.Context(), id)
	if err != nil {
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}
	render.JSON(w, r, toLicenseResponse(lic))
}

// Validate handles GET /api/licenses/{id}/validate.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license_handler.validate")
	defer span.End()

	id := chi.URLParam(r, "id")

	result, err := h.engine.Validate(ctx, id)
	if err != nil {
		span.RecordError(err)
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}
	span.SetAttributes(attribute.String("license.verdict", string(result.Verdict)))

	resp := &ValidationResponse{
		LicenseID: id,
		Verdict:   string(result.Verdict),
		CheckedAt: time.Now().UTC(),
	}
	if result.Payload != nil {
		resp.MaxUsers = result.Payload.MaxUsers
		resp.Flags = result.Payload.FeatureFlags
	}
	render.JSON(w, r, resp)
}

// Revoke handles POST /api/licenses/{id}/revoke.
func (h *LicenseHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req RevokeLicenseRequest
	if err := render.Bind(r, &req); err != nil {
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}

	h.finishRevocation(w, r, h.engine.Revoke(ctx, id, callerSubject(r), req.Reason), id)
}

// Delete handles DELETE /api/licenses/{id}. Deletion is revocation under a
// fixed reason; the record itself is retained.
func (h *LicenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.finishRevocation(w, r, h.engine.Delete(r.Context(), id, callerSubject(r)), id)
}

func (h *LicenseHandler) finishRevocation(w http.ResponseWriter, r *http.Request, err error, id string) {
	if err != nil {
		// Repeat revocations are benign: report the terminal state instead
		// of an error.
		if errors.Is(err, license.ErrAlreadyRevoked) {
			render.JSON(w, r, &RevocationResponse{
				LicenseID:      id,
				Status:         string(license.StatusRevoked),
				AlreadyRevoked: true,
			})
			return
		}
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}
	render.JSON(w, r, &RevocationResponse{
		LicenseID: id,
		Status:    string(license.StatusRevoked),
	})
}

// ListByTenant handles GET /api/tenants/{id}/licenses. Registered by the
// tenant handler so license listings live under the tenant resource.
func (h *LicenseHandler) ListByTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	licenses, err := h.engine.ListByTenant(r.Context(), tenantID)
	if err != nil {
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}

	out := make([]*LicenseResponse, 0, len(licenses))
	for _, lic := range licenses {
		out = append(out, toLicenseResponse(lic))
	}
	render.JSON(w, r, out)
}

// callerSubject returns the authenticated caller, falling back to a fixed
// marker for unauthenticated deployments (tests, local development).
func callerSubject(r *http.Request) string {
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		return id.Subject
	}
	return "anonymous"
}
