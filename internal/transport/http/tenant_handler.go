package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "p4portal/internal/errors"
	"p4portal/internal/tenant"
)

// TenantHandler handles partner and tenant directory requests.
type TenantHandler struct {
	directory *tenant.Directory
	licenses  *LicenseHandler
	logger    *slog.Logger
	validate  *validator.Validate
}

// NewTenantHandler creates a new directory handler. The license handler is
// needed so per-tenant license listings mount under the tenant resource.
func NewTenantHandler(directory *tenant.Directory, licenses *LicenseHandler, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{
		directory: directory,
		licenses:  licenses,
		logger:    logger.With(slog.String("handler", "tenant")),
		validate:  validator.New(),
	}
}

// RegisterPartnerRequest is the partner registration payload.
type RegisterPartnerRequest struct {
	Name         string `json:"name" validate:"required"`
	Kind         string `json:"kind" validate:"required,oneof=distributor reseller"`
	ContactEmail string `json:"contact_email" validate:"required,email"`
}

// Bind implements render.Binder.
func (req *RegisterPartnerRequest) Bind(r *http.Request) error {
	return nil
}

// RegisterTenantRequest is the tenant registration payload. PartnerID is
// taken from the URL on the nested route and from the body on the top-level
// one.
type RegisterTenantRequest struct {
	PartnerID string `json:"partner_id,omitempty"`
	Name      string `json:"name" validate:"required"`
}

// Bind implements render.Binder.
func (req *RegisterTenantRequest) Bind(r *http.Request) error {
	return nil
}

// PartnerRoutes returns a chi router for partner endpoints.
func (h *TenantHandler) PartnerRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.RegisterPartner)
	r.Get("/", h.ListPartners)
	r.Get("/{id}", h.GetPartner)
	r.Post("/{id}/tenants", h.RegisterTenant)
	r.Get("/{id}/tenants", h.ListTenants)

	return r
}

// TenantRoutes returns a chi router for tenant endpoints.
func (h *TenantHandler) TenantRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.RegisterTenant)
	r.Get("/{id}", h.GetTenant)
	r.Get("/{id}/licenses", h.licenses.ListByTenant)

	return r
}

// RegisterPartner handles POST /api/partners.
func (h *TenantHandler) RegisterPartner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterPartnerRequest
	if err := render.Bind(r, &req); err != nil {
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}

	p, err := h.directory.RegisterPartner(ctx, req.Name, req.ContactEmail, tenant.PartnerKind(req.Kind))
	if err != nil {
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}

	h.logger.InfoContext(ctx, "partner registered",
		slog.String("partner_id", p.ID),
		slog.String("name", p.Name))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, p)
}

// ListPartners handles GET /api/partners.
func (h *TenantHandler) ListPartners(w http.ResponseWriter, r *http.Request) {
	partners, err := h.directory.ListPartners(r.Context())
	if err != nil {
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}
	if partners == nil {
		partners = []*tenant.Partner{}
	}
	render.JSON(w, r, partners)
}

// GetPartner handles GET /api/partners/{id}.
func (h *TenantHandler) GetPartner(w http.ResponseWriter, r *http.Request) {
	p, err := h.directory.GetPartner(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}
	render.JSON(w, r, p)
}

// RegisterTenant handles POST /api/partners/{id}/tenants and POST
// /api/tenants.
func (h *TenantHandler) RegisterTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partnerID := chi.URLParam(r, "id")

	var req RegisterTenantRequest
	if err := render.Bind(r, &req); err != nil {
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}
	if partnerID == "" {
		partnerID = req.PartnerID
	}

	t, err := h.directory.RegisterTenant(ctx, partnerID, req.Name)
	if err != nil {
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}

	h.logger.InfoContext(ctx, "tenant registered",
		slog.String("tenant_id", t.ID),
		slog.String("partner_id", partnerID))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, t)
}

// ListTenants handles GET /api/partners/{id}/tenants.
func (h *TenantHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.directory.ListTenants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}
	if tenants == nil {
		tenants = []*tenant.Tenant{}
	}
	render.JSON(w, r, tenants)
}

// GetTenant handles GET /api/tenants/{id}.
func (h *TenantHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.directory.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}
	render.JSON(w, r, t)
}
