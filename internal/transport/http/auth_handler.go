package http

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"p4portal/internal/auth"
	apierrors "p4portal/internal/errors"
)

// AuthHandler exchanges the operator bootstrap secret for a session token.
type AuthHandler struct {
	tokens          *auth.TokenService
	bootstrapSecret string
	tokenTTL        time.Duration
	logger          *slog.Logger
	validate        *validator.Validate
}

// NewAuthHandler creates a new auth handler. An empty bootstrap secret
// disables the exchange endpoint.
func NewAuthHandler(tokens *auth.TokenService, bootstrapSecret string, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		tokens:          tokens,
		bootstrapSecret: bootstrapSecret,
		tokenTTL:        tokenTTL,
		logger:          logger.With(slog.String("handler", "auth")),
		validate:        validator.New(),
	}
}

// TokenRequest is the token exchange payload.
type TokenRequest struct {
	Subject string `json:"subject" validate:"required"`
	Secret  string `json:"secret" validate:"required"`
}

// Bind implements render.Binder.
func (req *TokenRequest) Bind(r *http.Request) error {
	return nil
}

// TokenResponse carries an issued session token.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Routes returns a chi router for auth endpoints.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/token", h.Token)
	return r
}

// Token handles POST /api/auth/token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bootstrapSecret == "" || h.tokens == nil {
		apierrors.WriteError(w, apierrors.ErrServiceUnavailable)
		return
	}

	var req TokenRequest
	if err := render.Bind(r, &req); err != nil {
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.bootstrapSecret)) != 1 {
		h.logger.WarnContext(ctx, "token exchange rejected",
			slog.String("subject", req.Subject),
			slog.String("remote_addr", r.RemoteAddr))
		apierrors.WriteError(w, apierrors.ErrUnauthorized)
		return
	}

	token, err := h.tokens.Issue(req.Subject, "admin")
	if err != nil {
		apierrors.WriteError(w, apierrors.FromDomain(err))
		return
	}

	h.logger.InfoContext(ctx, "session token issued",
		slog.String("subject", req.Subject))

	render.JSON(w, r, &TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: time.Now().Add(h.tokenTTL).UTC(),
	})
}
