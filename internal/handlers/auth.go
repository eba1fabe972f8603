package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/refugios-lanche/api/internal/platform/auth"
	"github.com/refugios-lanche/api/internal/platform/httpx"
	"github.com/refugios-lanche/api/internal/services"
)

const (
	maxLoginBodySize  = 8 * 1024
	loginAttemptsStep = 10
	loginLimiterScope = "auth:login"
)

// AuthHandlers exposes admin authentication endpoints.
type AuthHandlers struct {
	authn   *auth.Authenticator
	service services.AuthService
	limiter rateLimiter
}

// NewAuthHandlers constructs a new AuthHandlers instance.
func NewAuthHandlers(authn *auth.Authenticator, service services.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authn:   authn,
		service: service,
		limiter: newWindowRateLimiter(loginAttemptsStep, time.Minute, nil),
	}
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Post("/login", h.login)

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAdmin())
		}
		admin.Get("/me", h.me)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	Admin     adminPayload `json:"admin"`
}

type adminPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	LastLoginAt string `json:"last_login_at,omitempty"`
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "auth service unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(loginLimiterScope+":"+r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many login attempts, try again shortly", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxLoginBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req loginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	session, err := h.service.Login(ctx, services.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeAuthError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		ExpiresAt: formatTime(session.ExpiresAt),
		Admin:     buildAdminPayload(session.Admin),
	})
}

func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "auth service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.AdminFromContext(ctx)
	if !ok || strings.TrimSpace(identity.ID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "admin identity missing from request", http.StatusUnauthorized))
		return
	}

	admin, err := h.service.Profile(ctx, identity.ID)
	if err != nil {
		writeAuthError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]adminPayload{"admin": buildAdminPayload(admin)})
}

func buildAdminPayload(admin services.Admin) adminPayload {
	return adminPayload{
		ID:          admin.ID,
		Name:        admin.Name,
		Email:       admin.Email,
		Role:        admin.Role,
		LastLoginAt: formatTime(pointerTime(admin.LastLoginAt)),
	}
}

func writeAuthError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAuthInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAuthInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "email or password is incorrect", http.StatusUnauthorized))
	case errors.Is(err, services.ErrAuthAccountDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("account_disabled", "account is disabled", http.StatusForbidden))
	case errors.Is(err, services.ErrAuthAdminNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("admin_not_found", "admin not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
