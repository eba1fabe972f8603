package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/refugios-lanche/api/internal/domain"
	"github.com/refugios-lanche/api/internal/platform/auth"
	"github.com/refugios-lanche/api/internal/services"
)

type stubAuthService struct {
	loginFn   func(ctx context.Context, cmd services.LoginCommand) (services.AuthSession, error)
	profileFn func(ctx context.Context, adminID string) (services.Admin, error)
}

func (s *stubAuthService) Login(ctx context.Context, cmd services.LoginCommand) (services.AuthSession, error) {
	if s.loginFn == nil {
		return services.AuthSession{}, errors.New("login not stubbed")
	}
	return s.loginFn(ctx, cmd)
}

func (s *stubAuthService) Profile(ctx context.Context, adminID string) (services.Admin, error) {
	if s.profileFn == nil {
		return services.Admin{}, errors.New("profile not stubbed")
	}
	return s.profileFn(ctx, adminID)
}

func sampleAdmin() domain.Admin {
	return domain.Admin{
		ID:     "adm_1",
		Name:   "Marina",
		Email:  "marina@refugioslanches.com.br",
		Role:   auth.RoleAdmin,
		Active: true,
	}
}

func newAuthRouter(t *testing.T, service services.AuthService, verifier auth.TokenVerifier) http.Handler {
	t.Helper()
	h := NewAuthHandlers(auth.NewAuthenticator(verifier), service)
	return NewRouter(WithAuthRoutes(h.Routes))
}

func TestLoginReturnsSession(t *testing.T) {
	expires := time.Date(2026, 3, 11, 18, 30, 0, 0, time.UTC)
	service := &stubAuthService{
		loginFn: func(_ context.Context, cmd services.LoginCommand) (services.AuthSession, error) {
			if cmd.Email != "marina@refugioslanches.com.br" || cmd.Password != "s3nha-forte" {
				t.Fatalf("credentials not mapped: %+v", cmd)
			}
			return services.AuthSession{
				Token:     "signed-token",
				ExpiresAt: expires,
				Admin:     sampleAdmin(),
			}, nil
		},
	}
	router := newAuthRouter(t, service, adminVerifier())

	body := `{"email": "marina@refugioslanches.com.br", "password": "s3nha-forte"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decodeBody(t, rec, &resp)
	if resp.Token != "signed-token" {
		t.Fatalf("unexpected token %q", resp.Token)
	}
	if resp.Admin.Email != "marina@refugioslanches.com.br" || resp.Admin.Role != auth.RoleAdmin {
		t.Fatalf("unexpected admin payload: %+v", resp.Admin)
	}
	if resp.ExpiresAt == "" {
		t.Fatal("expected expiry timestamp")
	}
}

func TestLoginMapsInvalidCredentials(t *testing.T) {
	service := &stubAuthService{
		loginFn: func(context.Context, services.LoginCommand) (services.AuthSession, error) {
			return services.AuthSession{}, services.ErrAuthInvalidCredentials
		},
	}
	router := newAuthRouter(t, service, adminVerifier())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email": "x@y.z", "password": "nope"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var envelope map[string]any
	decodeBody(t, rec, &envelope)
	if envelope["error"] != "invalid_credentials" {
		t.Fatalf("unexpected error code: %v", envelope)
	}
}

func TestLoginMapsDisabledAccount(t *testing.T) {
	service := &stubAuthService{
		loginFn: func(context.Context, services.LoginCommand) (services.AuthSession, error) {
			return services.AuthSession{}, services.ErrAuthAccountDisabled
		},
	}
	router := newAuthRouter(t, service, adminVerifier())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email": "x@y.z", "password": "pass"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMeRequiresToken(t *testing.T) {
	router := newAuthRouter(t, &stubAuthService{}, adminVerifier())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestMeResolvesProfileFromToken(t *testing.T) {
	service := &stubAuthService{
		profileFn: func(_ context.Context, adminID string) (services.Admin, error) {
			if adminID != "adm_1" {
				t.Fatalf("unexpected admin id %q", adminID)
			}
			return sampleAdmin(), nil
		},
	}
	router := newAuthRouter(t, service, adminVerifier())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp map[string]adminPayload
	decodeBody(t, rec, &resp)
	if resp["admin"].Name != "Marina" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}
