package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "refugios-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "refugios-dev" {
		t.Errorf("unexpected firestore project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "refugios-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Errorf("unexpected default token ttl: %s", cfg.Auth.TokenTTL)
	}
	if cfg.Orders.Timezone != "America/Sao_Paulo" {
		t.Errorf("unexpected default timezone: %s", cfg.Orders.Timezone)
	}
	if cfg.Orders.ListLimit != 50 {
		t.Errorf("unexpected default list limit: %d", cfg.Orders.ListLimit)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected default environment local, got %s", cfg.Environment)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_SERVER_READ_TIMEOUT":       "20s",
		"API_SERVER_IDLE_TIMEOUT":       "2m",
		"API_FIRESTORE_PROJECT_ID":      "refugios-prod",
		"API_AUTH_JWT_SECRET":           "secret://auth/jwt",
		"API_AUTH_TOKEN_TTL":            "6h",
		"API_ORDERS_FRONTEND_BASE_URL":  "https://pedidos.example.com",
		"API_ORDERS_TIMEZONE":           "America/Fortaleza",
		"API_ORDERS_LIST_LIMIT":         "25",
		"API_PUBSUB_PROJECT_ID":         "refugios-events",
		"API_PUBSUB_ORDER_EVENTS_TOPIC": "order-events",
		"API_ENVIRONMENT":               "PROD",
	}

	secrets := map[string]string{
		"secret://auth/jwt": "hs256-signing-key",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Auth.JWTSecret != "hs256-signing-key" {
		t.Errorf("expected resolved jwt secret, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.TokenTTL != 6*time.Hour {
		t.Errorf("unexpected token ttl %s", cfg.Auth.TokenTTL)
	}
	if cfg.Orders.FrontendBaseURL != "https://pedidos.example.com" {
		t.Errorf("unexpected frontend base url %s", cfg.Orders.FrontendBaseURL)
	}
	if cfg.Orders.Timezone != "America/Fortaleza" {
		t.Errorf("unexpected timezone %s", cfg.Orders.Timezone)
	}
	if cfg.Orders.ListLimit != 25 {
		t.Errorf("unexpected list limit %d", cfg.Orders.ListLimit)
	}
	if cfg.PubSub.ProjectID != "refugios-events" {
		t.Errorf("unexpected pubsub project %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.OrderEventsTopic != "order-events" {
		t.Errorf("unexpected topic %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Environment != "prod" {
		t.Errorf("expected environment prod, got %s", cfg.Environment)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIRESTORE_PROJECT_ID=refugios-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "refugios-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "refugios-dev",
		"API_AUTH_JWT_SECRET":      "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "refugios-dev",
		"API_AUTH_JWT_SECRET":      "sm://auth/jwt",
	}

	secrets := map[string]string{
		"secret://auth/jwt": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.JWTSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Auth.JWTSecret)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_ORDERS_TIMEZONE=America/Recife\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")

	overrides := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_ORDERS_TIMEZONE"]; got != "America/Recife" {
		t.Fatalf("expected dotenv timezone, got %s", got)
	}
}
