package config

import "testing"

func TestFromEnvRequiresPortAndSecret(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("JWT_SECRET", "secret")
	if _, err := FromEnv(); err == nil || err.Error() != "APP_PORT must be set" {
		t.Fatalf("expected missing APP_PORT error, got %v", err)
	}

	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "")
	if _, err := FromEnv(); err == nil || err.Error() != "JWT_SECRET must be set" {
		t.Fatalf("expected missing JWT_SECRET error, got %v", err)
	}

	t.Setenv("JWT_SECRET", "secret")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.AppPort != "8080" || cfg.TokenExpires.Hours() != 24*7 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
