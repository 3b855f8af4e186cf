package config

import (
	"testing"
	"time"
)

func TestLoadRateLimitConfigDefaults(t *testing.T) {
	cfg := LoadRateLimitConfig("public", 5, 12*time.Second)
	if !cfg.Enabled || cfg.Capacity != 5 || cfg.RefillInterval != 12*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.KeyStrategy != "ip_route" || cfg.Prefix != "rl" || cfg.Scope != "public" {
		t.Fatalf("unexpected key settings %+v", cfg)
	}
	if cfg.TTL != 10*time.Minute {
		t.Fatalf("expected default ttl 10m, got %s", cfg.TTL)
	}
}

func TestLoadRateLimitConfigScopedOverridesGlobal(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "50")
	t.Setenv("RATE_LIMIT_AUTH_CAPACITY", "3")
	t.Setenv("RATE_LIMIT_KEY_STRATEGY", "IP_USER")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")

	auth := LoadRateLimitConfig("auth", 10, 6*time.Second)
	if auth.Capacity != 3 {
		t.Fatalf("expected scoped capacity 3, got %d", auth.Capacity)
	}
	if auth.KeyStrategy != "ip_user" {
		t.Fatalf("expected lower-cased global strategy, got %q", auth.KeyStrategy)
	}
	if auth.TTL != 10*time.Minute {
		t.Fatalf("expected ttl 10m, got %s", auth.TTL)
	}

	public := LoadRateLimitConfig("public", 5, 12*time.Second)
	if public.Capacity != 50 || public.RefillInterval != time.Minute {
		t.Fatalf("expected global values for public, got %+v", public)
	}
}

func TestLoadRateLimitConfigClampsNonsense(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "-2")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "5m")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_ENABLED", "off")

	cfg := LoadRateLimitConfig("", 5, time.Second)
	if cfg.Enabled {
		t.Fatalf("expected limiter disabled")
	}
	if cfg.Capacity != 1 || cfg.RefillTokens != 1 {
		t.Fatalf("expected clamped capacity and refill, got %+v", cfg)
	}
	if cfg.TTL != 25*time.Minute {
		t.Fatalf("expected ttl raised to 5 refill intervals, got %s", cfg.TTL)
	}
}

func TestLoadSyncConfig(t *testing.T) {
	t.Setenv("PORTAL_BASE_URL", "http://portal.test/api/")
	t.Setenv("PORTAL_POLL_INTERVAL", "-5s")
	t.Setenv("PORTAL_ROLE", "Admin")
	t.Setenv("PORTAL_EMAIL", "  ada@agency.test ")

	cfg := LoadSyncConfig()
	if cfg.BaseURL != "http://portal.test/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.BaseURL)
	}
	if cfg.PollInterval != 30*time.Second || cfg.Timeout != 15*time.Second {
		t.Fatalf("expected default durations, got %s / %s", cfg.PollInterval, cfg.Timeout)
	}
	if cfg.Role != "admin" || cfg.Email != "ada@agency.test" {
		t.Fatalf("unexpected identity settings %+v", cfg)
	}
}
