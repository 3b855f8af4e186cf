package config

import (
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// SyncConfig configures the headless dashboard client (cmd/portal-sync).
// Unlike the API config nothing here is mandatory: a missing credential
// simply leaves the client signed out until a session file exists.
type SyncConfig struct {
    BaseURL      string        // API root including the /api prefix
    PollInterval time.Duration // background refresh period
    Timeout      time.Duration // per-request HTTP timeout
    SessionFile  string        // where the token and user are persisted
    Email        string
    Password     string
    Role         string
}

// LoadSyncConfig reads PORTAL_* variables (and .env when present).
func LoadSyncConfig() SyncConfig {
    _ = godotenv.Load()
    cfg := SyncConfig{
        BaseURL:      strings.TrimRight(envStr("PORTAL_BASE_URL", "http://127.0.0.1:5000/api"), "/"),
        PollInterval: envDur("PORTAL_POLL_INTERVAL", 30*time.Second),
        Timeout:      envDur("PORTAL_TIMEOUT", 15*time.Second),
        SessionFile:  envStr("PORTAL_SESSION_FILE", ".portal-session.json"),
        Email:        strings.TrimSpace(envStr("PORTAL_EMAIL", "")),
        Password:     envStr("PORTAL_PASSWORD", ""),
        Role:         strings.ToLower(envStr("PORTAL_ROLE", "")),
    }
    if cfg.PollInterval <= 0 { cfg.PollInterval = 30 * time.Second }
    if cfg.Timeout <= 0 { cfg.Timeout = 15 * time.Second }
    return cfg
}
