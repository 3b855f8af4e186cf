package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// RateLimitConfig parameterises one token bucket.  Buckets are scoped so the
// public forms and the login endpoint can be tuned independently.
type RateLimitConfig struct {
    Scope          string
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    Debug          bool
}

// LoadRateLimitConfig reads RATE_LIMIT_<SCOPE>_* first and falls back to the
// unscoped RATE_LIMIT_* variables, then to the given defaults.
func LoadRateLimitConfig(scope string, capacity int, every time.Duration) RateLimitConfig {
    get := func(name string) string {
        if scope != "" {
            if v := os.Getenv("RATE_LIMIT_" + strings.ToUpper(scope) + "_" + name); v != "" {
                return v
            }
        }
        return os.Getenv("RATE_LIMIT_" + name)
    }
    cfg := RateLimitConfig{
        Scope:          scope,
        Enabled:        parseBool(get("ENABLED"), true),
        Capacity:       parseInt(get("CAPACITY"), capacity),
        RefillTokens:   parseInt(get("REFILL_TOKENS"), 1),
        RefillInterval: parseDur(get("REFILL_INTERVAL"), every),
        TTL:            parseDur(get("TTL"), 10*time.Minute),
        KeyStrategy:    strings.ToLower(parseStr(get("KEY_STRATEGY"), "ip_route")),
        Prefix:         parseStr(get("PREFIX"), "rl"),
        Debug:          parseBool(get("DEBUG"), false),
    }
    if cfg.Capacity < 1 { cfg.Capacity = 1 }
    if cfg.RefillTokens < 1 { cfg.RefillTokens = 1 }
    if cfg.RefillInterval <= 0 { cfg.RefillInterval = time.Second }
    if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL { cfg.TTL = minTTL }
    return cfg
}

func envStr(k, d string) string { return parseStr(os.Getenv(k), d) }
func envBool(k string, d bool) bool { return parseBool(os.Getenv(k), d) }
func envInt(k string, d int) int { return parseInt(os.Getenv(k), d) }
func envDur(k string, d time.Duration) time.Duration { return parseDur(os.Getenv(k), d) }

func parseStr(v, d string) string { if strings.TrimSpace(v) != "" { return v }; return d }
func parseBool(v string, d bool) bool {
    switch strings.ToLower(strings.TrimSpace(v)) {
    case "1", "true", "yes", "on": return true
    case "0", "false", "no", "off": return false
    }
    return d
}
func parseInt(v string, d int) int {
    if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil { return n }
    return d
}
func parseDur(v string, d time.Duration) time.Duration {
    if dur, err := time.ParseDuration(strings.TrimSpace(v)); err == nil { return dur }
    return d
}
