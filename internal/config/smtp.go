package config

import (
    "os"
    "strings"
)

// SMTPConfig configures the contact-form mail.  An empty Host disables
// sending; requests are still stored and logged.
type SMTPConfig struct {
    Host     string // SMTP_HOST
    Port     int    // SMTP_PORT, default 587
    User     string // SMTP_USER; empty means no AUTH
    Pass     string // SMTP_PASS
    From     string // SMTP_FROM, defaults to User
    NotifyTo string // SMTP_NOTIFY_TO, defaults to ADMIN_EMAIL
}

// LoadSMTPConfig reads the SMTP_* variables.
func LoadSMTPConfig() SMTPConfig {
    c := SMTPConfig{
        Host:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
        Port:     envInt("SMTP_PORT", 587),
        User:     os.Getenv("SMTP_USER"),
        Pass:     os.Getenv("SMTP_PASS"),
        From:     envStr("SMTP_FROM", os.Getenv("SMTP_USER")),
        NotifyTo: envStr("SMTP_NOTIFY_TO", os.Getenv("ADMIN_EMAIL")),
    }
    return c
}

// Enabled reports whether mail can be sent.
func (c SMTPConfig) Enabled() bool { return c.Host != "" && c.From != "" }
