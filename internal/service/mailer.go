package service

import (
    "errors"
    "fmt"
    "log"
    "net/smtp"
    "strings"

    "github.com/iliyamo/agency-portal/internal/config"
    "github.com/iliyamo/agency-portal/internal/model"
)

// SendFunc has the signature of smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends the contact-form mail: a notification to the agency and a
// confirmation to the requester.  Without an SMTP host it only logs.
type Mailer struct {
    Cfg  config.SMTPConfig
    Send SendFunc
}

// NewMailer returns a mailer that delivers through smtp.SendMail.
func NewMailer(cfg config.SMTPConfig) *Mailer {
    return &Mailer{Cfg: cfg, Send: smtp.SendMail}
}

// NotifyContactRequest mails req to the agency inbox and a receipt to the
// requester.  Both are attempted; the joined error reports every failure.
func (m *Mailer) NotifyContactRequest(req model.ContactRequest) error {
    if !m.Cfg.Enabled() {
        log.Printf("mail: SMTP not configured, skipping contact mail for %s", req.Email)
        return nil
    }
    var errs []error
    if m.Cfg.NotifyTo != "" {
        body := fmt.Sprintf("New audit request\n\nName: %s\nEmail: %s\nService: %s\n\n%s\n",
            req.Name, req.Email, req.Service, req.Message)
        errs = append(errs, m.deliver(m.Cfg.NotifyTo, "New audit request from "+req.Name, body))
    }
    receipt := fmt.Sprintf("Hi %s,\n\nThanks for reaching out about %s. We received your request and will respond within 24 hours.\n",
        req.Name, req.Service)
    errs = append(errs, m.deliver(req.Email, "We received your request", receipt))
    return errors.Join(errs...)
}

func (m *Mailer) deliver(to, subject, body string) error {
    msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
        headerValue(m.Cfg.From), headerValue(to), headerValue(subject), body)
    var auth smtp.Auth
    if m.Cfg.User != "" {
        auth = smtp.PlainAuth("", m.Cfg.User, m.Cfg.Pass, m.Cfg.Host)
    }
    addr := fmt.Sprintf("%s:%d", m.Cfg.Host, m.Cfg.Port)
    if err := m.Send(addr, auth, m.Cfg.From, []string{to}, []byte(msg)); err != nil {
        return fmt.Errorf("send to %s: %w", to, err)
    }
    return nil
}

// headerValue keeps user input on a single header line.
func headerValue(s string) string {
    return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
