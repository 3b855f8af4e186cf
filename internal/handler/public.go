package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/iliyamo/agency-portal/internal/model"
	"github.com/iliyamo/agency-portal/internal/repository"
	"github.com/iliyamo/agency-portal/internal/service"
	"github.com/iliyamo/agency-portal/internal/utils"
)

const maxFormBody = 64 << 10

// Schemas of the marketing-site forms. The email pattern matches
// utils.IsEmail.
var formSchemas = map[string]string{
	"contact.json": `{
  "type": "object",
  "required": ["name", "email", "message"],
  "properties": {
    "name":    {"type": "string", "pattern": "\\S", "maxLength": 120},
    "email":   {"type": "string", "pattern": "^[^\\s@]+@[^\\s@]+\\.[^\\s@]+$", "maxLength": 190},
    "service": {"type": "string", "maxLength": 120},
    "message": {"type": "string", "pattern": "\\S", "maxLength": 5000}
  }
}`,
	"subscribe.json": `{
  "type": "object",
  "required": ["email"],
  "properties": {
    "email": {"type": "string", "pattern": "^[^\\s@]+@[^\\s@]+\\.[^\\s@]+$", "maxLength": 190}
  }
}`,
	"work-with-us.json": `{
  "type": "object",
  "required": ["name", "email", "phone", "description"],
  "properties": {
    "name":        {"type": "string", "pattern": "\\S", "maxLength": 120},
    "email":       {"type": "string", "pattern": "^[^\\s@]+@[^\\s@]+\\.[^\\s@]+$", "maxLength": 190},
    "phone":       {"type": "string", "pattern": "\\S", "maxLength": 40},
    "company":     {"type": "string", "maxLength": 190},
    "budget":      {"type": "string", "maxLength": 64},
    "description": {"type": "string", "pattern": "\\S", "maxLength": 5000}
  }
}`,
}

// ContactNotifier mails a stored contact request. *service.Mailer
// implements it.
type ContactNotifier interface {
	NotifyContactRequest(req model.ContactRequest) error
}

// PublicHandler accepts the fire-and-forget marketing forms. Bodies are
// validated against JSON Schemas before anything is stored. Mail failures
// are logged; the stored request stands.
type PublicHandler struct {
	Forms    *repository.FormRepo
	Activity *service.ActivityRecorder
	Notifier ContactNotifier // may be nil
	schemas  map[string]*jsonschema.Schema
}

// NewPublicHandler compiles the form schemas.
func NewPublicHandler(f *repository.FormRepo, a *service.ActivityRecorder, n ContactNotifier) (*PublicHandler, error) {
	c := jsonschema.NewCompiler()
	for name, src := range formSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("add %s: %w", name, err)
		}
	}
	schemas := make(map[string]*jsonschema.Schema, len(formSchemas))
	for name := range formSchemas {
		sch, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		schemas[name] = sch
	}
	return &PublicHandler{Forms: f, Activity: a, Notifier: n, schemas: schemas}, nil
}

// decode validates the request body against schema and unmarshals it into
// out. When ok is false the 400 has already been written and err is the
// result of writing it.
func (h *PublicHandler) decode(c echo.Context, schema string, out any) (ok bool, err error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxFormBody))
	if err != nil {
		return false, fail(c, http.StatusBadRequest, "cannot read body")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return false, fail(c, http.StatusBadRequest, "invalid JSON")
	}
	if err := h.schemas[schema].Validate(inst); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"message": "All required fields must be valid", "details": err.Error()})
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fail(c, http.StatusBadRequest, "invalid body")
	}
	return true, nil
}

// Contact handles POST /api/public/contact.
func (h *PublicHandler) Contact(c echo.Context) error {
	var req model.ContactRequest
	if ok, err := h.decode(c, "contact.json", &req); !ok {
		return err
	}
	req.Name, req.Email = strings.TrimSpace(req.Name), utils.NormalizeEmail(req.Email)
	if strings.TrimSpace(req.Service) == "" {
		req.Service = "Not specified"
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	if err := h.Forms.SaveContact(ctx, &req); err != nil {
		return repoError(c, err, "contact request")
	}
	recordActivity(ctx, c, h.Activity, model.User{}, model.SystemProjectID, model.ActivityMessage,
		fmt.Sprintf("New audit request from %s (%s) - Service: %s", req.Name, req.Email, req.Service))
	if h.Notifier != nil {
		if err := h.Notifier.NotifyContactRequest(req); err != nil {
			c.Logger().Errorf("contact request %s: mail: %v", req.ID, err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Your request has been received. We will respond within 24 hours."})
}

// Subscribe handles POST /api/public/subscribe. Repeated subscriptions are
// accepted silently.
func (h *PublicHandler) Subscribe(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if ok, err := h.decode(c, "subscribe.json", &req); !ok {
		return err
	}
	email := utils.NormalizeEmail(req.Email)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	created, err := h.Forms.Subscribe(ctx, email)
	if err != nil {
		return repoError(c, err, "subscription")
	}
	if created {
		recordActivity(ctx, c, h.Activity, model.User{}, model.SystemProjectID, model.ActivityMessage, "New strategy feed subscriber: "+email)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Subscribed successfully."})
}

// WorkWithUs handles POST /api/public/work-with-us.
func (h *PublicHandler) WorkWithUs(c echo.Context) error {
	var req model.WorkRequest
	if ok, err := h.decode(c, "work-with-us.json", &req); !ok {
		return err
	}
	req.Name, req.Email = strings.TrimSpace(req.Name), utils.NormalizeEmail(req.Email)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	if err := h.Forms.SaveWorkRequest(ctx, &req); err != nil {
		return repoError(c, err, "work request")
	}
	recordActivity(ctx, c, h.Activity, model.User{}, model.SystemProjectID, model.ActivityMessage,
		fmt.Sprintf("New project request from %s (%s)", req.Name, req.Email))
	return c.JSON(http.StatusCreated, echo.Map{"message": "Project request submitted", "data": req})
}
