package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-portal/internal/model"
	"github.com/iliyamo/agency-portal/internal/repository"
	"github.com/iliyamo/agency-portal/internal/service"
)

// MessageHandler serves project threads.
type MessageHandler struct {
	Projects *repository.ProjectRepo
	Messages *repository.MessageRepo
	Activity *service.ActivityRecorder
}

func NewMessageHandler(p *repository.ProjectRepo, m *repository.MessageRepo, a *service.ActivityRecorder) *MessageHandler {
	return &MessageHandler{Projects: p, Messages: m, Activity: a}
}

// List handles GET /api/messages/:projectId (oldest first).
func (h *MessageHandler) List(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if _, err := loadProjectFor(ctx, h.Projects, u, c.Param("projectId")); err != nil {
		return repoError(c, err, "project")
	}
	msgs, err := h.Messages.ListByProject(ctx, c.Param("projectId"))
	if err != nil {
		return repoError(c, err, "messages")
	}
	return c.JSON(http.StatusOK, msgs)
}

type createMessageReq struct {
	ProjectID string `json:"projectId"`
	Text      string `json:"text"`
	IsSystem  bool   `json:"isSystem"`
}

// Create handles POST /api/messages. Only admins may post system messages;
// the flag is ignored for clients.
func (h *MessageHandler) Create(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	var req createMessageReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return fail(c, http.StatusBadRequest, "message text is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := loadProjectFor(ctx, h.Projects, u, strings.TrimSpace(req.ProjectID))
	if err != nil {
		return repoError(c, err, "project")
	}
	m := model.Message{
		ProjectID:  p.ID,
		SenderID:   u.ID,
		SenderName: u.Name,
		SenderRole: u.Role,
		Text:       req.Text,
		IsSystem:   req.IsSystem && u.IsAdmin(),
	}
	if err := h.Messages.Create(ctx, &m); err != nil {
		return repoError(c, err, "message")
	}
	recordActivity(ctx, c, h.Activity, u, p.ID, model.ActivityMessage, fmt.Sprintf("New message from %s on %q", u.Name, p.Title))
	return c.JSON(http.StatusCreated, m)
}

type broadcastReq struct {
	Text string `json:"text"`
}

// Broadcast handles POST /api/messages/broadcast: one system message in
// every project that is not completed, written atomically.
func (h *MessageHandler) Broadcast(c echo.Context) error {
	admin, err := actor(c)
	if err != nil {
		return err
	}
	var req broadcastReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return fail(c, http.StatusBadRequest, "message text is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	ids, err := h.Projects.ListOpenIDs(ctx)
	if err != nil {
		return repoError(c, err, "projects")
	}

	tx, err := h.Projects.DB().BeginTx(ctx, nil)
	if err != nil {
		return repoError(c, err, "broadcast")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		m := systemMessage(admin, id, req.Text)
		if err := h.Messages.CreateTx(ctx, tx, &m); err != nil {
			return repoError(c, err, "broadcast")
		}
		out = append(out, m)
	}
	entry, err := h.Activity.RecordTx(ctx, tx, model.SystemProjectID, model.ActivityMessage,
		fmt.Sprintf("Broadcast sent to %d active projects", len(ids)))
	if err != nil {
		return repoError(c, err, "broadcast")
	}
	if err := tx.Commit(); err != nil {
		return repoError(c, err, "broadcast")
	}
	committed = true
	h.Activity.Publish(ctx, admin, entry)
	return c.JSON(http.StatusCreated, echo.Map{"count": len(out), "messages": out})
}
