package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-portal/internal/model"
	"github.com/iliyamo/agency-portal/internal/repository"
	"github.com/iliyamo/agency-portal/internal/service"
)

// ProjectHandler serves the project collection. Reads are scoped by role;
// writes are admin-only and every state change leaves an activity entry and
// an automated message in the project thread.
type ProjectHandler struct {
	Projects *repository.ProjectRepo
	Users    *repository.UserRepo
	Messages *repository.MessageRepo
	Activity *service.ActivityRecorder
}

func NewProjectHandler(p *repository.ProjectRepo, u *repository.UserRepo, m *repository.MessageRepo, a *service.ActivityRecorder) *ProjectHandler {
	if p == nil || u == nil || m == nil || a == nil {
		panic("nil dependency passed to NewProjectHandler")
	}
	return &ProjectHandler{Projects: p, Users: u, Messages: m, Activity: a}
}

// List handles GET /api/projects. Clients receive their own projects with a
// bare clientId; admins receive all projects with the client embedded.
func (h *ProjectHandler) List(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	var projects []model.Project
	if u.IsAdmin() {
		projects, err = h.Projects.ListAll(ctx)
	} else {
		projects, err = h.Projects.ListByClient(ctx, u.ID)
	}
	if err != nil {
		return repoError(c, err, "projects")
	}
	return c.JSON(http.StatusOK, projects)
}

type createProjectReq struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	ClientID      string     `json:"clientId"`
	MilestoneDate *time.Time `json:"milestoneDate"`
}

// Create handles POST /api/projects. New projects always start at
// Discovery, 0%, active.
func (h *ProjectHandler) Create(c echo.Context) error {
	admin, err := actor(c)
	if err != nil {
		return err
	}
	var req createProjectReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.Title == "" || req.Description == "" || req.ClientID == "" {
		return fail(c, http.StatusBadRequest, "title, description and clientId are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	client, err := h.Users.GetByID(ctx, req.ClientID)
	if err != nil {
		return repoError(c, err, "client")
	}
	if client.Role != model.RoleClient {
		return fail(c, http.StatusBadRequest, "clientId must reference a client account")
	}
	if !client.IsActive {
		return fail(c, http.StatusConflict, "client is deactivated")
	}

	p := model.Project{
		ClientID:        model.ClientReference(client.ID),
		Title:           req.Title,
		Description:     req.Description,
		Stage:           model.StageDiscovery,
		ProgressPercent: 0,
		Status:          model.StatusActive,
		MilestoneDate:   req.MilestoneDate,
	}

	tx, err := h.Projects.DB().BeginTx(ctx, nil)
	if err != nil {
		return repoError(c, err, "project")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Projects.CreateTx(ctx, tx, &p); err != nil {
		return repoError(c, err, "project")
	}
	entry, err := h.Activity.RecordTx(ctx, tx, p.ID, model.ActivityStageChange,
		fmt.Sprintf("Project %q created for %s at %s", p.Title, client.Name, p.Stage))
	if err != nil {
		return repoError(c, err, "project")
	}
	welcome := systemMessage(admin, p.ID, fmt.Sprintf("Project %q kicked off in %s.", p.Title, p.Stage))
	if err := h.Messages.CreateTx(ctx, tx, &welcome); err != nil {
		return repoError(c, err, "project")
	}
	if err := tx.Commit(); err != nil {
		return repoError(c, err, "project")
	}
	committed = true
	h.Activity.Publish(ctx, admin, entry)

	p.ClientID = model.ClientEmbedded(client.Summary())
	return c.JSON(http.StatusCreated, p)
}

type updateProjectReq struct {
	Stage           *model.Stage  `json:"stage"`
	ProgressPercent *int          `json:"progressPercent"`
	Status          *model.Status `json:"status"`
}

// Update handles PATCH /api/projects/:id.
//
// Progress always mirrors stage: the server derives progressPercent from the
// stage, and an explicit progressPercent is only accepted when it equals the
// derived value. A completed project keeps its stage until it is reopened
// with status=active.
func (h *ProjectHandler) Update(c echo.Context) error {
	admin, err := actor(c)
	if err != nil {
		return err
	}
	var req updateProjectReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.Stage == nil && req.Status == nil {
		if req.ProgressPercent != nil {
			return fail(c, http.StatusBadRequest, "progressPercent follows stage; send stage instead")
		}
		return fail(c, http.StatusBadRequest, "stage or status is required")
	}
	if req.Stage != nil {
		progress, ok := model.ProgressForStage(*req.Stage)
		if !ok {
			return fail(c, http.StatusBadRequest, "invalid stage")
		}
		if req.ProgressPercent != nil && *req.ProgressPercent != progress {
			return fail(c, http.StatusBadRequest, fmt.Sprintf("progressPercent for %s must be %d", *req.Stage, progress))
		}
	}
	if req.Status != nil && !req.Status.Valid() {
		return fail(c, http.StatusBadRequest, "invalid status")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	tx, err := h.Projects.DB().BeginTx(ctx, nil)
	if err != nil {
		return repoError(c, err, "project")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cur, err := h.Projects.GetByIDTx(ctx, tx, c.Param("id"))
	if err != nil {
		return repoError(c, err, "project")
	}
	next := applyProjectUpdate(cur, req)
	if cur.Status == model.StatusCompleted && next.Status == model.StatusCompleted && next.Stage != cur.Stage {
		return fail(c, http.StatusConflict, "project is completed; reopen it before changing the stage")
	}
	if err := h.Projects.UpdateStateTx(ctx, tx, cur.ID, next.Stage, next.ProgressPercent, next.Status); err != nil {
		return repoError(c, err, "project")
	}

	var entries []model.ActivityLog
	for _, change := range describeChanges(cur, next) {
		entry, err := h.Activity.RecordTx(ctx, tx, cur.ID, model.ActivityStageChange, change.log)
		if err != nil {
			return repoError(c, err, "project")
		}
		entries = append(entries, entry)
		msg := systemMessage(admin, cur.ID, change.notice)
		if err := h.Messages.CreateTx(ctx, tx, &msg); err != nil {
			return repoError(c, err, "project")
		}
	}

	updated, err := h.Projects.GetByIDTx(ctx, tx, cur.ID)
	if err != nil {
		return repoError(c, err, "project")
	}
	if err := tx.Commit(); err != nil {
		return repoError(c, err, "project")
	}
	committed = true
	h.Activity.Publish(ctx, admin, entries...)
	return c.JSON(http.StatusOK, updated)
}

// applyProjectUpdate returns cur with the requested stage/status applied
// and progress recomputed from the resulting stage.
func applyProjectUpdate(cur model.Project, req updateProjectReq) model.Project {
	next := cur
	if req.Stage != nil {
		next.Stage = *req.Stage
		next.ProgressPercent, _ = model.ProgressForStage(next.Stage)
	}
	if req.Status != nil {
		next.Status = *req.Status
	}
	return next
}

type projectChange struct {
	log    string // activity feed wording
	notice string // thread wording shown to the client
}

func describeChanges(cur, next model.Project) []projectChange {
	var out []projectChange
	if next.Stage != cur.Stage {
		out = append(out, projectChange{
			log:    fmt.Sprintf("Stage changed from %s to %s (%d%%)", cur.Stage, next.Stage, next.ProgressPercent),
			notice: fmt.Sprintf("Project moved to %s (%d%%)", next.Stage, next.ProgressPercent),
		})
	}
	if next.Status != cur.Status {
		notice := "Project status changed to " + string(next.Status)
		switch {
		case next.Status == model.StatusCompleted:
			notice = "Project marked as completed"
		case next.Status == model.StatusPaused:
			notice = "Project paused"
		case cur.Status == model.StatusCompleted:
			notice = "Project reopened"
		case cur.Status == model.StatusPaused:
			notice = "Project resumed"
		}
		out = append(out, projectChange{
			log:    fmt.Sprintf("Status changed from %s to %s", cur.Status, next.Status),
			notice: notice,
		})
	}
	return out
}
