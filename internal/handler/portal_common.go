package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-portal/internal/middleware"
	"github.com/iliyamo/agency-portal/internal/model"
	"github.com/iliyamo/agency-portal/internal/repository"
	"github.com/iliyamo/agency-portal/internal/service"
)

const dbTimeout = 5 * time.Second

// fail writes the {"message": ...} error body every endpoint uses.
func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"message": msg})
}

// actor returns the authenticated user. The error renders as a 401 through
// echo's error handler.
func actor(c echo.Context) (model.User, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return model.User{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return u, nil
}

// loadProjectFor returns the project if u may see it: admins see every
// project, clients only their own.
func loadProjectFor(ctx context.Context, projects *repository.ProjectRepo, u model.User, projectID string) (model.Project, error) {
	if projectID == "" {
		return model.Project{}, repository.ErrNotFound
	}
	p, err := projects.GetByID(ctx, projectID)
	if err != nil {
		return model.Project{}, err
	}
	if !u.IsAdmin() && !p.ClientID.Is(u.ID) {
		return model.Project{}, repository.ErrForbidden
	}
	return p, nil
}

// repoError maps repository sentinels to HTTP responses.
func repoError(c echo.Context, err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fail(c, http.StatusNotFound, what+" not found")
	case errors.Is(err, repository.ErrForbidden):
		return fail(c, http.StatusForbidden, "forbidden")
	case errors.Is(err, repository.ErrConflict):
		return fail(c, http.StatusConflict, what+" cannot be changed in its current state")
	case errors.Is(err, context.DeadlineExceeded):
		return fail(c, http.StatusGatewayTimeout, "database timeout")
	}
	c.Logger().Errorf("%s: %v", what, err)
	return fail(c, http.StatusInternalServerError, "database error")
}

// recordActivity writes an activity entry outside a transaction. A failure
// is logged and does not fail the request.
func recordActivity(ctx context.Context, c echo.Context, a *service.ActivityRecorder, actor model.User, projectID, kind, content string) {
	if _, err := a.Record(ctx, actor, projectID, kind, content); err != nil {
		c.Logger().Errorf("activity %s on %s: %v", kind, projectID, err)
	}
}

// systemMessage builds an automated thread entry attributed to u.
func systemMessage(u model.User, projectID, text string) model.Message {
	return model.Message{
		ProjectID:  projectID,
		SenderID:   u.ID,
		SenderName: u.Name,
		SenderRole: u.Role,
		Text:       text,
		IsSystem:   true,
	}
}
