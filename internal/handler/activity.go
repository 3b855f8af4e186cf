package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-portal/internal/repository"
)

// ActivityHandler exposes the audit feed to admins.
type ActivityHandler struct {
	Activity *repository.ActivityRepo
}

func NewActivityHandler(a *repository.ActivityRepo) *ActivityHandler {
	return &ActivityHandler{Activity: a}
}

// List handles GET /api/activity?projectId=&limit= (newest first, limit capped at 200).
func (h *ActivityHandler) List(c echo.Context) error {
	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fail(c, http.StatusBadRequest, "invalid limit")
		}
		limit = min(n, 200)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	entries, err := h.Activity.List(ctx, c.QueryParam("projectId"), limit)
	if err != nil {
		return repoError(c, err, "activity")
	}
	return c.JSON(http.StatusOK, entries)
}
