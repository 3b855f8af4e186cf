package middleware

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/agency-portal/internal/model"
)

// CurrentUser returns the user stored by JWTAuth.
func CurrentUser(c echo.Context) (model.User, bool) {
    u, ok := c.Get(CtxUser).(model.User)
    return u, ok && u.ID != ""
}

// userID returns the authenticated user's id, or "anon" on public routes.
func userID(c echo.Context) string {
    if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
        return s
    }
    return "anon"
}
