package middleware // middleware contains reusable echo middleware for the portal API

import (
    "context"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/agency-portal/internal/model"
    "github.com/iliyamo/agency-portal/internal/utils"
)

// Context keys set by JWTAuth.
const (
    CtxUserID = "user_id"
    CtxRole   = "role"
    CtxUser   = "user"
)

// UserLookup resolves the subject of a verified token to the stored user.
// *repository.UserRepo satisfies it.
type UserLookup interface {
    GetByID(ctx context.Context, id string) (model.User, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token,
// loads the user it was issued to and injects the user into the request
// context.  A token whose user no longer exists or was deactivated is
// rejected with 401 even though its signature is still valid, so that
// deactivation takes effect before the token expires.
func JWTAuth(secret string, users UserLookup) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"message": "missing bearer token"})
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"message": "invalid token"})
            }

            u, err := users.GetByID(c.Request().Context(), claims.UserID)
            if err != nil || !u.IsActive {
                return c.JSON(http.StatusUnauthorized, echo.Map{"message": "User unauthorized or deactivated"})
            }

            // The stored role wins over the claim: a role change applies
            // immediately.
            c.Set(CtxUserID, u.ID)
            c.Set(CtxRole, u.Role)
            c.Set(CtxUser, u)
            return next(c)
        }
    }
}
