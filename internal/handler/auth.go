package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-portal/internal/config"
	"github.com/iliyamo/agency-portal/internal/model"
	"github.com/iliyamo/agency-portal/internal/repository"
	"github.com/iliyamo/agency-portal/internal/service"
	"github.com/iliyamo/agency-portal/internal/utils"
)

// AuthHandler bundles dependencies for the auth endpoints: credential check,
// token issuance and client administration.
type AuthHandler struct {
	Cfg      config.Config
	Users    *repository.UserRepo
	Tokens   *repository.TokenRepo
	Activity *service.ActivityRecorder
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, a *service.ActivityRecorder) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Activity: a}
}

// ----- DTOs -----

type signupReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Company  string `json:"company"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

// authResp is the session handed to the dashboard. token is the bearer
// credential; refreshToken is returned raw exactly once.
type authResp struct {
	Token        string     `json:"token"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	RefreshToken string     `json:"refreshToken"`
	User         model.User `json:"user"`
}

// Signup creates a client account and signs it in. Admin accounts are
// seeded, never self-registered.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = utils.NormalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "name, email and password are required")
	}
	if !utils.IsEmail(req.Email) {
		return fail(c, http.StatusBadRequest, "invalid email")
	}
	if err := utils.CheckPassword(req.Password); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = model.RoleClient
	}
	if role != model.RoleClient {
		return fail(c, http.StatusForbidden, "only client accounts can sign up")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.Create(ctx, repository.NewUser{
		Name: req.Name, Email: req.Email, Password: req.Password, Role: role, Company: req.Company,
	}, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return fail(c, http.StatusConflict, "email already exists")
		}
		return fail(c, http.StatusInternalServerError, "create user failed")
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue session failed")
	}
	recordActivity(ctx, c, h.Activity, u, model.SystemProjectID, model.ActivityAuth, "New client signed up: "+u.Email)
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials. When the form names a role (client or admin
// portal) the account must carry that role.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = utils.NormalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "email and password are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusUnauthorized, "invalid credentials")
		}
		return fail(c, http.StatusInternalServerError, "query failed")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return fail(c, http.StatusUnauthorized, "invalid credentials")
	}
	if !u.IsActive {
		return fail(c, http.StatusUnauthorized, "account deactivated")
	}
	if role := strings.ToLower(strings.TrimSpace(req.Role)); role != "" && role != u.Role {
		return fail(c, http.StatusForbidden, "access denied for this role")
	}

	now := time.Now().UTC()
	if err := h.Users.TouchLogin(ctx, u.ID, now); err == nil {
		u.LastLogin = &now
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue session failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh consumes the presented token and issues a new pair. A token can
// be consumed once.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, "refreshToken required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	userID, err := h.Tokens.ConsumeRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusUnauthorized, "invalid refresh token")
		}
		return repoError(c, err, "refresh token")
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return fail(c, http.StatusUnauthorized, "User unauthorized or deactivated")
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue session failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes one refresh token (body) or, with only a valid bearer,
// every refresh token of the user. It does not require the auth middleware
// so an expired session can still be closed.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if refreshToken != "" {
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ConsumeRefresh(ctx, hash); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fail(c, http.StatusUnauthorized, "invalid refresh token")
			}
			return fail(c, http.StatusInternalServerError, "logout failed")
		}
		return c.NoContent(http.StatusNoContent)
	}

	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			return fail(c, http.StatusUnauthorized, "invalid token")
		}
		if err := h.Tokens.RevokeAllForUser(ctx, claims.UserID); err != nil {
			return fail(c, http.StatusInternalServerError, "logout failed")
		}
		return c.NoContent(http.StatusNoContent)
	}
	return fail(c, http.StatusBadRequest, "provide Authorization header or refreshToken")
}

// Me returns the identity behind the bearer token.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// ListClients returns every client account (admin).
func (h *AuthHandler) ListClients(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	users, err := h.Users.ListByRole(ctx, model.RoleClient)
	if err != nil {
		return repoError(c, err, "clients")
	}
	return c.JSON(http.StatusOK, users)
}

// DeactivateClient flips isActive to false and revokes the client's
// refresh tokens. Outstanding access tokens stop working on the next
// request because the auth middleware checks isActive.
func (h *AuthHandler) DeactivateClient(c echo.Context) error {
	admin, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	target, err := h.Users.GetByID(ctx, c.Param("id"))
	if err != nil {
		return repoError(c, err, "client")
	}
	if target.Role != model.RoleClient {
		return fail(c, http.StatusBadRequest, "only client accounts can be deactivated")
	}
	updated, err := h.Users.SetActive(ctx, target.ID, false)
	if err != nil {
		return repoError(c, err, "client")
	}
	if err := h.Tokens.RevokeAllForUser(ctx, target.ID); err != nil {
		c.Logger().Errorf("deactivate %s: revoke refresh tokens: %v", target.ID, err)
	}
	recordActivity(ctx, c, h.Activity, admin, model.SystemProjectID, model.ActivityAuth, "Client deactivated: "+target.Email)
	return c.JSON(http.StatusOK, updated)
}

// EnsureAdmin seeds an admin account when none exists yet.
func (h *AuthHandler) EnsureAdmin(ctx context.Context, name, email, password string) (created bool, err error) {
	if email == "" || password == "" {
		return false, nil
	}
	n, err := h.Users.CountByRole(ctx, model.RoleAdmin)
	if err != nil || n > 0 {
		return false, err
	}
	_, err = h.Users.Create(ctx, repository.NewUser{Name: name, Email: email, Password: password, Role: model.RoleAdmin}, h.Cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return false, nil
	}
	return err == nil, err
}

func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{Token: access.Token, ExpiresAt: access.Exp, RefreshToken: refresh.Raw, User: u}, nil
}
