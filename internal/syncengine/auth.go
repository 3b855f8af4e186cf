package syncengine

import (
	"context"
	"net/http"
	"strings"

	"github.com/iliyamo/agency-portal/internal/model"
	"github.com/iliyamo/agency-portal/internal/utils"
)

// Restore reloads the persisted session, confirms it with the server and
// refreshes. A rejected credential signs out with *AuthError; an
// unreachable server keeps the session and returns *TransientFetchError.
func (e *Engine) Restore(ctx context.Context) error {
	sess, err := e.identity.Load()
	if err != nil {
		return err
	}
	if !sess.SignedIn() {
		e.reset()
		return nil
	}
	user, err := e.client.Me(ctx, sess.Token)
	if err != nil {
		if isUnauthorized(err) {
			return e.expire("restore", err)
		}
		return &TransientFetchError{Resource: "identity", Err: err}
	}
	sess.User = user
	if err := e.identity.Set(sess); err != nil {
		e.logger.Printf("sync: persist session: %v", err)
	}
	return e.Refresh(ctx)
}

// Login signs in with email and password. role, when set, must match the
// account's role.
func (e *Engine) Login(ctx context.Context, email, password, role string) (model.User, error) {
	email = strings.TrimSpace(email)
	switch {
	case !utils.IsEmail(email):
		return model.User{}, &ValidationError{Field: "email", Reason: "not a valid address"}
	case password == "":
		return model.User{}, &ValidationError{Field: "password", Reason: "required"}
	case role != "" && !model.ValidRole(role):
		return model.User{}, &ValidationError{Field: "role", Reason: "unknown role"}
	}
	res, err := e.client.Login(ctx, email, password, role)
	if err != nil {
		return model.User{}, credentialError("login", err)
	}
	return e.signIn(ctx, res)
}

// Signup creates a client account and signs in as it.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (model.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Company = strings.TrimSpace(req.Company)
	switch {
	case req.Name == "":
		return model.User{}, &ValidationError{Field: "name", Reason: "required"}
	case !utils.IsEmail(req.Email):
		return model.User{}, &ValidationError{Field: "email", Reason: "not a valid address"}
	}
	if err := utils.CheckPassword(req.Password); err != nil {
		return model.User{}, &ValidationError{Field: "password", Reason: err.Error()}
	}
	res, err := e.client.Signup(ctx, req)
	if err != nil {
		return model.User{}, credentialError("signup", err)
	}
	return e.signIn(ctx, res)
}

// credentialError maps a failed login or signup. Rejected credentials are
// an AuthError; anything else is a failed write.
func credentialError(op string, err error) error {
	switch StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Op: op, Err: err}
	}
	return &MutationError{Op: op, Err: err}
}

func (e *Engine) signIn(ctx context.Context, res AuthResult) (model.User, error) {
	e.reset()
	sess := Session{Token: res.Token, RefreshToken: res.RefreshToken, User: res.User}
	if err := e.identity.Set(sess); err != nil {
		e.logger.Printf("sync: persist session: %v", err)
	}
	return res.User, e.resync(ctx)
}

// Logout revokes the refresh token when the server is reachable, then
// clears the session and the cache. It never fails on the server's answer.
func (e *Engine) Logout(ctx context.Context) error {
	sess := e.identity.Current()
	if sess.SignedIn() {
		if err := e.client.Logout(ctx, sess.Token, sess.RefreshToken); err != nil {
			e.logger.Printf("sync: logout: %v", err)
		}
	}
	e.reset()
	return e.identity.Clear()
}
