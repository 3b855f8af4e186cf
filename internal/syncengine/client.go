package syncengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/agency-portal/internal/model"
)

// AuthResult is the session returned by login and signup.
type AuthResult struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refreshToken"`
	User         model.User `json:"user"`
}

// SignupRequest is the signup form.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Company  string `json:"company,omitempty"`
}

// NewProject is the admin's create-project form.
type NewProject struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ClientID    string `json:"clientId"`
}

// ProjectPatch is the body of PATCH /projects/:id.
type ProjectPatch struct {
	Stage           *model.Stage  `json:"stage,omitempty"`
	ProgressPercent *int          `json:"progressPercent,omitempty"`
	Status          *model.Status `json:"status,omitempty"`
}

// Client is the portal API as seen by the engine. Every call that needs a
// session takes the bearer token explicitly; the client holds no identity.
type Client interface {
	Login(ctx context.Context, email, password, role string) (AuthResult, error)
	Signup(ctx context.Context, req SignupRequest) (AuthResult, error)
	Me(ctx context.Context, token string) (model.User, error)
	Logout(ctx context.Context, token, refreshToken string) error

	ListProjects(ctx context.Context, token string) ([]model.Project, error)
	ListMessages(ctx context.Context, token, projectID string) ([]model.Message, error)
	ListFiles(ctx context.Context, token, projectID string) ([]model.ProjectFile, error)
	ListClients(ctx context.Context, token string) ([]model.User, error)

	CreateProject(ctx context.Context, token string, p NewProject) (model.Project, error)
	UpdateProject(ctx context.Context, token, projectID string, patch ProjectPatch) (model.Project, error)
	CreateMessage(ctx context.Context, token, projectID, text string, isSystem bool) (model.Message, error)
	Broadcast(ctx context.Context, token, text string) ([]model.Message, error)
	CreateFile(ctx context.Context, token, projectID string, meta model.FileMeta) (model.ProjectFile, error)
	UploadFile(ctx context.Context, token, name string, content io.Reader) (model.FileMeta, error)
	DeactivateClient(ctx context.Context, token, userID string) (model.User, error)

	Subscribe(ctx context.Context, email string) error
}

// HTTPClient talks to the portal API over REST. It never retries: a failed
// call is reported and the next poll tick tries again.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient returns a client for baseURL, the API root including /api.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:5000/api"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{baseURL: baseURL, httpClient: httpClient}
}

func (c *HTTPClient) Login(ctx context.Context, email, password, role string) (AuthResult, error) {
	var out AuthResult
	body := map[string]string{"email": email, "password": password}
	if role != "" {
		body["role"] = role
	}
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", body, &out)
	return out, err
}

func (c *HTTPClient) Signup(ctx context.Context, req SignupRequest) (AuthResult, error) {
	var out AuthResult
	err := c.doJSON(ctx, http.MethodPost, "/auth/signup", "", req, &out)
	return out, err
}

func (c *HTTPClient) Me(ctx context.Context, token string) (model.User, error) {
	var out model.User
	err := c.doJSON(ctx, http.MethodGet, "/auth/me", token, nil, &out)
	return out, err
}

func (c *HTTPClient) Logout(ctx context.Context, token, refreshToken string) error {
	var body any
	if refreshToken != "" {
		body = map[string]string{"refreshToken": refreshToken}
	}
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", token, body, nil)
}

func (c *HTTPClient) ListProjects(ctx context.Context, token string) ([]model.Project, error) {
	var out []model.Project
	err := c.doJSON(ctx, http.MethodGet, "/projects", token, nil, &out)
	return out, err
}

func (c *HTTPClient) ListMessages(ctx context.Context, token, projectID string) ([]model.Message, error) {
	var out []model.Message
	err := c.doJSON(ctx, http.MethodGet, "/messages/"+url.PathEscape(projectID), token, nil, &out)
	return out, err
}

func (c *HTTPClient) ListFiles(ctx context.Context, token, projectID string) ([]model.ProjectFile, error) {
	var out []model.ProjectFile
	err := c.doJSON(ctx, http.MethodGet, "/files/"+url.PathEscape(projectID), token, nil, &out)
	return out, err
}

func (c *HTTPClient) ListClients(ctx context.Context, token string) ([]model.User, error) {
	var out []model.User
	err := c.doJSON(ctx, http.MethodGet, "/auth/clients", token, nil, &out)
	return out, err
}

func (c *HTTPClient) CreateProject(ctx context.Context, token string, p NewProject) (model.Project, error) {
	var out model.Project
	err := c.doJSON(ctx, http.MethodPost, "/projects", token, p, &out)
	return out, err
}

func (c *HTTPClient) UpdateProject(ctx context.Context, token, projectID string, patch ProjectPatch) (model.Project, error) {
	var out model.Project
	err := c.doJSON(ctx, http.MethodPatch, "/projects/"+url.PathEscape(projectID), token, patch, &out)
	return out, err
}

func (c *HTTPClient) CreateMessage(ctx context.Context, token, projectID, text string, isSystem bool) (model.Message, error) {
	var out model.Message
	body := map[string]any{"projectId": projectID, "text": text, "isSystem": isSystem}
	err := c.doJSON(ctx, http.MethodPost, "/messages", token, body, &out)
	return out, err
}

func (c *HTTPClient) Broadcast(ctx context.Context, token, text string) ([]model.Message, error) {
	var out struct {
		Messages []model.Message `json:"messages"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/messages/broadcast", token, map[string]string{"text": text}, &out)
	return out.Messages, err
}

func (c *HTTPClient) CreateFile(ctx context.Context, token, projectID string, meta model.FileMeta) (model.ProjectFile, error) {
	var out model.ProjectFile
	body := map[string]string{"projectId": projectID, "name": meta.Name, "url": meta.URL, "size": meta.Size}
	err := c.doJSON(ctx, http.MethodPost, "/files", token, body, &out)
	return out, err
}

func (c *HTTPClient) DeactivateClient(ctx context.Context, token, userID string) (model.User, error) {
	var out model.User
	err := c.doJSON(ctx, http.MethodPatch, "/auth/clients/"+url.PathEscape(userID)+"/deactivate", token, nil, &out)
	return out, err
}

func (c *HTTPClient) Subscribe(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/public/subscribe", "", map[string]string{"email": email}, nil)
}

// UploadFile streams content to the object store as multipart field "file".
func (c *HTTPClient) UploadFile(ctx context.Context, token, name string, content io.Reader) (model.FileMeta, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/upload", pr)
	if err != nil {
		_ = pr.Close()
		return model.FileMeta{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out model.FileMeta
	err = c.do(req, token, &out)
	_ = pr.Close()
	return out, err
}

func (c *HTTPClient) doJSON(ctx context.Context, method, requestPath, token string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, token, out)
}

func (c *HTTPClient) do(req *http.Request, token string, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
		}
		return nil
	}

	var errPayload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	if errPayload.Message == "" {
		errPayload.Message = http.StatusText(resp.StatusCode)
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: errPayload.Message}
}
