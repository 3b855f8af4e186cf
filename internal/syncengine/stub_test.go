package syncengine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/agency-portal/internal/model"
)

// stubClient is an in-memory portal. Every method bumps calls so tests can
// assert that nothing reached the network.
type stubClient struct {
	calls atomic.Int64

	mu          sync.Mutex
	token       string
	users       map[string]model.User // by email
	current     model.User
	passwords   map[string]string
	projects    []model.Project
	messages    map[string][]model.Message
	files       map[string][]model.ProjectFile
	patches     []ProjectPatch
	subscribed  []string
	seq         int
	clock       time.Time
	projectsErr error
	messagesErr error
	filesErr    error
	writeErr    error
	meErr       error

	// hooks, called without mu held
	onListProjects  func(n int64)
	onCreateMessage func()
	listProjectsN   atomic.Int64
	listMessagesN   atomic.Int64
}

func newStub() *stubClient {
	return &stubClient{
		token:     "tok-1",
		users:     map[string]model.User{},
		passwords: map[string]string{},
		messages:  map[string][]model.Message{},
		files:     map[string][]model.ProjectFile{},
		clock:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *stubClient) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *stubClient) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *stubClient) addUser(u model.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Email] = u
	s.passwords[u.Email] = password
}

func (s *stubClient) addProject(p model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Stage == "" {
		p.Stage = model.StageDiscovery
	}
	if p.Status == "" {
		p.Status = model.StatusActive
	}
	s.projects = append(s.projects, p)
}

func (s *stubClient) addMessage(m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = s.nextID("msg")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.tick()
	}
	s.messages[m.ProjectID] = append(s.messages[m.ProjectID], m)
}

func (s *stubClient) check(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" || token != s.token {
		return &HTTPError{StatusCode: http.StatusUnauthorized, Message: "User unauthorized or deactivated"}
	}
	return nil
}

func (s *stubClient) Login(_ context.Context, email, password, role string) (AuthResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok || s.passwords[email] != password {
		return AuthResult{}, &HTTPError{StatusCode: http.StatusUnauthorized, Message: "invalid credentials"}
	}
	if role != "" && role != u.Role {
		return AuthResult{}, &HTTPError{StatusCode: http.StatusForbidden, Message: "access denied for this role"}
	}
	s.current = u
	return AuthResult{Token: s.token, RefreshToken: "refresh-" + u.ID, User: u}, nil
}

func (s *stubClient) Signup(_ context.Context, req SignupRequest) (AuthResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[req.Email]; ok {
		return AuthResult{}, &HTTPError{StatusCode: http.StatusConflict, Message: "email already registered"}
	}
	u := model.User{ID: s.nextID("user"), Name: req.Name, Email: req.Email, Role: model.RoleClient, IsActive: true}
	s.users[req.Email] = u
	s.passwords[req.Email] = req.Password
	return AuthResult{Token: s.token, User: u}, nil
}

func (s *stubClient) Me(_ context.Context, token string) (model.User, error) {
	s.calls.Add(1)
	if err := s.check(token); err != nil {
		return model.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meErr != nil {
		return model.User{}, s.meErr
	}
	return s.current, nil
}

func (s *stubClient) Logout(_ context.Context, token, _ string) error {
	s.calls.Add(1)
	return s.check(token)
}

func (s *stubClient) ListProjects(_ context.Context, token string) ([]model.Project, error) {
	s.calls.Add(1)
	n := s.listProjectsN.Add(1)
	if err := s.check(token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out, err := append([]model.Project{}, s.projects...), s.projectsErr
	hook := s.onListProjects
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *stubClient) ListMessages(_ context.Context, token, projectID string) ([]model.Message, error) {
	s.calls.Add(1)
	s.listMessagesN.Add(1)
	if err := s.check(token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messagesErr != nil {
		return nil, s.messagesErr
	}
	return append([]model.Message{}, s.messages[projectID]...), nil
}

func (s *stubClient) ListFiles(_ context.Context, token, projectID string) ([]model.ProjectFile, error) {
	s.calls.Add(1)
	if err := s.check(token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filesErr != nil {
		return nil, s.filesErr
	}
	return append([]model.ProjectFile{}, s.files[projectID]...), nil
}

func (s *stubClient) ListClients(_ context.Context, token string) ([]model.User, error) {
	s.calls.Add(1)
	if err := s.check(token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.User{}
	for _, u := range s.users {
		if u.Role == model.RoleClient {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubClient) CreateProject(_ context.Context, token string, p NewProject) (model.Project, error) {
	s.calls.Add(1)
	if err := s.check(token); err != nil {
		return model.Project{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return model.Project{}, s.writeErr
	}
	created := model.Project{
		ID: s.nextID("proj"), ClientID: model.ClientReference(p.ClientID), Title: p.Title,
		Description: p.Description, Stage: model.StageDiscovery, Status: model.StatusActive,
		CreatedAt: s.tick(),
	}
	s.projects = append([]model.Project{created}, s.projects...)
	return created, nil
}

func (s *stubClient) UpdateProject(_ context.Context, token, projectID string, patch ProjectPatch) (model.Project, error) {
	s.calls.Add(1)
	if err := s.check(token); err != nil {
		return model.Project{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return model.Project{}, s.writeErr
	}
	s.patches = append(s.patches, patch)
	for i, p := range s.projects {
		if p.ID != projectID {
			continue
		}
		if patch.Stage != nil {
			p.Stage = *patch.Stage
			p.ProgressPercent, _ = model.ProgressForStage(p.Stage)
		}
		if patch.Status != nil {
			p.Status = *patch.Status
		}
		p.UpdatedAt = s.tick()
		s.projects[i] = p
		return p, nil
	}
	return model.Project{}, &HTTPError{StatusCode: http.StatusNotFound, Message: "project not found"}
}

func (s *stubClient) CreateMessage(_ context.Context, token, projectID, text string, isSystem bool) (model.Message, error) {
	s.calls.Add(1)
	if err := s.check(token); err != nil {
		return model.Message{}, err
	}
	s.mu.Lock()
	hook := s.onCreateMessage
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return model.Message{}, s.writeErr
	}
	m := model.Message{
		ID: s.nextID("msg"), ProjectID: projectID, SenderID: "client-1", SenderName: "Cleo",
		SenderRole: model.RoleClient, Text: text, IsSystem: isSystem, CreatedAt: s.tick(),
	}
	s.messages[projectID] = append(s.messages[projectID], m)
	return m, nil
}

func (s *stubClient) Broadcast(_ context.Context, token, text string) ([]model.Message, error) {
	s.calls.Add(1)
	if err := s.check(token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	var out []model.Message
	for _, p := range s.projects {
		if p.Status == model.StatusCompleted {
			continue
		}
		m := model.Message{ID: s.nextID("msg"), ProjectID: p.ID, Text: text, IsSystem: true, CreatedAt: s.tick()}
		s.messages[p.ID] = append(s.messages[p.ID], m)
		out = append(out, m)
	}
	return out, nil
}

func (s *stubClient) CreateFile(_ context.Context, token, projectID string, meta model.FileMeta) (model.ProjectFile, error) {
	s.calls.Add(1)
	if err := s.check(token); err != nil {
		return model.ProjectFile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return model.ProjectFile{}, s.writeErr
	}
	f := model.ProjectFile{ID: s.nextID("file"), ProjectID: projectID, Name: meta.Name, Size: meta.Size, URL: meta.URL, CreatedAt: s.tick()}
	s.files[projectID] = append(s.files[projectID], f)
	return f, nil
}

func (s *stubClient) UploadFile(_ context.Context, token, name string, content io.Reader) (model.FileMeta, error) {
	s.calls.Add(1)
	if err := s.check(token); err != nil {
		return model.FileMeta{}, err
	}
	n, err := io.Copy(io.Discard, content)
	if err != nil {
		return model.FileMeta{}, err
	}
	return model.FileMeta{Name: name, Size: fmt.Sprintf("%d B", n), URL: "http://files.test/" + name}, nil
}

func (s *stubClient) DeactivateClient(_ context.Context, token, userID string) (model.User, error) {
	s.calls.Add(1)
	if err := s.check(token); err != nil {
		return model.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, u := range s.users {
		if u.ID == userID {
			u.IsActive = false
			s.users[email] = u
			return u, nil
		}
	}
	return model.User{}, &HTTPError{StatusCode: http.StatusNotFound, Message: "client not found"}
}

func (s *stubClient) Subscribe(_ context.Context, email string) error {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append(s.subscribed, email)
	return nil
}

var _ Client = (*stubClient)(nil)
