package syncengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/agency-portal/internal/model"
	"github.com/iliyamo/agency-portal/internal/utils"
)

// session returns the current session or ErrSignedOut.
func (e *Engine) session() (Session, error) {
	sess := e.identity.Current()
	if !sess.SignedIn() {
		return Session{}, ErrSignedOut
	}
	return sess, nil
}

// failed classifies the error of a write. A rejected credential ends the
// session; anything else leaves the cache alone.
func (e *Engine) failed(op string, err error) error {
	if isUnauthorized(err) {
		return e.expire(op, err)
	}
	return &MutationError{Op: op, Err: err}
}

// resync refreshes after a successful write. Only a rejected credential is
// reported; transient failures were logged by Refresh and the next poll
// catches up.
func (e *Engine) resync(ctx context.Context) error {
	if err := e.Refresh(ctx); errors.Is(err, ErrAuth) {
		return err
	}
	return nil
}

// ChangeStage moves a project to stage with the progress derived from it,
// optionally changing its status in the same write, then refreshes.
func (e *Engine) ChangeStage(ctx context.Context, projectID string, stage model.Stage, status *model.Status) (model.Project, error) {
	if strings.TrimSpace(projectID) == "" {
		return model.Project{}, &ValidationError{Field: "projectId", Reason: "required"}
	}
	progress, ok := model.ProgressForStage(stage)
	if !ok {
		return model.Project{}, &ValidationError{Field: "stage", Reason: fmt.Sprintf("%q is not a roadmap stage", stage)}
	}
	if status != nil && !status.Valid() {
		return model.Project{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("%q is not a project status", *status)}
	}
	return e.updateProject(ctx, "change stage", projectID, ProjectPatch{Stage: &stage, ProgressPercent: &progress, Status: status})
}

// CompleteProject marks a project completed.
func (e *Engine) CompleteProject(ctx context.Context, projectID string) (model.Project, error) {
	return e.SetStatus(ctx, projectID, model.StatusCompleted)
}

// ReopenProject returns a completed project to active.
func (e *Engine) ReopenProject(ctx context.Context, projectID string) (model.Project, error) {
	return e.SetStatus(ctx, projectID, model.StatusActive)
}

// SetStatus changes a project's status and leaves its stage as it is.
func (e *Engine) SetStatus(ctx context.Context, projectID string, status model.Status) (model.Project, error) {
	if strings.TrimSpace(projectID) == "" {
		return model.Project{}, &ValidationError{Field: "projectId", Reason: "required"}
	}
	if !status.Valid() {
		return model.Project{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("%q is not a project status", status)}
	}
	return e.updateProject(ctx, "set status", projectID, ProjectPatch{Status: &status})
}

func (e *Engine) updateProject(ctx context.Context, op, projectID string, patch ProjectPatch) (model.Project, error) {
	sess, err := e.session()
	if err != nil {
		return model.Project{}, err
	}
	updated, err := e.client.UpdateProject(ctx, sess.Token, projectID, patch)
	if err != nil {
		return model.Project{}, e.failed(op, err)
	}
	return updated, e.resync(ctx)
}

// AddProject creates a project for a client (admin only) and refreshes.
func (e *Engine) AddProject(ctx context.Context, p NewProject) (model.Project, error) {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.ClientID = strings.TrimSpace(p.ClientID)
	switch {
	case p.Title == "":
		return model.Project{}, &ValidationError{Field: "title", Reason: "required"}
	case p.Description == "":
		return model.Project{}, &ValidationError{Field: "description", Reason: "required"}
	case p.ClientID == "":
		return model.Project{}, &ValidationError{Field: "clientId", Reason: "required"}
	}
	sess, err := e.session()
	if err != nil {
		return model.Project{}, err
	}
	created, err := e.client.CreateProject(ctx, sess.Token, p)
	if err != nil {
		return model.Project{}, e.failed("add project", err)
	}
	return created, e.resync(ctx)
}

// SendMessage posts text to a project's thread.
//
// The message is first appended to the cache as a pending record, replaced
// by the server's copy once acknowledged, and finally the whole thread is
// refetched and reconciled. Whitespace-only text fails without a request.
func (e *Engine) SendMessage(ctx context.Context, projectID, text string) (model.Message, error) {
	return e.send(ctx, projectID, text, false)
}

// PostNotice posts a system message (admin only).
func (e *Engine) PostNotice(ctx context.Context, projectID, text string) (model.Message, error) {
	return e.send(ctx, projectID, text, true)
}

func (e *Engine) send(ctx context.Context, projectID, text string, isSystem bool) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if strings.TrimSpace(projectID) == "" {
		return model.Message{}, &ValidationError{Field: "projectId", Reason: "required"}
	}
	sess, err := e.session()
	if err != nil {
		return model.Message{}, err
	}

	pending := model.Message{
		ProjectID:  projectID,
		SenderID:   sess.User.ID,
		SenderName: sess.User.Name,
		SenderRole: sess.User.Role,
		Text:       text,
		IsSystem:   isSystem,
		CreatedAt:  e.now(),
		LocalID:    uuid.NewString(),
		Pending:    true,
	}
	e.mu.Lock()
	e.threads[projectID] = append(e.threads[projectID], pending)
	e.mu.Unlock()

	created, err := e.client.CreateMessage(ctx, sess.Token, projectID, text, isSystem)
	if err != nil {
		e.replacePending(projectID, pending.LocalID, nil)
		return model.Message{}, e.failed("send message", err)
	}
	e.replacePending(projectID, pending.LocalID, &created)

	if err := e.resyncMessages(ctx, sess, projectID); errors.Is(err, ErrAuth) {
		return created, err
	}
	return created, nil
}

// replacePending swaps the pending record localID for msg, or drops it when
// msg is nil or already cached.
func (e *Engine) replacePending(projectID, localID string, msg *model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	thread := e.threads[projectID]
	at := -1
	for i, m := range thread {
		if m.LocalID == localID {
			at = i
			break
		}
	}
	if at < 0 {
		return
	}
	if msg != nil && !containsMessage(thread, msg.ID) {
		thread[at] = *msg
		return
	}
	e.threads[projectID] = append(thread[:at:at], thread[at+1:]...)
}

func containsMessage(thread []model.Message, id string) bool {
	for _, m := range thread {
		if !m.Pending && m.ID == id {
			return true
		}
	}
	return false
}

// resyncMessages refetches one thread. It competes only with other fetches
// of the same thread.
func (e *Engine) resyncMessages(ctx context.Context, sess Session, projectID string) error {
	gen := e.started.Add(1)
	msgs, err := e.client.ListMessages(ctx, sess.Token, projectID)
	if err != nil {
		if isUnauthorized(err) {
			return e.expire("resync messages", err)
		}
		fetchErr := &TransientFetchError{Resource: "messages", Err: err}
		e.logger.Printf("sync: %v", fetchErr)
		return fetchErr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.current(gen, sess.Token) || gen <= e.threadGen[projectID] {
		e.logger.Printf("sync: message resync %d of %s superseded; discarded", gen, projectID)
		return nil
	}
	e.threads[projectID] = reconcile(msgs, e.threads[projectID], e.window)
	e.threadGen[projectID] = gen
	if e.messagesProject == "" {
		e.messagesProject = projectID
	}
	e.markApplied(gen)
	return nil
}

// reconcile replaces a cached thread with the server's list. Pending local
// records survive unless a server message with the same sender and text was
// created within window of them; the newest such server message claims it.
func reconcile(server, cached []model.Message, window time.Duration) []model.Message {
	out := make([]model.Message, 0, len(server)+1)
	out = append(out, server...)
	claimed := make([]bool, len(server))
	for _, p := range cached {
		if !p.Pending {
			continue
		}
		matched := false
		for i := len(server) - 1; i >= 0; i-- {
			s := server[i]
			if claimed[i] || s.SenderID != p.SenderID || s.Text != p.Text {
				continue
			}
			if d := s.CreatedAt.Sub(p.CreatedAt); d > window || d < -window {
				continue
			}
			claimed[i], matched = true, true
			break
		}
		if !matched {
			out = append(out, p)
		}
	}
	return out
}

// Broadcast posts a system message to every open project (admin only).
func (e *Engine) Broadcast(ctx context.Context, text string) ([]model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	sess, err := e.session()
	if err != nil {
		return nil, err
	}
	msgs, err := e.client.Broadcast(ctx, sess.Token, text)
	if err != nil {
		return nil, e.failed("broadcast", err)
	}
	return msgs, e.resync(ctx)
}

// AddFile registers an already stored file against a project and
// refreshes. The binary itself is not transferred here.
func (e *Engine) AddFile(ctx context.Context, projectID string, meta model.FileMeta) (model.ProjectFile, error) {
	meta.Name = strings.TrimSpace(meta.Name)
	meta.URL = strings.TrimSpace(meta.URL)
	switch {
	case strings.TrimSpace(projectID) == "":
		return model.ProjectFile{}, &ValidationError{Field: "projectId", Reason: "required"}
	case meta.Name == "":
		return model.ProjectFile{}, &ValidationError{Field: "name", Reason: "required"}
	case meta.URL == "":
		return model.ProjectFile{}, &ValidationError{Field: "url", Reason: "required"}
	}
	sess, err := e.session()
	if err != nil {
		return model.ProjectFile{}, err
	}
	f, err := e.client.CreateFile(ctx, sess.Token, projectID, meta)
	if err != nil {
		return model.ProjectFile{}, e.failed("add file", err)
	}
	return f, e.resync(ctx)
}

// UploadFile stores content in the object store and registers the returned
// reference with AddFile.
func (e *Engine) UploadFile(ctx context.Context, projectID, name string, content io.Reader) (model.ProjectFile, error) {
	name = strings.TrimSpace(name)
	switch {
	case strings.TrimSpace(projectID) == "":
		return model.ProjectFile{}, &ValidationError{Field: "projectId", Reason: "required"}
	case name == "":
		return model.ProjectFile{}, &ValidationError{Field: "name", Reason: "required"}
	case content == nil:
		return model.ProjectFile{}, &ValidationError{Field: "content", Reason: "required"}
	}
	sess, err := e.session()
	if err != nil {
		return model.ProjectFile{}, err
	}
	meta, err := e.client.UploadFile(ctx, sess.Token, name, content)
	if err != nil {
		return model.ProjectFile{}, e.failed("upload file", err)
	}
	return e.AddFile(ctx, projectID, meta)
}

// SubscribeEmail adds email to the newsletter. It needs no session.
func (e *Engine) SubscribeEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !utils.IsEmail(email) {
		return &ValidationError{Field: "email", Reason: "not a valid address"}
	}
	if err := e.client.Subscribe(ctx, email); err != nil {
		return &MutationError{Op: "subscribe", Err: err}
	}
	return nil
}

// Clients lists client accounts (admin only).
func (e *Engine) Clients(ctx context.Context) ([]model.User, error) {
	sess, err := e.session()
	if err != nil {
		return nil, err
	}
	users, err := e.client.ListClients(ctx, sess.Token)
	if err != nil {
		if isUnauthorized(err) {
			return nil, e.expire("list clients", err)
		}
		return nil, &TransientFetchError{Resource: "clients", Err: err}
	}
	return users, nil
}

// DeactivateClient disables a client account (admin only) and refreshes.
func (e *Engine) DeactivateClient(ctx context.Context, userID string) (model.User, error) {
	if strings.TrimSpace(userID) == "" {
		return model.User{}, &ValidationError{Field: "userId", Reason: "required"}
	}
	sess, err := e.session()
	if err != nil {
		return model.User{}, err
	}
	u, err := e.client.DeactivateClient(ctx, sess.Token, userID)
	if err != nil {
		return model.User{}, e.failed("deactivate client", err)
	}
	return u, e.resync(ctx)
}
