package syncengine

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/agency-portal/internal/model"
)

var (
	clientUser = model.User{ID: "client-1", Name: "Cleo", Email: "cleo@example.com", Role: model.RoleClient, IsActive: true}
	otherUser  = model.User{ID: "client-2", Name: "Omar", Email: "omar@example.com", Role: model.RoleClient, IsActive: true}
	adminUser  = model.User{ID: "admin-1", Name: "Ada", Email: "ada@agency.test", Role: model.RoleAdmin, IsActive: true}
)

type testLogger struct{ t *testing.T }

func (l testLogger) Printf(format string, args ...any) { l.t.Logf(format, args...) }

// seededStub holds three projects: two owned by clientUser, one by otherUser
// (embedded form, as an admin listing would return it).
func seededStub() *stubClient {
	stub := newStub()
	stub.addUser(clientUser, "correct-horse")
	stub.addUser(adminUser, "admin-secret")
	stub.addProject(model.Project{ID: "p-1", ClientID: model.ClientReference(clientUser.ID), Title: "Website", Stage: model.StageReview})
	stub.addProject(model.Project{ID: "p-2", ClientID: model.ClientEmbedded(otherUser.Summary()), Title: "App"})
	stub.addProject(model.Project{ID: "p-3", ClientID: model.ClientReference(clientUser.ID), Title: "Brand"})
	stub.addMessage(model.Message{ProjectID: "p-1", SenderID: adminUser.ID, Text: "Kickoff", IsSystem: true})
	stub.addMessage(model.Message{ProjectID: "p-1", SenderID: clientUser.ID, Text: "Thanks!"})
	stub.addMessage(model.Message{ProjectID: "p-2", SenderID: otherUser.ID, Text: "Any news?"})
	stub.files["p-1"] = []model.ProjectFile{{ID: "f-1", ProjectID: "p-1", Name: "brief.pdf", Size: "12 kB", URL: "http://files.test/brief.pdf"}}
	return stub
}

func newTestEngine(t *testing.T, stub *stubClient, user model.User) *Engine {
	t.Helper()
	identity := NewIdentity(&MemorySessionStore{})
	if user.ID != "" {
		if err := identity.Set(Session{Token: stub.token, User: user}); err != nil {
			t.Fatalf("set session: %v", err)
		}
	}
	now := time.Date(2026, 3, 1, 9, 0, 30, 0, time.UTC)
	return New(stub, identity, Options{
		Logger: testLogger{t},
		Now:    func() time.Time { return now },
	})
}

func TestRefreshSignedOutMakesNoCalls(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, model.User{})

	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snap := engine.Snapshot()
	if len(snap.Projects) != 0 || len(snap.Messages) != 0 || len(snap.Files) != 0 {
		t.Fatalf("expected empty collections, got %+v", snap)
	}
	if got := stub.calls.Load(); got != 0 {
		t.Fatalf("expected no calls while signed out, got %d", got)
	}
}

func TestRefreshClientFetchesFirstOwnedProject(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, clientUser)

	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snap := engine.Snapshot()
	if len(snap.Projects) != 3 {
		t.Fatalf("expected 3 cached projects, got %d", len(snap.Projects))
	}
	if snap.MessagesProjectID != "p-1" || len(snap.Messages) != 2 {
		t.Fatalf("expected 2 messages of p-1, got %q %d", snap.MessagesProjectID, len(snap.Messages))
	}
	if snap.FilesProjectID != "p-1" || len(snap.Files) != 1 {
		t.Fatalf("expected 1 file of p-1, got %q %d", snap.FilesProjectID, len(snap.Files))
	}

	d := engine.Dashboard()
	if len(d.Projects) != 2 {
		t.Fatalf("expected 2 owned projects, got %d", len(d.Projects))
	}
	if !d.HasCurrent || d.Current.ID != "p-1" {
		t.Fatalf("expected current project p-1, got %+v", d.Current)
	}
	if len(d.Notifications) != 1 || d.Notifications[0].Text != "Kickoff" {
		t.Fatalf("unexpected notifications %+v", d.Notifications)
	}
	if d.Unread != 1 {
		t.Fatalf("expected 1 unread notification, got %d", d.Unread)
	}
	engine.MarkNotificationsSeen()
	if got := engine.Dashboard().Unread; got != 0 {
		t.Fatalf("expected 0 unread after marking seen, got %d", got)
	}
}

func TestRefreshClientWithoutProjectsIsEmptyState(t *testing.T) {
	stub := newStub()
	engine := newTestEngine(t, stub, clientUser)

	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	d := engine.Dashboard()
	if d.HasCurrent || len(d.Projects) != 0 || len(d.Notifications) != 0 {
		t.Fatalf("expected empty dashboard, got %+v", d)
	}
	if got := stub.listMessagesN.Load(); got != 0 {
		t.Fatalf("expected no message fetch without a project, got %d", got)
	}
}

func TestRefreshKeepsPreviousSliceWhenSecondaryFetchFails(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, clientUser)
	ctx := context.Background()
	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	stub.mu.Lock()
	stub.messagesErr = &HTTPError{StatusCode: http.StatusBadGateway, Message: "upstream down"}
	stub.filesErr = errors.New("connection reset")
	stub.projects[0].Title = "Website v2"
	stub.mu.Unlock()

	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("expected secondary failures to be swallowed, got %v", err)
	}
	snap := engine.Snapshot()
	if snap.Projects[0].Title != "Website v2" {
		t.Fatalf("expected projects replaced, got %q", snap.Projects[0].Title)
	}
	if len(snap.Messages) != 2 || len(snap.Files) != 1 {
		t.Fatalf("expected previous messages and files kept, got %d/%d", len(snap.Messages), len(snap.Files))
	}
}

func TestRefreshProjectFailureLeavesCache(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, clientUser)
	ctx := context.Background()
	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	before := engine.Snapshot()

	stub.mu.Lock()
	stub.projectsErr = &HTTPError{StatusCode: http.StatusInternalServerError}
	stub.mu.Unlock()

	err := engine.Refresh(ctx)
	var fetchErr *TransientFetchError
	if !errors.As(err, &fetchErr) || fetchErr.Resource != "projects" {
		t.Fatalf("expected TransientFetchError for projects, got %v", err)
	}
	if !reflect.DeepEqual(before, engine.Snapshot()) {
		t.Fatalf("expected cache untouched by a failed project fetch")
	}
}

func TestRefreshRejectedCredentialSignsOut(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, clientUser)
	ctx := context.Background()
	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	var changes []Session
	engine.Identity().OnChange(func(s Session) { changes = append(changes, s) })
	stub.mu.Lock()
	stub.token = "rotated"
	stub.mu.Unlock()

	err := engine.Refresh(ctx)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if engine.Identity().Current().SignedIn() {
		t.Fatalf("expected signed out after rejected credential")
	}
	if len(changes) != 1 || changes[0].SignedIn() {
		t.Fatalf("expected one sign-out notification, got %+v", changes)
	}
	snap := engine.Snapshot()
	if len(snap.Projects) != 0 || len(snap.Messages) != 0 || len(snap.Files) != 0 {
		t.Fatalf("expected cleared cache, got %+v", snap)
	}

	calls := stub.calls.Load()
	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("signed-out refresh: %v", err)
	}
	if stub.calls.Load() != calls {
		t.Fatalf("expected no calls after sign-out")
	}
}

func TestRefreshTwiceIsIdempotent(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, clientUser)
	ctx := context.Background()

	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	first := engine.Snapshot()
	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	second := engine.Snapshot()
	first.Generation, second.Generation = 0, 0
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical snapshots\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestStaleRefreshIsDiscarded(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, clientUser)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	stub.mu.Lock()
	stub.onListProjects = func(n int64) {
		if n == 1 {
			close(entered)
			<-release
		}
	}
	stub.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	var slowErr error
	go func() {
		defer wg.Done()
		slowErr = engine.Refresh(ctx)
	}()
	<-entered

	stub.mu.Lock()
	stub.projects[0].Title = "Website (fresh)"
	stub.mu.Unlock()
	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("fast refresh: %v", err)
	}
	close(release)
	wg.Wait()
	if slowErr != nil {
		t.Fatalf("slow refresh: %v", slowErr)
	}

	snap := engine.Snapshot()
	if snap.Projects[0].Title != "Website (fresh)" {
		t.Fatalf("expected newer refresh to win, got %q", snap.Projects[0].Title)
	}
	if snap.Generation != 2 {
		t.Fatalf("expected generation 2 applied, got %d", snap.Generation)
	}
}

func TestLogoutDuringRefreshDiscardsResult(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, clientUser)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	stub.mu.Lock()
	stub.onListProjects = func(n int64) {
		if n == 1 {
			close(entered)
			<-release
		}
	}
	stub.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- engine.Refresh(ctx) }()
	<-entered
	if err := engine.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := len(engine.Snapshot().Projects); got != 0 {
		t.Fatalf("expected no projects after logout, got %d", got)
	}
}

func TestAdminSelectProjectAndThreadPreviews(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, adminUser)
	ctx := context.Background()

	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := engine.SelectProject(ctx, "p-2"); err != nil {
		t.Fatalf("select: %v", err)
	}
	d := engine.Dashboard()
	if len(d.Projects) != 3 {
		t.Fatalf("expected admin to see all projects, got %d", len(d.Projects))
	}
	if d.Current.ID != "p-2" || len(d.Thread) != 1 {
		t.Fatalf("expected p-2 thread, got %q with %d messages", d.Current.ID, len(d.Thread))
	}
	if len(d.Files) != 0 {
		t.Fatalf("expected p-2 to have no files, got %d", len(d.Files))
	}

	previews := map[string]ThreadPreview{}
	for _, p := range d.Threads {
		previews[p.Project.ID] = p
	}
	if p := previews["p-1"]; !p.HasLast || p.Last.Text != "Thanks!" {
		t.Fatalf("expected p-1 preview from earlier fetch, got %+v", p)
	}
	if p := previews["p-2"]; !p.HasLast || p.Last.Text != "Any news?" {
		t.Fatalf("expected p-2 preview, got %+v", p)
	}
	if p := previews["p-3"]; p.HasLast {
		t.Fatalf("expected no preview for p-3, got %+v", p)
	}
}

func TestDisappearedProjectDropsItsThread(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, clientUser)
	ctx := context.Background()
	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	stub.mu.Lock()
	stub.projects = stub.projects[1:]
	stub.mu.Unlock()
	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snap := engine.Snapshot()
	for _, p := range snap.Projects {
		if p.ID == "p-1" {
			t.Fatalf("expected p-1 gone from the cache")
		}
	}
	for _, m := range snap.AllMessages {
		if m.ProjectID == "p-1" {
			t.Fatalf("expected p-1 thread dropped, found %+v", m)
		}
	}
	if d := engine.Dashboard(); d.Current.ID != "p-3" {
		t.Fatalf("expected p-3 to become current, got %q", d.Current.ID)
	}
}

func TestRunPollsUntilCancelled(t *testing.T) {
	stub := seededStub()
	ticks := make(chan error, 8)
	identity := NewIdentity(nil)
	if err := identity.Set(Session{Token: stub.token, User: clientUser}); err != nil {
		t.Fatalf("set session: %v", err)
	}
	engine := New(stub, identity, Options{
		Logger:    testLogger{t},
		AfterTick: func(err error) { ticks <- err },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx, 10*time.Millisecond) }()

	for i := 0; i < 3; i++ {
		select {
		case err := <-ticks:
			if err != nil {
				t.Fatalf("tick %d: %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for tick %d", i)
		}
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
	if got := stub.listProjectsN.Load(); got < 3 {
		t.Fatalf("expected at least 3 project fetches, got %d", got)
	}
}

// holdProjectsFetch blocks the nth ListProjects call after it has read the
// stub's state, until release is closed.
func holdProjectsFetch(stub *stubClient, nth int64) (entered, release chan struct{}) {
	entered, release = make(chan struct{}), make(chan struct{})
	stub.mu.Lock()
	stub.onListProjects = func(n int64) {
		if n == nth {
			close(entered)
			<-release
		}
	}
	stub.mu.Unlock()
	return entered, release
}

func cachedStage(t *testing.T, engine *Engine, id string) model.Stage {
	t.Helper()
	for _, p := range engine.Snapshot().Projects {
		if p.ID == id {
			return p.Stage
		}
	}
	t.Fatalf("project %s not cached", id)
	return ""
}

func TestMessageResyncKeepsConcurrentStageResync(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, adminUser)
	ctx := context.Background()
	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	entered, release := holdProjectsFetch(stub, 2)
	done := make(chan error, 1)
	go func() {
		_, err := engine.ChangeStage(ctx, "p-1", model.StageLaunch, nil)
		done <- err
	}()
	<-entered

	if _, err := engine.SendMessage(ctx, "p-1", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("change stage: %v", err)
	}

	if got := cachedStage(t, engine, "p-1"); got != model.StageLaunch {
		t.Fatalf("expected cached stage Launch after ChangeStage returned, got %s", got)
	}
	found := false
	for _, m := range engine.Snapshot().AllMessages {
		found = found || (m.ProjectID == "p-1" && m.Text == "hi" && !m.Pending)
	}
	if !found {
		t.Fatalf("expected acknowledged message in p-1 thread")
	}
}

func TestFailedPollKeepsConcurrentMutationResync(t *testing.T) {
	stub := seededStub()
	engine := newTestEngine(t, stub, adminUser)
	ctx := context.Background()
	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	entered, release := holdProjectsFetch(stub, 2)
	done := make(chan error, 1)
	go func() {
		_, err := engine.ChangeStage(ctx, "p-1", model.StageLaunch, nil)
		done <- err
	}()
	<-entered

	stub.mu.Lock()
	stub.projectsErr = &HTTPError{StatusCode: http.StatusBadGateway, Message: "Bad Gateway"}
	stub.mu.Unlock()
	if err := engine.Refresh(ctx); !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient poll failure, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("change stage: %v", err)
	}

	if got := cachedStage(t, engine, "p-1"); got != model.StageLaunch {
		t.Fatalf("expected cached stage Launch after failed poll, got %s", got)
	}
}
