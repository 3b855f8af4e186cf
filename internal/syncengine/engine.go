// Package syncengine keeps a signed-in actor's view of the portal in step
// with the server. It polls projects, messages and files, applies writes and
// resyncs the affected collection, and derives the dashboard from its cache.
package syncengine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/agency-portal/internal/model"
)

// Logger is the logging surface the engine needs; *log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// DefaultReconcileWindow bounds the clock distance between a pending message
// and the server copy it is matched with.
const DefaultReconcileWindow = 2 * time.Minute

// Options tunes an Engine. The zero value is usable.
type Options struct {
	Logger          Logger
	Now             func() time.Time
	ReconcileWindow time.Duration
	// AfterTick runs after every poll of Run with the refresh result.
	AfterTick func(error)
}

// Snapshot is a copy of the cache. Messages holds the thread of
// MessagesProjectID; AllMessages holds every cached thread.
type Snapshot struct {
	Projects          []model.Project
	Messages          []model.Message
	MessagesProjectID string
	AllMessages       []model.Message
	Files             []model.ProjectFile
	FilesProjectID    string
	Generation        uint64
	RefreshedAt       time.Time
}

// Engine is safe for concurrent use. Refreshes and mutations may overlap.
// Every fetch takes a sequence number when it starts, and each cache slice
// (the project list, the files of the current project, every thread)
// remembers the sequence of the fetch it was last filled from. A result
// only replaces a slice filled by an older fetch, so a slow response never
// overwrites a newer one, and a fetch that fails or touches other slices
// supersedes nothing.
type Engine struct {
	client    Client
	identity  *Identity
	logger    Logger
	now       func() time.Time
	window    time.Duration
	afterTick func(error)

	// started hands out fetch sequence numbers.
	started atomic.Uint64

	mu              sync.Mutex
	projects        []model.Project
	threads         map[string][]model.Message
	messagesProject string
	files           []model.ProjectFile
	filesProject    string
	floor           uint64            // fetches at or below it belong to an ended session
	projectsGen     uint64            // fetch that last filled projects
	filesGen        uint64            // fetch that last filled files
	threadGen       map[string]uint64 // fetch that last filled each thread
	applied         uint64            // newest fetch applied to any slice
	refreshedAt     time.Time
	selected        string
	seenAt          time.Time
}

// New returns an engine reading its session from identity.
func New(client Client, identity *Identity, opts Options) *Engine {
	if identity == nil {
		identity = NewIdentity(nil)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReconcileWindow <= 0 {
		opts.ReconcileWindow = DefaultReconcileWindow
	}
	return &Engine{
		client:    client,
		identity:  identity,
		logger:    opts.Logger,
		now:       opts.Now,
		window:    opts.ReconcileWindow,
		afterTick: opts.AfterTick,
		projects:  []model.Project{},
		threads:   map[string][]model.Message{},
		threadGen: map[string]uint64{},
		files:     []model.ProjectFile{},
	}
}

// Identity returns the session holder the engine reads from.
func (e *Engine) Identity() *Identity { return e.identity }

type fetchResult struct {
	projects     []model.Project
	target       string
	messages     []model.Message
	haveMessages bool
	files        []model.ProjectFile
	haveFiles    bool
}

// Refresh refetches the actor's projects and the thread and files of the
// current project, then replaces the cache.
//
// Signed out, it clears the cache without calling the server. A rejected
// credential signs out and returns *AuthError. A failed project fetch
// returns *TransientFetchError and leaves the cache as it was; failed
// message or file fetches are logged and keep the previous slice.
func (e *Engine) Refresh(ctx context.Context) error {
	sess := e.identity.Current()
	if !sess.SignedIn() {
		e.reset()
		return nil
	}
	gen := e.started.Add(1)

	projects, err := e.client.ListProjects(ctx, sess.Token)
	if err != nil {
		if isUnauthorized(err) {
			return e.expire("refresh", err)
		}
		fetchErr := &TransientFetchError{Resource: "projects", Err: err}
		e.logger.Printf("sync: %v", fetchErr)
		return fetchErr
	}
	if projects == nil {
		projects = []model.Project{}
	}

	res := fetchResult{projects: projects}
	e.mu.Lock()
	selected := e.selected
	e.mu.Unlock()

	if target, ok := CurrentProject(projects, sess.User, selected); ok {
		res.target = target.ID

		msgs, err := e.client.ListMessages(ctx, sess.Token, target.ID)
		switch {
		case err == nil:
			res.messages, res.haveMessages = msgs, true
		case isUnauthorized(err):
			return e.expire("refresh", err)
		default:
			e.logger.Printf("sync: %v", &TransientFetchError{Resource: "messages", Err: err})
		}

		files, err := e.client.ListFiles(ctx, sess.Token, target.ID)
		switch {
		case err == nil:
			res.files, res.haveFiles = files, true
		case isUnauthorized(err):
			return e.expire("refresh", err)
		default:
			e.logger.Printf("sync: %v", &TransientFetchError{Resource: "files", Err: err})
		}
	}

	if !e.apply(gen, sess.Token, res) {
		e.logger.Printf("sync: refresh %d superseded by newer fetches; discarded", gen)
	}
	return nil
}

// current reports whether a fetch numbered gen under token still belongs
// to the live session. Callers hold mu.
func (e *Engine) current(gen uint64, token string) bool {
	return gen > e.floor && e.identity.Current().Token == token
}

// markApplied records that gen filled a slice. Callers hold mu.
func (e *Engine) markApplied(gen uint64) {
	e.applied = max(e.applied, gen)
	e.refreshedAt = e.now()
}

// apply installs each slice of res that was last filled by a fetch older
// than gen. It reports whether anything was installed.
func (e *Engine) apply(gen uint64, token string, res fetchResult) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.current(gen, token) {
		return false
	}

	installed := false
	if gen > e.projectsGen {
		e.projects, e.projectsGen = res.projects, gen
		if res.target == "" {
			e.messagesProject = ""
			e.files, e.filesProject = []model.ProjectFile{}, ""
		}
		installed = true
	}
	if res.target != "" && res.haveMessages && gen > e.threadGen[res.target] {
		e.threads[res.target] = reconcile(res.messages, e.threads[res.target], e.window)
		e.threadGen[res.target] = gen
		if gen == e.projectsGen || e.messagesProject == "" {
			e.messagesProject = res.target
		}
		installed = true
	}
	if res.target != "" && res.haveFiles && gen > e.filesGen {
		if res.files == nil {
			res.files = []model.ProjectFile{}
		}
		e.files, e.filesProject, e.filesGen = res.files, res.target, gen
		installed = true
	}
	if !installed {
		return false
	}

	e.pruneInvisible()
	e.markApplied(gen)
	return true
}

// pruneInvisible drops cached threads and files of projects that are no
// longer in the project list. Callers hold mu.
func (e *Engine) pruneInvisible() {
	visible := make(map[string]bool, len(e.projects))
	for _, p := range e.projects {
		visible[p.ID] = true
	}
	for id := range e.threads {
		if !visible[id] {
			delete(e.threads, id)
			delete(e.threadGen, id)
		}
	}
	if !visible[e.messagesProject] {
		e.messagesProject = ""
	}
	if !visible[e.filesProject] {
		e.files, e.filesProject = []model.ProjectFile{}, ""
	}
}

// reset empties the cache and invalidates every fetch in flight.
func (e *Engine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.floor = e.started.Add(1)
	e.applied, e.projectsGen, e.filesGen = e.floor, e.floor, e.floor
	e.threadGen = map[string]uint64{}
	e.projects = []model.Project{}
	e.threads = map[string][]model.Message{}
	e.messagesProject = ""
	e.files, e.filesProject = []model.ProjectFile{}, ""
	e.selected = ""
	e.seenAt = time.Time{}
	e.refreshedAt = time.Time{}
}

// expire ends the session after the server rejected its credential.
func (e *Engine) expire(op string, cause error) error {
	e.reset()
	if err := e.identity.Clear(); err != nil {
		e.logger.Printf("sync: clear session: %v", err)
	}
	e.logger.Printf("sync: %s: credential rejected, signed out", op)
	return &AuthError{Op: op, Err: cause}
}

// Snapshot returns a copy of the cache.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		Projects:          append([]model.Project{}, e.projects...),
		Messages:          append([]model.Message{}, e.threads[e.messagesProject]...),
		MessagesProjectID: e.messagesProject,
		AllMessages:       []model.Message{},
		Files:             append([]model.ProjectFile{}, e.files...),
		FilesProjectID:    e.filesProject,
		Generation:        e.applied,
		RefreshedAt:       e.refreshedAt,
	}
	for _, p := range e.projects {
		s.AllMessages = append(s.AllMessages, e.threads[p.ID]...)
	}
	return s
}

// SelectProject focuses an admin's dashboard on projectID and refreshes so
// its thread and files are fetched.
func (e *Engine) SelectProject(ctx context.Context, projectID string) error {
	e.mu.Lock()
	e.selected = projectID
	e.mu.Unlock()
	return e.Refresh(ctx)
}

// MarkNotificationsSeen resets the unread counter.
func (e *Engine) MarkNotificationsSeen() {
	e.mu.Lock()
	e.seenAt = e.now()
	e.mu.Unlock()
}

// Dashboard is the derived view of the cache for the signed-in actor.
type Dashboard struct {
	User          model.User
	SignedIn      bool
	Projects      []model.Project
	Current       model.Project
	HasCurrent    bool
	Thread        []model.Message
	Files         []model.ProjectFile
	Notifications []model.Message
	Unread        int
	Active        []model.Project
	Completed     []model.Project
	Threads       []ThreadPreview
	Roadmap       []RoadmapStep
	Generation    uint64
	RefreshedAt   time.Time
}

// Dashboard derives the actor's view from the current cache.
func (e *Engine) Dashboard() Dashboard {
	sess := e.identity.Current()
	snap := e.Snapshot()
	e.mu.Lock()
	selected, seenAt := e.selected, e.seenAt
	e.mu.Unlock()

	d := Dashboard{
		User:        sess.User,
		SignedIn:    sess.SignedIn(),
		Projects:    OwnedProjects(snap.Projects, sess.User),
		Thread:      []model.Message{},
		Files:       []model.ProjectFile{},
		Generation:  snap.Generation,
		RefreshedAt: snap.RefreshedAt,
	}
	d.Active = ActiveProjects(d.Projects)
	d.Completed = CompletedProjects(d.Projects)
	d.Current, d.HasCurrent = CurrentProject(snap.Projects, sess.User, selected)
	if d.HasCurrent {
		d.Thread = ProjectMessages(snap.AllMessages, d.Current.ID)
		if snap.FilesProjectID == d.Current.ID {
			d.Files = snap.Files
		}
		d.Roadmap = RoadmapPosition(d.Current)
	}
	d.Notifications = NotificationFeed(d.Thread, NotificationLimit)
	d.Unread = UnreadCount(d.Notifications, seenAt)
	if sess.User.IsAdmin() {
		d.Threads = ThreadPreviews(d.Projects, snap.AllMessages)
	}
	return d
}
