package syncengine

import (
	"fmt"
	"testing"
	"time"

	"github.com/iliyamo/agency-portal/internal/model"
)

var t0 = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func msgAt(project string, minute int, text string, system bool) model.Message {
	return model.Message{
		ID:        fmt.Sprintf("%s-%d", project, minute),
		ProjectID: project,
		Text:      text,
		IsSystem:  system,
		CreatedAt: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func ids(projects []model.Project) []string {
	out := make([]string, len(projects))
	for i, p := range projects {
		out[i] = p.ID
	}
	return out
}

func TestClientProjectsHandlesBothClientForms(t *testing.T) {
	projects := []model.Project{
		{ID: "a", ClientID: model.ClientReference("c1")},
		{ID: "b", ClientID: model.ClientEmbedded(model.ClientSummary{ID: "c2", Name: "Other"})},
		{ID: "c", ClientID: model.ClientEmbedded(model.ClientSummary{ID: "c1", Name: "Cleo"})},
		{ID: "d"},
		{ID: "e", ClientID: model.ClientReference("c1")},
	}
	got := ids(ClientProjects(projects, "c1"))
	want := []string{"a", "c", "e"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := ClientProjects(projects, ""); len(got) != 0 {
		t.Fatalf("expected nothing for an empty id, got %v", ids(got))
	}
	if got := ClientProjects(nil, "c1"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestCurrentProject(t *testing.T) {
	projects := []model.Project{
		{ID: "x", ClientID: model.ClientReference("someone-else")},
		{ID: "y", ClientID: model.ClientReference(clientUser.ID)},
		{ID: "z", ClientID: model.ClientReference(clientUser.ID)},
	}
	if p, ok := CurrentProject(projects, clientUser, "z"); !ok || p.ID != "y" {
		t.Fatalf("expected client's first owned project y, got %q %v", p.ID, ok)
	}
	if p, ok := CurrentProject(projects, adminUser, "z"); !ok || p.ID != "z" {
		t.Fatalf("expected admin's selection z, got %q %v", p.ID, ok)
	}
	if p, ok := CurrentProject(projects, adminUser, "gone"); !ok || p.ID != "x" {
		t.Fatalf("expected fallback to first project, got %q %v", p.ID, ok)
	}
	if _, ok := CurrentProject(nil, clientUser, ""); ok {
		t.Fatalf("expected no current project for an empty list")
	}
}

func TestNotificationFeedKeepsLastFiveNewestFirst(t *testing.T) {
	var msgs []model.Message
	for i := 1; i <= 7; i++ {
		msgs = append(msgs, msgAt("p", i, fmt.Sprintf("notice %d", i), true))
		msgs = append(msgs, msgAt("p", 100+i, "chat", false))
	}
	feed := NotificationFeed(msgs, NotificationLimit)
	if len(feed) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(feed))
	}
	for i, m := range feed {
		want := fmt.Sprintf("notice %d", 7-i)
		if m.Text != want {
			t.Fatalf("entry %d: expected %q, got %q", i, want, m.Text)
		}
	}
	if got := NotificationFeed(nil, 0); got == nil || len(got) != 0 {
		t.Fatalf("expected empty feed, got %#v", got)
	}
}

func TestUnreadCount(t *testing.T) {
	feed := []model.Message{msgAt("p", 3, "c", true), msgAt("p", 2, "b", true), msgAt("p", 1, "a", true)}
	if got := UnreadCount(feed, t0.Add(90*time.Second)); got != 2 {
		t.Fatalf("expected 2 unread, got %d", got)
	}
	if got := UnreadCount(feed, time.Time{}); got != 3 {
		t.Fatalf("expected 3 unread, got %d", got)
	}
}

func TestThreadPreviewsPickLatestPerProject(t *testing.T) {
	projects := []model.Project{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	msgs := []model.Message{
		msgAt("a", 1, "first", false),
		msgAt("b", 5, "only", false),
		msgAt("a", 9, "latest", false),
		msgAt("a", 4, "middle", false),
		msgAt("zz", 50, "orphan", false),
	}
	previews := ThreadPreviews(projects, msgs)
	if len(previews) != 3 {
		t.Fatalf("expected one preview per project, got %d", len(previews))
	}
	if !previews[0].HasLast || previews[0].Last.Text != "latest" {
		t.Fatalf("unexpected preview for a: %+v", previews[0])
	}
	if !previews[1].HasLast || previews[1].Last.Text != "only" {
		t.Fatalf("unexpected preview for b: %+v", previews[1])
	}
	if previews[2].HasLast {
		t.Fatalf("expected no preview for c")
	}
	if got := ThreadPreviews(nil, msgs); len(got) != 0 {
		t.Fatalf("expected no previews without projects")
	}
}

func TestActiveAndCompletedSplit(t *testing.T) {
	projects := []model.Project{
		{ID: "a", Status: model.StatusActive},
		{ID: "b", Status: model.StatusCompleted},
		{ID: "c", Status: model.StatusPaused},
	}
	if got := fmt.Sprint(ids(ActiveProjects(projects))); got != "[a c]" {
		t.Fatalf("unexpected active %s", got)
	}
	if got := fmt.Sprint(ids(CompletedProjects(projects))); got != "[b]" {
		t.Fatalf("unexpected completed %s", got)
	}
}

func TestRoadmapPosition(t *testing.T) {
	steps := RoadmapPosition(model.Project{Stage: model.StageDevelopment, Status: model.StatusActive})
	if len(steps) != len(model.Stages) {
		t.Fatalf("expected %d steps, got %d", len(model.Stages), len(steps))
	}
	for i, s := range steps {
		if s.Done != (i < 2) || s.Current != (i == 2) {
			t.Fatalf("step %d (%s): done=%v current=%v", i, s.Stage, s.Done, s.Current)
		}
	}
	for _, s := range RoadmapPosition(model.Project{Stage: model.StageLaunch, Status: model.StatusCompleted}) {
		if !s.Done || s.Current {
			t.Fatalf("expected every step done for a completed project, got %+v", s)
		}
	}
}

func TestReconcileMatchesPendingByContentAndTime(t *testing.T) {
	server := []model.Message{
		msgAt("p", 0, "hello", false),
		msgAt("p", 10, "hello", false),
	}
	for i := range server {
		server[i].SenderID = "u1"
	}
	pending := model.Message{ProjectID: "p", SenderID: "u1", Text: "hello", CreatedAt: t0.Add(10*time.Minute + 5*time.Second), LocalID: "l1", Pending: true}
	other := model.Message{ProjectID: "p", SenderID: "u1", Text: "not yet", CreatedAt: t0.Add(11 * time.Minute), LocalID: "l2", Pending: true}

	got := reconcile(server, []model.Message{server[0], pending, other}, DefaultReconcileWindow)
	if len(got) != 3 {
		t.Fatalf("expected server list plus one unmatched pending, got %d: %+v", len(got), got)
	}
	if got[2].LocalID != "l2" || !got[2].Pending {
		t.Fatalf("expected unmatched pending kept last, got %+v", got[2])
	}

	stale := model.Message{ProjectID: "p", SenderID: "u1", Text: "hello", CreatedAt: t0.Add(time.Hour), LocalID: "l3", Pending: true}
	got = reconcile(server, []model.Message{stale}, DefaultReconcileWindow)
	if len(got) != 3 || got[2].LocalID != "l3" {
		t.Fatalf("expected pending outside the window kept, got %+v", got)
	}
}
