package syncengine

import (
	"sort"
	"time"

	"github.com/iliyamo/agency-portal/internal/model"
)

// NotificationLimit is the length of the notification feed.
const NotificationLimit = 5

// The functions below are pure: they never modify their inputs and return an
// empty value for empty inputs.

// ClientProjects returns the projects whose client resolves to clientID,
// in the given order. Both reference and embedded client forms match.
func ClientProjects(projects []model.Project, clientID string) []model.Project {
	out := []model.Project{}
	if clientID == "" {
		return out
	}
	for _, p := range projects {
		if p.ClientID.Is(clientID) {
			out = append(out, p)
		}
	}
	return out
}

// OwnedProjects returns what actor may see: every project for an admin, the
// actor's own projects for a client.
func OwnedProjects(projects []model.Project, actor model.User) []model.Project {
	if actor.IsAdmin() {
		return append([]model.Project{}, projects...)
	}
	return ClientProjects(projects, actor.ID)
}

// CurrentProject picks the project the dashboard focuses on. A client gets
// the first owned project; an admin gets selectedID when it is still listed,
// otherwise the first project. ok is false when there is nothing to show.
func CurrentProject(projects []model.Project, actor model.User, selectedID string) (model.Project, bool) {
	visible := OwnedProjects(projects, actor)
	if actor.IsAdmin() && selectedID != "" {
		for _, p := range visible {
			if p.ID == selectedID {
				return p, true
			}
		}
	}
	if len(visible) == 0 {
		return model.Project{}, false
	}
	return visible[0], true
}

// ProjectMessages returns the messages of projectID in chronological order.
func ProjectMessages(messages []model.Message, projectID string) []model.Message {
	out := []model.Message{}
	for _, m := range messages {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// NotificationFeed returns the last n system messages, most recent first.
// Non-positive n falls back to NotificationLimit.
func NotificationFeed(messages []model.Message, n int) []model.Message {
	if n <= 0 {
		n = NotificationLimit
	}
	system := []model.Message{}
	for _, m := range messages {
		if m.IsSystem {
			system = append(system, m)
		}
	}
	sort.SliceStable(system, func(i, j int) bool { return system[i].CreatedAt.Before(system[j].CreatedAt) })
	if len(system) > n {
		system = system[len(system)-n:]
	}
	out := make([]model.Message, 0, len(system))
	for i := len(system) - 1; i >= 0; i-- {
		out = append(out, system[i])
	}
	return out
}

// UnreadCount counts the feed entries newer than seenAt.
func UnreadCount(feed []model.Message, seenAt time.Time) int {
	n := 0
	for _, m := range feed {
		if m.CreatedAt.After(seenAt) {
			n++
		}
	}
	return n
}

// ThreadPreview pairs a project with its latest cached message.
type ThreadPreview struct {
	Project model.Project
	Last    model.Message
	HasLast bool
}

// ThreadPreviews reduces the cached messages of every project to the most
// recent one. Projects without cached messages have HasLast false.
func ThreadPreviews(projects []model.Project, messages []model.Message) []ThreadPreview {
	latest := make(map[string]model.Message, len(projects))
	for _, m := range messages {
		cur, ok := latest[m.ProjectID]
		if !ok || !m.CreatedAt.Before(cur.CreatedAt) {
			latest[m.ProjectID] = m
		}
	}
	out := make([]ThreadPreview, 0, len(projects))
	for _, p := range projects {
		m, ok := latest[p.ID]
		out = append(out, ThreadPreview{Project: p, Last: m, HasLast: ok})
	}
	return out
}

// ActiveProjects returns every project not yet completed.
func ActiveProjects(projects []model.Project) []model.Project {
	out := []model.Project{}
	for _, p := range projects {
		if p.Status != model.StatusCompleted {
			out = append(out, p)
		}
	}
	return out
}

// CompletedProjects returns the completed projects.
func CompletedProjects(projects []model.Project) []model.Project {
	out := []model.Project{}
	for _, p := range projects {
		if p.Status == model.StatusCompleted {
			out = append(out, p)
		}
	}
	return out
}

// RoadmapStep is one stage of a project's roadmap.
type RoadmapStep struct {
	Stage   model.Stage
	Done    bool
	Current bool
}

// RoadmapPosition lays out the fixed stage sequence against p's stage. A
// completed project has every step done.
func RoadmapPosition(p model.Project) []RoadmapStep {
	at := model.StageIndex(p.Stage)
	steps := make([]RoadmapStep, len(model.Stages))
	for i, s := range model.Stages {
		steps[i] = RoadmapStep{
			Stage:   s,
			Done:    i < at || p.Status == model.StatusCompleted,
			Current: i == at && p.Status != model.StatusCompleted,
		}
	}
	return steps
}
