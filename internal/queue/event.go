// Package queue defines message payloads exchanged over the message broker
// and the consumer that drains them.
package queue

import (
    "time"

    "github.com/iliyamo/agency-portal/internal/model"
)

// ActivityQueueName is the durable queue every activity entry is published to.
const ActivityQueueName = "portal.activity"

// ActivityEvent is published for every ActivityLog entry the API writes.  It
// carries enough context for downstream consumers (audit log, notifications)
// to act without querying the primary database.
type ActivityEvent struct {
    ID        string `json:"id"`
    ProjectID string `json:"projectId"`
    Type      string `json:"type"`
    Content   string `json:"content"`
    ActorID   string `json:"actorId,omitempty"`
    ActorRole string `json:"actorRole,omitempty"`
    Timestamp string `json:"timestamp"`
}

// NewActivityEvent builds the event for a stored log entry.
func NewActivityEvent(a model.ActivityLog, actor model.User) ActivityEvent {
    return ActivityEvent{
        ID:        a.ID,
        ProjectID: a.ProjectID,
        Type:      a.Type,
        Content:   a.Content,
        ActorID:   actor.ID,
        ActorRole: actor.Role,
        Timestamp: a.Timestamp.UTC().Format(time.RFC3339Nano),
    }
}
