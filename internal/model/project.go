package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"time"
)

// Stage is one of the ordered delivery phases a project moves through.
type Stage string

const (
	StageDiscovery   Stage = "Discovery"
	StageDesign      Stage = "Design"
	StageDevelopment Stage = "Development"
	StageReview      Stage = "Review"
	StageLaunch      Stage = "Launch"
)

// Stages is the roadmap in order. The position of a stage determines both
// its progress percentage and where it is drawn on the roadmap.
var Stages = []Stage{StageDiscovery, StageDesign, StageDevelopment, StageReview, StageLaunch}

// StageIndex returns the position of s in Stages, or -1 when s is unknown.
func StageIndex(s Stage) int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is part of the roadmap.
func (s Stage) Valid() bool { return StageIndex(s) >= 0 }

// ProgressForStage returns round((index+1)/len(Stages)*100). The boolean is
// false for stages outside the roadmap; no percentage is computed for them.
func ProgressForStage(s Stage) (int, bool) {
	i := StageIndex(s)
	if i < 0 {
		return 0, false
	}
	return int(math.Round(float64(i+1) / float64(len(Stages)) * 100)), true
}

// Status is the lifecycle flag of a project.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusPaused:
		return true
	}
	return false
}

// Project mirrors the `projects` table. ClientID is rendered as a bare id
// for clients and as an embedded partial user for admins.
type Project struct {
	ID              string     `json:"id"`
	ClientID        ClientRef  `json:"clientId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Stage           Stage      `json:"stage"`
	ProgressPercent int        `json:"progressPercent"`
	Status          Status     `json:"status"`
	MilestoneDate   *time.Time `json:"milestoneDate,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// ClientSummary is the partial user embedded in a project's clientId field.
type ClientSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
}

type clientRefKind uint8

const (
	clientRefNone clientRefKind = iota
	clientRefID
	clientRefEmbedded
)

// ClientRef is the owner reference of a project. It is either a Reference
// (bare id) or an Embedded partial user; ID resolves both to an id.
type ClientRef struct {
	kind     clientRefKind
	id       string
	embedded ClientSummary
}

// ClientReference builds a ClientRef holding only an id.
func ClientReference(id string) ClientRef {
	return ClientRef{kind: clientRefID, id: id}
}

// ClientEmbedded builds a ClientRef holding a partial user.
func ClientEmbedded(u ClientSummary) ClientRef {
	return ClientRef{kind: clientRefEmbedded, id: u.ID, embedded: u}
}

// ID returns the referenced user id; empty for the zero ClientRef.
func (r ClientRef) ID() string { return r.id }

// Embedded returns the partial user when the reference carries one.
func (r ClientRef) Embedded() (ClientSummary, bool) {
	if r.kind != clientRefEmbedded {
		return ClientSummary{}, false
	}
	return r.embedded, true
}

// IsZero reports whether r references nobody.
func (r ClientRef) IsZero() bool { return r.kind == clientRefNone }

// Is reports whether r resolves to userID.
func (r ClientRef) Is(userID string) bool {
	return !r.IsZero() && userID != "" && r.id == userID
}

// DisplayName prefers the embedded name, then the id.
func (r ClientRef) DisplayName() string {
	if e, ok := r.Embedded(); ok && e.Name != "" {
		return e.Name
	}
	return r.id
}

// MarshalJSON emits a string for a Reference, an object for an Embedded
// user and null for the zero value.
func (r ClientRef) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case clientRefID:
		return json.Marshal(r.id)
	case clientRefEmbedded:
		return json.Marshal(r.embedded)
	}
	return []byte("null"), nil
}

var errClientRefShape = errors.New("clientId: expected string or object")

// UnmarshalJSON accepts both wire shapes of clientId.
func (r *ClientRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ClientRef{}
		return nil
	}
	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = ClientReference(id)
		return nil
	case '{':
		var s ClientSummary
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = ClientEmbedded(s)
		return nil
	}
	return errClientRefShape
}
