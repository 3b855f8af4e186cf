package model

import "time"

// SystemProjectID is used as the project id of global activity entries.
const SystemProjectID = "system"

// Activity types.
const (
	ActivityStageChange = "stage_change"
	ActivityFileUpload  = "file_upload"
	ActivityMessage     = "message"
	ActivityAuth        = "auth"
)

// ActivityLog mirrors the append-only `activity_logs` audit table.
type ActivityLog struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ValidActivityType reports whether t is a known activity type.
func ValidActivityType(t string) bool {
	switch t {
	case ActivityStageChange, ActivityFileUpload, ActivityMessage, ActivityAuth:
		return true
	}
	return false
}
