package model

import "time"

// Message mirrors the `messages` table. Messages are append-only and ordered
// by CreatedAt ascending within a project.
//
// LocalID and Pending are never persisted: they mark a message that has been
// appended to a local cache before the server acknowledged it.
type Message struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	SenderRole string    `json:"senderRole"`
	Text       string    `json:"text"`
	IsSystem   bool      `json:"isSystem"`
	CreatedAt  time.Time `json:"createdAt"`

	LocalID string `json:"-"`
	Pending bool   `json:"-"`
}
