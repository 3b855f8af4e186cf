package model

import "time"

// ProjectFile mirrors the `project_files` table. Size is a display string
// such as "2.4 MB"; the binary itself lives in object storage at URL.
type ProjectFile struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	Name       string    `json:"name"`
	Size       string    `json:"size"`
	URL        string    `json:"url"`
	UploadedBy string    `json:"uploadedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FileMeta is the reference registered against a project after an upload.
type FileMeta struct {
	Name string `json:"name"`
	Size string `json:"size"`
	URL  string `json:"url"`
}
