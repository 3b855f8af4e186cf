package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/agency-portal/internal/model"
)

// FileRepo stores file references registered against projects. The binary
// content lives in object storage; only name, size and url are kept here.
type FileRepo struct {
	db *sql.DB
}

func NewFileRepo(db *sql.DB) *FileRepo { return &FileRepo{db: db} }

// CreateTx appends f inside tx.
func (r *FileRepo) CreateTx(ctx context.Context, tx *sql.Tx, f *model.ProjectFile) error {
	f.ID = uuid.NewString()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO project_files (id, project_id, name, size, url, uploaded_by, created_at) VALUES (?,?,?,?,?,?,?)",
		f.ID, f.ProjectID, f.Name, f.Size, f.URL, f.UploadedBy, f.CreatedAt)
	return err
}

// ListByProject returns a project's files oldest-first.
func (r *FileRepo) ListByProject(ctx context.Context, projectID string) ([]model.ProjectFile, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, project_id, name, size, url, uploaded_by, created_at FROM project_files WHERE project_id = ? ORDER BY created_at, id",
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ProjectFile{}
	for rows.Next() {
		var f model.ProjectFile
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Name, &f.Size, &f.URL, &f.UploadedBy, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.CreatedAt = f.CreatedAt.UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}
