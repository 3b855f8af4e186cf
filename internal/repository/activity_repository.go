package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/agency-portal/internal/model"
)

// ActivityRepo stores the append-only audit feed.
type ActivityRepo struct {
	db *sql.DB
}

func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

// Create appends an entry outside of any transaction.
func (r *ActivityRepo) Create(ctx context.Context, a *model.ActivityLog) error {
	return r.create(ctx, r.db, a)
}

// CreateTx appends an entry inside tx.
func (r *ActivityRepo) CreateTx(ctx context.Context, tx *sql.Tx, a *model.ActivityLog) error {
	return r.create(ctx, tx, a)
}

func (r *ActivityRepo) create(ctx context.Context, q dbtx, a *model.ActivityLog) error {
	a.ID = uuid.NewString()
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		"INSERT INTO activity_logs (id, project_id, type, content, created_at) VALUES (?,?,?,?,?)",
		a.ID, a.ProjectID, a.Type, a.Content, a.Timestamp)
	return err
}

// List returns the newest entries first. An empty projectID lists every
// project including "system"; limit <= 0 means 50.
func (r *ActivityRepo) List(ctx context.Context, projectID string, limit int) ([]model.ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT id, project_id, type, content, created_at FROM activity_logs"
	args := []any{}
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ActivityLog{}
	for rows.Next() {
		var a model.ActivityLog
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Type, &a.Content, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Timestamp = a.Timestamp.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
