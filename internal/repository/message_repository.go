package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/agency-portal/internal/model"
)

// MessageRepo stores the append-only project threads. There is no update or
// delete operation.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

// Create appends m and fills in its id and timestamp.
func (r *MessageRepo) Create(ctx context.Context, m *model.Message) error {
	return r.create(ctx, r.db, m)
}

// CreateTx is Create inside tx.
func (r *MessageRepo) CreateTx(ctx context.Context, tx *sql.Tx, m *model.Message) error {
	return r.create(ctx, tx, m)
}

func (r *MessageRepo) create(ctx context.Context, q dbtx, m *model.Message) error {
	m.ID = uuid.NewString()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		"INSERT INTO messages (id, project_id, sender_id, sender_name, sender_role, text, is_system, created_at) VALUES (?,?,?,?,?,?,?,?)",
		m.ID, m.ProjectID, m.SenderID, m.SenderName, m.SenderRole, m.Text, m.IsSystem, m.CreatedAt)
	return err
}

// ListByProject returns a project's thread oldest-first.
func (r *MessageRepo) ListByProject(ctx context.Context, projectID string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, project_id, sender_id, sender_name, sender_role, text, is_system, created_at FROM messages WHERE project_id = ? ORDER BY created_at, id",
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.SenderName, &m.SenderRole, &m.Text, &m.IsSystem, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
