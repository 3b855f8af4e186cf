package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/agency-portal/internal/model"
)

// ProjectRepo provides access to the projects table. A project belongs to
// exactly one client; admins see every project.
type ProjectRepo struct {
	db *sql.DB
}

// NewProjectRepo returns a new ProjectRepo bound to the given database.
func NewProjectRepo(db *sql.DB) *ProjectRepo { return &ProjectRepo{db: db} }

// DB exposes the handle so handlers can open a transaction spanning several
// repositories.
func (r *ProjectRepo) DB() *sql.DB { return r.db }

const projectColumns = "p.id, p.client_id, p.title, p.description, p.stage, p.progress_percent, p.status, p.milestone_date, p.created_at, p.updated_at"

// CreateTx inserts p inside tx. ID and timestamps are filled in when empty.
func (r *ProjectRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt
	const q = `INSERT INTO projects (id, client_id, title, description, stage, progress_percent, status, milestone_date, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, p.ID, p.ClientID.ID(), p.Title, p.Description, string(p.Stage),
		p.ProgressPercent, string(p.Status), nullTime(p.MilestoneDate), p.CreatedAt, p.UpdatedAt)
	return err
}

// GetByID returns the project with clientId as a bare reference.
func (r *ProjectRepo) GetByID(ctx context.Context, id string) (model.Project, error) {
	return r.getByID(ctx, r.db, id)
}

// GetByIDTx is GetByID inside tx; the row is read again after an update.
func (r *ProjectRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (model.Project, error) {
	return r.getByID(ctx, tx, id)
}

func (r *ProjectRepo) getByID(ctx context.Context, q dbtx, id string) (model.Project, error) {
	row := q.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects p WHERE p.id = ?", id)
	p, err := scanProject(row, nil)
	return p, notFound(err)
}

// ListByClient returns a client's projects, newest first, with clientId as
// a bare reference.
func (r *ProjectRepo) ListByClient(ctx context.Context, clientID string) ([]model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+projectColumns+" FROM projects p WHERE p.client_id = ? ORDER BY p.created_at DESC, p.id", clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListAll returns every project, newest first, with the owning client
// embedded as a partial user.
func (r *ProjectRepo) ListAll(ctx context.Context) ([]model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+projectColumns+", u.name, u.email, u.company FROM projects p JOIN users u ON u.id = p.client_id ORDER BY p.created_at DESC, p.id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Project{}
	for rows.Next() {
		var s model.ClientSummary
		p, err := scanProject(rows, &s)
		if err != nil {
			return nil, err
		}
		s.ID = p.ClientID.ID()
		p.ClientID = model.ClientEmbedded(s)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListOpenIDs returns the ids of every project that is not completed.
func (r *ProjectRepo) ListOpenIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM projects WHERE status <> ? ORDER BY created_at DESC, id", string(model.StatusCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateStateTx writes stage, progress and status in one statement.
func (r *ProjectRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, id string, stage model.Stage, progress int, status model.Status) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE projects SET stage = ?, progress_percent = ?, status = ?, updated_at = ? WHERE id = ?",
		string(stage), progress, string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProject(s rowScanner, client *model.ClientSummary) (model.Project, error) {
	var (
		p         model.Project
		clientID  string
		stage     string
		status    string
		milestone sql.NullTime
	)
	dest := []any{&p.ID, &clientID, &p.Title, &p.Description, &stage, &p.ProgressPercent, &status,
		&milestone, &p.CreatedAt, &p.UpdatedAt}
	if client != nil {
		dest = append(dest, &client.Name, &client.Email, &client.Company)
	}
	if err := s.Scan(dest...); err != nil {
		return model.Project{}, err
	}
	p.ClientID = model.ClientReference(clientID)
	p.Stage = model.Stage(stage)
	p.Status = model.Status(status)
	if milestone.Valid {
		t := milestone.Time.UTC()
		p.MilestoneDate = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
