package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/agency-portal/internal/model"
)

// FormRepo stores submissions of the public marketing forms.
type FormRepo struct {
	db *sql.DB
}

func NewFormRepo(db *sql.DB) *FormRepo { return &FormRepo{db: db} }

// SaveContact stores a contact request.
func (r *FormRepo) SaveContact(ctx context.Context, c *model.ContactRequest) error {
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO contact_requests (id, name, email, service, message, created_at) VALUES (?,?,?,?,?,?)",
		c.ID, c.Name, strings.ToLower(c.Email), c.Service, c.Message, c.CreatedAt)
	return err
}

// SaveWorkRequest stores a work-with-us request.
func (r *FormRepo) SaveWorkRequest(ctx context.Context, w *model.WorkRequest) error {
	w.ID = uuid.NewString()
	w.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO work_requests (id, name, email, phone, company, budget, description, created_at) VALUES (?,?,?,?,?,?,?,?)",
		w.ID, w.Name, strings.ToLower(w.Email), w.Phone, w.Company, w.Budget, w.Description, w.CreatedAt)
	return err
}

// Subscribe stores email. Subscribing twice is not an error; created is
// false for an address that was already on the list.
func (r *FormRepo) Subscribe(ctx context.Context, email string) (created bool, err error) {
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO subscribers (email, created_at) VALUES (?,?)",
		strings.ToLower(strings.TrimSpace(email)), time.Now().UTC())
	if isDuplicate(err) {
		return false, nil
	}
	return err == nil, err
}
