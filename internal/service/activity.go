package service

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/agency-portal/internal/model"
    q "github.com/iliyamo/agency-portal/internal/queue"
    "github.com/iliyamo/agency-portal/internal/repository"
)

// ActivityRecorder writes ActivityLog entries and forwards them to the
// broker once they are durable.
type ActivityRecorder struct {
    Repo *repository.ActivityRepo
    Pub  Publisher
}

// NewActivityRecorder returns a recorder; a nil publisher means NopPublisher.
func NewActivityRecorder(repo *repository.ActivityRepo, pub Publisher) *ActivityRecorder {
    if pub == nil {
        pub = NopPublisher{}
    }
    return &ActivityRecorder{Repo: repo, Pub: pub}
}

// Record stores one entry and publishes it.
func (r *ActivityRecorder) Record(ctx context.Context, actor model.User, projectID, kind, content string) (model.ActivityLog, error) {
    a := model.ActivityLog{ProjectID: projectID, Type: kind, Content: content}
    if err := r.Repo.Create(ctx, &a); err != nil {
        return a, err
    }
    r.Publish(ctx, actor, a)
    return a, nil
}

// RecordTx stores one entry inside tx.  The caller publishes the returned
// entry after the commit.
func (r *ActivityRecorder) RecordTx(ctx context.Context, tx *sql.Tx, projectID, kind, content string) (model.ActivityLog, error) {
    a := model.ActivityLog{ProjectID: projectID, Type: kind, Content: content}
    err := r.Repo.CreateTx(ctx, tx, &a)
    return a, err
}

// Publish forwards committed entries.  Failures are logged by the publisher
// and otherwise ignored: the database row is the source of truth.
func (r *ActivityRecorder) Publish(ctx context.Context, actor model.User, entries ...model.ActivityLog) {
    ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
    defer cancel()
    for _, a := range entries {
        _ = r.Pub.PublishActivity(ctx, q.NewActivityEvent(a, actor))
    }
}
