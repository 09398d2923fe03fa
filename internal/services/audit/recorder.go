package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Store interface {
	InsertAudit(ctx context.Context, e *models.AuditLogEntry) error
}

// Recorder appends audit entries through the same store handle as the
// mutation, so a failed append fails (and rolls back) the mutation too.
type Recorder struct {
	st    Store
	now   func() time.Time
	newID func() string
}

func NewRecorder(st Store) *Recorder {
	return &Recorder{
		st:    st,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

func (r *Recorder) Record(ctx context.Context, actor string, action models.AuditAction, entityType, entityID string, before, after any) error {
	if actor == "" {
		return errors.New("audit: actor is required")
	}
	if action == "" || entityType == "" || entityID == "" {
		return errors.New("audit: action and entity are required")
	}
	b, err := snapshot(before)
	if err != nil {
		return errors.Wrap(err, "audit: marshal before")
	}
	a, err := snapshot(after)
	if err != nil {
		return errors.Wrap(err, "audit: marshal after")
	}
	e := &models.AuditLogEntry{
		ID:         r.newID(),
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     b,
		After:      a,
		CreatedAt:  r.now(),
	}
	if err := r.st.InsertAudit(ctx, e); err != nil {
		return errors.Wrap(err, "audit: insert")
	}
	return nil
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
