// Package admin holds super-admin maintenance operations: counter overrides
// and audit trail queries.
package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/access"
	"github.com/BearBump/CargoLedger/internal/services/audit"
	"github.com/BearBump/CargoLedger/internal/storage"
	"github.com/pkg/errors"
)

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 500
)

type Service struct {
	st       storage.Store
	resolver *access.Resolver
}

func New(st storage.Store) *Service {
	return &Service{st: st, resolver: access.New(st)}
}

type counterSnapshot struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

// OverrideCounter moves a sequence forward to value. Counters never go back:
// a value at or below the last issued number is rejected.
func (s *Service) OverrideCounter(ctx context.Context, u *models.User, key models.SequenceKey, value int64) (int64, error) {
	if err := s.resolver.RequireSuperAdmin(u); err != nil {
		return 0, err
	}
	v := models.NewValidationError()
	if key.Branch == "" {
		v.Add("branch", "required")
	}
	if key.Entity == "" {
		v.Add("entity", "required")
	}
	if key.Field == "" {
		v.Add("field", "required")
	}
	if value <= 0 {
		v.Add("value", "must be positive")
	}
	if err := v.OrNil(); err != nil {
		return 0, err
	}

	var prev int64
	err := s.st.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		ok, err := tx.BranchExists(ctx, key.Branch)
		if err != nil {
			return errors.Wrap(err, "check branch")
		}
		if !ok {
			bad := models.NewValidationError()
			bad.Add("branch", fmt.Sprintf("unknown branch %q", key.Branch))
			return bad
		}
		cur, err := tx.GetSequence(ctx, key)
		if err != nil {
			return errors.Wrap(err, "read counter")
		}
		if value <= cur {
			bad := models.NewValidationError()
			bad.Add("value", fmt.Sprintf("must be greater than the last issued value %d", cur))
			return bad
		}
		if err := tx.SetSequence(ctx, key, value); err != nil {
			return errors.Wrap(err, "set counter")
		}
		prev = cur
		return audit.NewRecorder(tx).Record(ctx, u.ID, models.AuditCounterOverride, models.EntityCounter, key.String(),
			counterSnapshot{Key: key.String(), Value: cur},
			counterSnapshot{Key: key.String(), Value: value})
	})
	if err != nil {
		slog.Warn("counter override rejected", "key", key.String(), "actor", u.ID, "error", err.Error())
		return 0, err
	}
	slog.Info("counter overridden", "key", key.String(), "from", prev, "to", value, "actor", u.ID)
	return prev, nil
}

func (s *Service) Audit(ctx context.Context, u *models.User, f models.AuditFilter) ([]*models.AuditLogEntry, error) {
	if err := s.resolver.RequireSuperAdmin(u); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	if f.Limit > MaxAuditLimit {
		f.Limit = MaxAuditLimit
	}
	out, err := s.st.ListAudit(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list audit")
	}
	if out == nil {
		out = []*models.AuditLogEntry{}
	}
	return out, nil
}
