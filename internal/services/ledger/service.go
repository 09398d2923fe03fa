package ledger

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/access"
	"github.com/BearBump/CargoLedger/internal/services/audit"
	"github.com/BearBump/CargoLedger/internal/storage"
	"github.com/pkg/errors"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// Service is the read side of the ledger plus administrative reversals.
// Postings for lifecycle events are made by Poster inside the booking transaction.
type Service struct {
	st       storage.Store
	resolver *access.Resolver
}

func NewService(st storage.Store) *Service {
	return &Service{st: st, resolver: access.New(st)}
}

type Statement struct {
	Transactions []*models.LedgerTransaction `json:"transactions"`
	Balances     []models.BranchBalance      `json:"balances"`
}

// Statement lists postings visible to u. Balances cover every matching posting,
// not only the returned page.
func (s *Service) Statement(ctx context.Context, u *models.User, f models.LedgerFilter) (*Statement, error) {
	f, err := s.resolver.ScopeLedger(ctx, u, f)
	if err != nil {
		return nil, err
	}
	all := f
	all.Limit, all.Offset = 0, 0
	every, err := s.st.ListLedger(ctx, all)
	if err != nil {
		return nil, errors.Wrap(err, "list ledger")
	}

	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	page := every
	if f.Offset > 0 {
		if f.Offset >= len(page) {
			page = nil
		} else {
			page = page[f.Offset:]
		}
	}
	if len(page) > f.Limit {
		page = page[:f.Limit]
	}
	if page == nil {
		page = []*models.LedgerTransaction{}
	}
	bal := models.Balances(every)
	if bal == nil {
		bal = []models.BranchBalance{}
	}
	return &Statement{Transactions: page, Balances: bal}, nil
}

// Reverse posts the offsetting entry for transaction id. Super admin only.
func (s *Service) Reverse(ctx context.Context, u *models.User, id uint64, note string) (*models.LedgerTransaction, error) {
	if err := s.resolver.RequireSuperAdmin(u); err != nil {
		return nil, err
	}
	var out *models.LedgerTransaction
	err := s.st.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		orig, err := tx.GetLedgerTransaction(ctx, id)
		if err != nil {
			return err
		}
		rev, err := NewPoster(tx).PostOffset(ctx, orig, u.ID, note)
		if err != nil {
			return err
		}
		if err := audit.NewRecorder(tx).Record(ctx, u.ID, models.AuditLedgerReversed, models.EntityLedger, strconv.FormatUint(id, 10), orig, rev); err != nil {
			return err
		}
		out = rev
		return nil
	})
	if err != nil {
		slog.Warn("ledger reversal rejected", "transaction_id", id, "actor", u.ID, "error", err.Error())
		return nil, err
	}
	slog.Info("ledger transaction reversed", "transaction_id", id, "reversal_id", out.ID, "actor", u.ID)
	return out, nil
}
