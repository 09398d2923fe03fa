package pgcargo

import (
	"github.com/BearBump/CargoLedger/internal/storage"
	"github.com/jackc/pgx/v5"
)

// txRepo runs every storage.Tx method on one pgx transaction.
type txRepo struct {
	q pgx.Tx
}

var _ storage.Tx = (*txRepo)(nil)
