package pgcargo

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS branches (
  code TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT ''
)`,
		`
CREATE TABLE IF NOT EXISTS bookings (
  id BIGSERIAL PRIMARY KEY,
  lr_number TEXT NOT NULL,
  lr_seq BIGINT NOT NULL,
  origin_branch TEXT NOT NULL REFERENCES branches(code),
  destination_branch TEXT NOT NULL REFERENCES branches(code),
  sender JSONB NOT NULL,
  receiver JSONB NOT NULL,
  freight NUMERIC(14,2) NOT NULL CHECK (freight >= 0),
  handling NUMERIC(14,2) NOT NULL CHECK (handling >= 0),
  hamali NUMERIC(14,2) NOT NULL CHECK (hamali >= 0),
  total NUMERIC(14,2) GENERATED ALWAYS AS (freight + handling + hamali) STORED,
  payment_type TEXT NOT NULL CHECK (payment_type IN ('PAID', 'TO_PAY')),
  status TEXT NOT NULL CHECK (status IN ('BOOKED', 'IN_TRANSIT', 'ARRIVED', 'DELIVERED', 'CANCELLED')),
  version BIGINT NOT NULL DEFAULT 1,
  delivery_remark TEXT NULL,
  collected_by TEXT NULL,
  collected_by_mobile TEXT NULL,
  delivered_at TIMESTAMPTZ NULL,
  cancel_remark TEXT NULL,
  cancelled_at TIMESTAMPTZ NULL,
  created_by TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  CHECK (origin_branch <> destination_branch),
  CONSTRAINT uq_bookings_lr_number UNIQUE (lr_number),
  CONSTRAINT uq_bookings_lr_seq UNIQUE (origin_branch, lr_seq)
)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_origin_created ON bookings(origin_branch, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_destination_created ON bookings(destination_branch, created_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS booking_parcels (
  booking_id BIGINT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
  position INT NOT NULL,
  quantity INT NOT NULL CHECK (quantity > 0),
  category TEXT NOT NULL,
  rate NUMERIC(14,2) NOT NULL CHECK (rate >= 0),
  weight NUMERIC(14,3) NULL,
  PRIMARY KEY (booking_id, position)
)`,
		`
CREATE TABLE IF NOT EXISTS sequence_counters (
  branch TEXT NOT NULL,
  entity TEXT NOT NULL,
  field TEXT NOT NULL,
  last_value BIGINT NOT NULL CHECK (last_value > 0),
  updated_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (branch, entity, field)
)`,
		`
CREATE TABLE IF NOT EXISTS ledger_transactions (
  id BIGSERIAL PRIMARY KEY,
  booking_id BIGINT NOT NULL REFERENCES bookings(id) ON DELETE RESTRICT,
  branch TEXT NOT NULL REFERENCES branches(code),
  amount NUMERIC(14,2) NOT NULL CHECK (amount >= 0),
  type TEXT NOT NULL CHECK (type IN ('CREDIT', 'DEBIT')),
  reason TEXT NOT NULL,
  description TEXT NOT NULL,
  reverses BIGINT NULL REFERENCES ledger_transactions(id),
  created_by TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		// One delivery collection per booking and one reversal per posting,
		// even when two requests race past the service-level check.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_delivery_collection ON ledger_transactions(booking_id) WHERE reason = 'DELIVERY_COLLECTION'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_reverses ON ledger_transactions(reverses) WHERE reverses IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_branch_created ON ledger_transactions(branch, created_at)`,
		`CREATE OR REPLACE RULE ledger_no_update AS ON UPDATE TO ledger_transactions DO INSTEAD NOTHING`,
		`CREATE OR REPLACE RULE ledger_no_delete AS ON DELETE TO ledger_transactions DO INSTEAD NOTHING`,
		`
CREATE TABLE IF NOT EXISTS audit_log (
  id UUID PRIMARY KEY,
  actor TEXT NOT NULL,
  action TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  before JSONB NULL,
  after JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id, created_at DESC)`,
		`CREATE OR REPLACE RULE audit_no_update AS ON UPDATE TO audit_log DO INSTEAD NOTHING`,
		`CREATE OR REPLACE RULE audit_no_delete AS ON DELETE TO audit_log DO INSTEAD NOTHING`,
		`
CREATE TABLE IF NOT EXISTS outbox_events (
  id UUID PRIMARY KEY,
  topic TEXT NOT NULL,
  key TEXT NOT NULL,
  payload JSONB NOT NULL,
  attempts INT NOT NULL DEFAULT 0,
  next_attempt_at TIMESTAMPTZ NOT NULL,
  published_at TIMESTAMPTZ NULL,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox_events(next_attempt_at) WHERE published_at IS NULL`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
