package models

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	AuditBookingCreated       AuditAction = "booking.created"
	AuditBookingStatusChanged AuditAction = "booking.status_changed"
	AuditBookingUpdated       AuditAction = "booking.updated"
	AuditBookingPurged        AuditAction = "booking.purged"
	AuditLedgerReversed       AuditAction = "ledger.reversed"
	AuditCounterOverride      AuditAction = "counter.override"
)

const (
	EntityBooking = "booking"
	EntityLedger  = "ledger_transaction"
	EntityCounter = "sequence_counter"
)

// AuditLogEntry is append-only.
type AuditLogEntry struct {
	ID         string          `json:"id"`
	Actor      string          `json:"actor"`
	Action     AuditAction     `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type AuditFilter struct {
	EntityType *string
	EntityID   *string
	Actor      *string
	Limit      int
}
