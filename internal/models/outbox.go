package models

import (
	"encoding/json"
	"time"
)

// OutboxEvent is written in the same transaction as the mutation it describes
// and later handed to the broker by the relay.
type OutboxEvent struct {
	ID            string
	Topic         string
	Key           string
	Payload       json.RawMessage
	Attempts      int32
	NextAttemptAt time.Time
	PublishedAt   *time.Time
	LastError     *string
	CreatedAt     time.Time
}
