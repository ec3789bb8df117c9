package models

import "time"

// Queueable entity types. Only readings are captured in the field today;
// the column exists so the outbox survives adding more capture types.
const (
	EntityReading = "READING"
)

// Queue operations.
const (
	OpCreate = "CREATE"
)

// QueueEntry is one pending outbound mutation in the durable outbox.
// Entries are processed oldest-first with a lowest-attempts-first tie-break
// and removed only on confirmed success or explicit discard.
type QueueEntry struct {
	ID         int64
	EntityType string
	// EntityID is the local id of the entity the payload describes
	// (the reading's LocalID for READING entries).
	EntityID      string
	Operation     string
	Payload       []byte
	Attempts      int
	LastAttemptAt *time.Time
	CreatedAt     time.Time
}
