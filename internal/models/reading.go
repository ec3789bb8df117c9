package models

import (
	"database/sql"
	"time"
)

// ReadingStatus tracks a reading through the client-side state machine.
type ReadingStatus string

const (
	// ReadingLocalOnly is the initial status of a field-captured reading
	// that has not yet been transmitted.
	ReadingLocalOnly ReadingStatus = "LOCAL_ONLY"
	// ReadingSubmitted means the reading reached the server and awaits a
	// review decision.
	ReadingSubmitted ReadingStatus = "SUBMITTED"
	// ReadingAccepted is terminal: the server approved the value.
	ReadingAccepted ReadingStatus = "ACCEPTED"
	// ReadingRejected is terminal: the server refused the value
	// (validation failure, out-of-window submission).
	ReadingRejected ReadingStatus = "REJECTED"
	// ReadingConflict means the server holds a differing authoritative
	// value; an unresolved Conflict row exists for the pair.
	ReadingConflict ReadingStatus = "CONFLICT"
)

// ReadingOrigin records where a local row came from. Origin and status
// jointly gate whether incoming sync data may overwrite the row.
type ReadingOrigin string

const (
	OriginLocalCapture ReadingOrigin = "LOCAL_CAPTURE"
	OriginServerSync   ReadingOrigin = "SERVER_SYNC"
)

// Pending reports whether the reading represents in-flight field work that
// the server-wins merge must not silently overwrite.
func (s ReadingStatus) Pending() bool {
	return s == ReadingLocalOnly || s == ReadingConflict
}

// Reading is one captured or synced meter value for an (assignment, cycle)
// pair.
//
// Identity is two-phase: LocalID is a device-generated UUID assigned at
// capture and never reused; ServerID is populated atomically once the server
// acknowledges the submission. Server-synced rows carry both from the start.
type Reading struct {
	LocalID      string
	ServerID     sql.NullInt64
	AssignmentID int64
	CycleID      int64
	Value        Volume
	SubmittedAt  time.Time
	SubmittedBy  string
	Notes        string
	Origin       ReadingOrigin
	Status       ReadingStatus
	UpdatedAt    time.Time
}
