package models

import "time"

// Conflict records a divergence between a locally captured value and the
// authoritative server value for one (assignment, cycle) pair. Conflicts are
// created only by the sync engine and cleared only by explicit operator
// resolution; routine sync never deletes them.
type Conflict struct {
	ID           int64
	AssignmentID int64
	CycleID      int64
	// ReadingLocalID points at the local reading held in CONFLICT status.
	ReadingLocalID string
	LocalValue     Volume
	ServerValue    Volume
	// ServerReadingID is the server's id for the contested reading, when
	// known. It is the reference used when acknowledging resolutions
	// upstream and is adopted as the local reading's server id on
	// accept-server.
	ServerReadingID *int64
	Reason           string
	Resolved         bool
	ResolutionNote   string
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}
