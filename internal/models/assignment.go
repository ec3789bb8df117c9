package models

import "time"

// AssignmentStatus is the lifecycle state of a meter assignment. The server
// owns transitions; DEACTIVATED tombstones flip local rows to INACTIVE.
type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "ACTIVE"
	AssignmentInactive AssignmentStatus = "INACTIVE"
)

// Assignment binds a meter to a client for a period. The client treats
// assignments as read-mostly reference data refreshed by sync.
type Assignment struct {
	ID        int64
	MeterID   int64
	ClientID  int64
	StartDate time.Time
	EndDate   *time.Time
	Status    AssignmentStatus
	// Baseline is the opening reading recorded when the meter was
	// installed, when known. Shown to the collector during capture.
	Baseline  *Volume
	UpdatedAt time.Time
}
