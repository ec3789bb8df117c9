package models

import "time"

// CycleStatus is the lifecycle state of a billing cycle as published by the
// server. The client never advances a cycle itself; CLOSED and ARCHIVED
// arrive as tombstones and make the cycle read-only locally.
type CycleStatus string

const (
	CycleOpen          CycleStatus = "OPEN"
	CyclePendingReview CycleStatus = "PENDING_REVIEW"
	CycleApproved      CycleStatus = "APPROVED"
	CycleClosed        CycleStatus = "CLOSED"
	CycleArchived      CycleStatus = "ARCHIVED"
)

// Cycle is a billing period. TargetDate is the submission deadline and the
// ordering key for the local retention window.
type Cycle struct {
	ID         int64
	StartDate  time.Time
	EndDate    time.Time
	TargetDate time.Time
	Status     CycleStatus
	UpdatedAt  time.Time
}

// AcceptsReadings reports whether field capture into this cycle is allowed.
func (c *Cycle) AcceptsReadings() bool {
	return c.Status == CycleOpen
}
