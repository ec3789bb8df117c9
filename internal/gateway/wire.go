package gateway

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmaganga/majisync/internal/models"
)

// Wire DTOs mirroring the server's mobile API schemas. Kept separate from the
// domain models so field renames on either side stay a one-file change.

// isoTime tolerates the server's timestamp variants: RFC 3339 with offset and
// naive ISO 8601 without one (treated as UTC).
type isoTime struct {
	time.Time
}

func (t *isoTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func (t isoTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

type wireClient struct {
	ID        int64   `json:"id"`
	FullName  string  `json:"full_name"`
	Phone     string  `json:"phone"`
	Zone      string  `json:"zone"`
	UpdatedAt isoTime `json:"updated_at"`
}

type wireMeter struct {
	ID        int64   `json:"id"`
	Serial    string  `json:"serial_number"`
	Model     string  `json:"model"`
	UpdatedAt isoTime `json:"updated_at"`
}

type wireAssignment struct {
	ID        int64          `json:"id"`
	MeterID   int64          `json:"meter_id"`
	ClientID  int64          `json:"client_id"`
	StartDate isoTime        `json:"start_date"`
	EndDate   *isoTime       `json:"end_date"`
	Status    string         `json:"status"`
	Baseline  *models.Volume `json:"baseline_reading"`
	UpdatedAt isoTime        `json:"updated_at"`
}

type wireCycle struct {
	ID         int64   `json:"id"`
	StartDate  isoTime `json:"start_date"`
	EndDate    isoTime `json:"end_date"`
	TargetDate isoTime `json:"target_date"`
	Status     string  `json:"status"`
	UpdatedAt  isoTime `json:"updated_at"`
}

type wireReading struct {
	ID           int64         `json:"id"`
	AssignmentID int64         `json:"meter_assignment_id"`
	CycleID      int64         `json:"cycle_id"`
	Value        models.Volume `json:"absolute_value"`
	SubmittedAt  isoTime       `json:"submitted_at"`
	SubmittedBy  string        `json:"submitted_by"`
	Notes        string        `json:"submission_notes"`
	Approved     *bool         `json:"approved"`
}

type wireTombstone struct {
	EntityType string  `json:"entity_type"`
	EntityID   int64   `json:"entity_id"`
	Action     string  `json:"action"`
	Timestamp  isoTime `json:"timestamp"`
}

type snapshotResponse struct {
	Clients     []wireClient     `json:"clients"`
	Meters      []wireMeter      `json:"meters"`
	Assignments []wireAssignment `json:"assignments"`
	Cycles      []wireCycle      `json:"cycles"`
	Readings    []wireReading    `json:"readings"`
	LastSync    isoTime          `json:"last_sync"`
}

type updatesResponse struct {
	snapshotResponse
	Tombstones []wireTombstone `json:"tombstones"`
}

type readingResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// conflictResponse is the 409 body: a FastAPI error envelope with the
// conflict detail nested under detail.conflict. The server assigns no
// conflict id of its own here; the contested reading's id is the only
// server-side handle.
type conflictResponse struct {
	Detail struct {
		Message  string `json:"message"`
		Conflict struct {
			Reason        string       `json:"conflict_reason"`
			ServerReading *wireReading `json:"server_reading"`
		} `json:"conflict"`
	} `json:"detail"`
}

func mapClients(in []wireClient) []models.Client {
	out := make([]models.Client, 0, len(in))
	for _, c := range in {
		out = append(out, models.Client{
			ID: c.ID, FullName: c.FullName, Phone: c.Phone, Zone: c.Zone,
			UpdatedAt: c.UpdatedAt.Time,
		})
	}
	return out
}

func mapMeters(in []wireMeter) []models.Meter {
	out := make([]models.Meter, 0, len(in))
	for _, m := range in {
		out = append(out, models.Meter{
			ID: m.ID, Serial: m.Serial, Model: m.Model, UpdatedAt: m.UpdatedAt.Time,
		})
	}
	return out
}

func mapAssignments(in []wireAssignment) []models.Assignment {
	out := make([]models.Assignment, 0, len(in))
	for _, a := range in {
		item := models.Assignment{
			ID:        a.ID,
			MeterID:   a.MeterID,
			ClientID:  a.ClientID,
			StartDate: a.StartDate.Time,
			Status:    models.AssignmentStatus(a.Status),
			Baseline:  a.Baseline,
			UpdatedAt: a.UpdatedAt.Time,
		}
		if a.EndDate != nil {
			d := a.EndDate.Time
			item.EndDate = &d
		}
		out = append(out, item)
	}
	return out
}

func mapCycles(in []wireCycle) []models.Cycle {
	out := make([]models.Cycle, 0, len(in))
	for _, c := range in {
		out = append(out, models.Cycle{
			ID:         c.ID,
			StartDate:  c.StartDate.Time,
			EndDate:    c.EndDate.Time,
			TargetDate: c.TargetDate.Time,
			Status:     models.CycleStatus(c.Status),
			UpdatedAt:  c.UpdatedAt.Time,
		})
	}
	return out
}

func mapReadings(in []wireReading) []models.Reading {
	out := make([]models.Reading, 0, len(in))
	for _, r := range in {
		out = append(out, mapReading(r))
	}
	return out
}

// mapReading converts a server reading to a local SERVER_SYNC row. The mobile
// API publishes approved readings, so an absent approved flag means ACCEPTED;
// an explicit approved=false (a not-yet-reviewed duplicate in a 409 snapshot)
// maps to SUBMITTED.
func mapReading(r wireReading) models.Reading {
	status := models.ReadingAccepted
	if r.Approved != nil && !*r.Approved {
		status = models.ReadingSubmitted
	}
	return models.Reading{
		ServerID:     sql.NullInt64{Int64: r.ID, Valid: true},
		AssignmentID: r.AssignmentID,
		CycleID:      r.CycleID,
		Value:        r.Value,
		SubmittedAt:  r.SubmittedAt.Time,
		SubmittedBy:  r.SubmittedBy,
		Notes:        r.Notes,
		Origin:       models.OriginServerSync,
		Status:       status,
		UpdatedAt:    r.SubmittedAt.Time,
	}
}
