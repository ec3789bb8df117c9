package models

import "time"

// Client is a billed customer, reference data owned by the server.
type Client struct {
	ID        int64
	FullName  string
	Phone     string
	Zone      string
	UpdatedAt time.Time
}

// Meter is a physical water meter, reference data owned by the server.
type Meter struct {
	ID        int64
	Serial    string
	Model     string
	UpdatedAt time.Time
}
