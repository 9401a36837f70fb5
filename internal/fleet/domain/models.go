package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TripStatus string

const (
	StatusInProgress TripStatus = "InProgress"
	StatusFinished   TripStatus = "Finished"
)

// ValidStatus reports whether s is one of the two accepted trip statuses.
func ValidStatus(s TripStatus) bool {
	return s == StatusInProgress || s == StatusFinished
}

var allowedTransitions = map[TripStatus][]TripStatus{
	StatusInProgress: {StatusFinished},
	StatusFinished:   {},
}

// CanTransitionTo reports whether the status may move to next. Finished is
// terminal, so re-finalizing a finished trip is never allowed.
func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Truck is a registered vehicle. Plates are stored uppercased and are unique.
type Truck struct {
	ID     int64  `json:"id"`
	Plate  string `json:"plate"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
}

// DefaultTruckStatus is applied when registration omits a status.
const DefaultTruckStatus = "Available"

// Driver names are unique. A driver cannot be deleted while trips reference it.
type Driver struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Client email is unique when present.
type Client struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// Trip links a truck, driver and client for one haul. Start, End and
// CompletionDate are opaque caller-supplied date strings; they are never
// parsed for calendar correctness. Profit is always derived from revenue and
// cost, never accepted from callers.
type Trip struct {
	ID             int64      `json:"id"`
	TruckID        int64      `json:"truck_id"`
	DriverID       int64      `json:"driver_id"`
	ClientID       int64      `json:"client_id"`
	Start          string     `json:"start"`
	End            string     `json:"end"`
	Origin         string     `json:"origin"`
	Destination    string     `json:"destination"`
	Revenue        float64    `json:"revenue"`
	Cost           float64    `json:"cost"`
	Profit         float64    `json:"profit"`
	CompletionDate string     `json:"completion_date,omitempty"`
	Status         TripStatus `json:"status"`
	Version        int64      `json:"-"`
}

type EventType string

const (
	EventTripCreated   EventType = "TripCreated"
	EventTripUpdated   EventType = "TripUpdated"
	EventTripFinalized EventType = "TripFinalized"
	EventDriverDeleted EventType = "DriverDeleted"
)

// Event describes a lifecycle change published to interested consumers.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
