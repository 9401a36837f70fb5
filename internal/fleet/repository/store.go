// Package repository implements the durable entity store for trucks,
// drivers, clients and trips. Uniqueness and the finalize transition are
// enforced inside the store so that concurrent writers cannot race past
// application-level pre-checks.
package repository

import (
	"context"

	"github.com/example/fleetwise/internal/fleet/domain"
)

// TripFilter narrows joined trip views. Zero values match everything.
type TripFilter struct {
	Status  domain.TripStatus
	TruckID int64
}

// TripView is a trip row joined with the names of the entities it references.
type TripView struct {
	TripID         int64             `json:"id"`
	Plate          string            `json:"plate"`
	DriverName     string            `json:"driver_name"`
	ClientName     string            `json:"client_name"`
	Start          string            `json:"start"`
	End            string            `json:"end"`
	Origin         string            `json:"origin"`
	Destination    string            `json:"destination"`
	Revenue        float64           `json:"revenue"`
	Cost           float64           `json:"cost"`
	Profit         float64           `json:"profit"`
	CompletionDate string            `json:"completion_date,omitempty"`
	Status         domain.TripStatus `json:"status"`
}

// EntityStore is the storage contract consumed by the lifecycle engine, the
// resolver and the projector. Implementations must serialize conflicting
// writes to the same entity; FinalizeTrip must apply the
// InProgress -> Finished transition at most once per trip.
type EntityStore interface {
	CreateTruck(ctx context.Context, truck domain.Truck) (domain.Truck, error)
	GetTruckByPlate(ctx context.Context, plate string) (domain.Truck, error)
	GetTruckByID(ctx context.Context, id int64) (domain.Truck, error)
	ListTrucks(ctx context.Context) ([]domain.Truck, error)

	CreateDriver(ctx context.Context, driver domain.Driver) (domain.Driver, error)
	GetDriverByID(ctx context.Context, id int64) (domain.Driver, error)
	ListDrivers(ctx context.Context) ([]domain.Driver, error)
	// DeleteDriver re-checks referencing trips atomically with the delete;
	// the engine's pre-check is the primary guard, this is the backstop.
	DeleteDriver(ctx context.Context, id int64) error
	CountTripsByDriver(ctx context.Context, driverID int64) (int64, error)

	CreateClient(ctx context.Context, client domain.Client) (domain.Client, error)
	GetClientByID(ctx context.Context, id int64) (domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)

	// CreateTrip and UpdateTrip re-verify referenced entities at write time.
	CreateTrip(ctx context.Context, trip domain.Trip) (domain.Trip, error)
	GetTripByID(ctx context.Context, id int64) (domain.Trip, error)
	UpdateTrip(ctx context.Context, trip domain.Trip) (domain.Trip, error)
	// FinalizeTrip atomically sets cost, derived profit, completion date and
	// the Finished status, only while the trip is still InProgress.
	FinalizeTrip(ctx context.Context, id int64, cost float64, completionDate string) (domain.Trip, error)
	ListTripViews(ctx context.Context, filter TripFilter) ([]TripView, error)
}
