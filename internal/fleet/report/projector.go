// Package report builds the read-only joined views over trips. Nothing here
// mutates; every operation projects the store's joined trip rows.
package report

import (
	"context"

	"github.com/example/fleetwise/internal/fleet/domain"
	"github.com/example/fleetwise/internal/fleet/finance"
	"github.com/example/fleetwise/internal/fleet/repository"
	"github.com/example/fleetwise/internal/fleet/resolve"
)

// Projector answers the fleet's reporting queries.
type Projector struct {
	store      repository.EntityStore
	resolver   *resolve.Resolver
	classifier finance.Classifier
}

// NewProjector constructs a Projector with the given productivity classifier.
func NewProjector(store repository.EntityStore, resolver *resolve.Resolver, classifier finance.Classifier) *Projector {
	return &Projector{store: store, resolver: resolver, classifier: classifier}
}

// TruckTrips groups a truck's trips under its plate.
type TruckTrips struct {
	Plate string                `json:"plate"`
	Trips []repository.TripView `json:"trips"`
}

// TripsByTruck resolves the plate and returns every trip for that truck.
func (p *Projector) TripsByTruck(ctx context.Context, plate string) (TruckTrips, error) {
	truck, err := p.resolver.TruckByPlate(ctx, plate)
	if err != nil {
		return TruckTrips{}, err
	}
	views, err := p.store.ListTripViews(ctx, repository.TripFilter{TruckID: truck.ID})
	if err != nil {
		return TruckTrips{}, err
	}
	return TruckTrips{Plate: truck.Plate, Trips: views}, nil
}

// AllTrips lists every trip regardless of status, joined with entity names.
func (p *Projector) AllTrips(ctx context.Context) ([]repository.TripView, error) {
	return p.store.ListTripViews(ctx, repository.TripFilter{})
}

// ActiveTrips lists trips still in progress, joined with entity names.
func (p *Projector) ActiveTrips(ctx context.Context) ([]repository.TripView, error) {
	return p.store.ListTripViews(ctx, repository.TripFilter{Status: domain.StatusInProgress})
}

// FinishedTrips lists completed trips, joined with entity names.
func (p *Projector) FinishedTrips(ctx context.Context) ([]repository.TripView, error) {
	return p.store.ListTripViews(ctx, repository.TripFilter{Status: domain.StatusFinished})
}

// SituationRow is the dispatcher view of one truck currently on the road.
type SituationRow struct {
	Plate       string            `json:"plate"`
	TripID      int64             `json:"trip_id"`
	Start       string            `json:"start"`
	Status      domain.TripStatus `json:"status"`
	Origin      string            `json:"origin"`
	Destination string            `json:"destination"`
	DriverName  string            `json:"driver_name"`
}

// CurrentSituation projects the active trips into the dispatcher view.
func (p *Projector) CurrentSituation(ctx context.Context) ([]SituationRow, error) {
	views, err := p.store.ListTripViews(ctx, repository.TripFilter{Status: domain.StatusInProgress})
	if err != nil {
		return nil, err
	}
	rows := make([]SituationRow, 0, len(views))
	for _, view := range views {
		rows = append(rows, SituationRow{
			Plate:       view.Plate,
			TripID:      view.TripID,
			Start:       view.Start,
			Status:      view.Status,
			Origin:      view.Origin,
			Destination: view.Destination,
			DriverName:  view.DriverName,
		})
	}
	return rows, nil
}

// ProductivityRow labels one trip's financial outcome.
type ProductivityRow struct {
	Plate          string  `json:"plate"`
	Profit         float64 `json:"profit"`
	Classification string  `json:"classification"`
	CompletionDate string  `json:"completion_date,omitempty"`
	DriverName     string  `json:"driver_name"`
	Origin         string  `json:"origin"`
	Destination    string  `json:"destination"`
}

// Productivity classifies every trip against the profit threshold.
func (p *Projector) Productivity(ctx context.Context) ([]ProductivityRow, error) {
	views, err := p.store.ListTripViews(ctx, repository.TripFilter{})
	if err != nil {
		return nil, err
	}
	rows := make([]ProductivityRow, 0, len(views))
	for _, view := range views {
		rows = append(rows, ProductivityRow{
			Plate:          view.Plate,
			Profit:         view.Profit,
			Classification: p.classifier.Classify(view.Profit),
			CompletionDate: view.CompletionDate,
			DriverName:     view.DriverName,
			Origin:         view.Origin,
			Destination:    view.Destination,
		})
	}
	return rows, nil
}
