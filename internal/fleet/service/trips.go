package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/fleetwise/internal/fleet/domain"
	"github.com/example/fleetwise/internal/fleet/finance"
)

// CreateTrip validates the input, resolves every referenced entity and
// persists a new trip with a derived profit. Validation order: scalar
// presence and type checks first, then truck, driver and client resolution,
// each a distinct not-found cause.
func (s *Service) CreateTrip(ctx context.Context, input TripInput) (domain.Trip, error) {
	scalars, err := validateTripScalars(input)
	if err != nil {
		tripFailuresTotal.WithLabelValues("create", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}
	status := scalars.Status
	if status == "" {
		status = domain.StatusInProgress
	}

	truck, err := s.resolver.TruckByPlate(ctx, input.TruckPlate)
	if err != nil {
		tripFailuresTotal.WithLabelValues("create", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}
	driver, err := s.resolver.DriverByKey(ctx, input.DriverKey)
	if err != nil {
		tripFailuresTotal.WithLabelValues("create", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}
	client, err := s.resolver.ClientByKey(ctx, input.ClientKey)
	if err != nil {
		tripFailuresTotal.WithLabelValues("create", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}

	trip := domain.Trip{
		TruckID:        truck.ID,
		DriverID:       driver.ID,
		ClientID:       client.ID,
		Start:          input.Start,
		End:            input.End,
		Origin:         input.Origin,
		Destination:    input.Destination,
		Revenue:        scalars.Revenue,
		Cost:           scalars.Cost,
		Profit:         finance.Profit(scalars.Revenue, scalars.Cost),
		CompletionDate: input.CompletionDate,
		Status:         status,
	}
	created, err := s.store.CreateTrip(ctx, trip)
	if err != nil {
		tripFailuresTotal.WithLabelValues("create", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}

	tripsCreatedTotal.Inc()
	s.publish(ctx, domain.EventTripCreated, map[string]any{
		"trip_id": created.ID,
		"status":  string(created.Status),
	})
	s.logger.Info("trip created", zap.Int64("id", created.ID), zap.String("plate", truck.Plate))
	return created, nil
}

// EditTrip replaces every scalar and reference field of an existing trip,
// recomputing profit from revenue and cost. Status is the one field Edit does
// not change: the supplied value must be empty or match the stored status,
// finalization is the only transition path.
func (s *Service) EditTrip(ctx context.Context, id int64, input TripInput) (domain.Trip, error) {
	scalars, err := validateTripScalars(input)
	if err != nil {
		tripFailuresTotal.WithLabelValues("edit", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}

	existing, err := s.store.GetTripByID(ctx, id)
	if err != nil {
		tripFailuresTotal.WithLabelValues("edit", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}
	if scalars.Status != "" && scalars.Status != existing.Status {
		err := domain.StateConflict("trip", "status changes only through finalization")
		tripFailuresTotal.WithLabelValues("edit", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}

	truck, err := s.resolver.TruckByPlate(ctx, input.TruckPlate)
	if err != nil {
		tripFailuresTotal.WithLabelValues("edit", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}
	driver, err := s.resolver.DriverByKey(ctx, input.DriverKey)
	if err != nil {
		tripFailuresTotal.WithLabelValues("edit", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}
	client, err := s.resolver.ClientByKey(ctx, input.ClientKey)
	if err != nil {
		tripFailuresTotal.WithLabelValues("edit", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}

	updated := domain.Trip{
		ID:             existing.ID,
		TruckID:        truck.ID,
		DriverID:       driver.ID,
		ClientID:       client.ID,
		Start:          input.Start,
		End:            input.End,
		Origin:         input.Origin,
		Destination:    input.Destination,
		Revenue:        scalars.Revenue,
		Cost:           scalars.Cost,
		Profit:         finance.Profit(scalars.Revenue, scalars.Cost),
		CompletionDate: input.CompletionDate,
		Status:         existing.Status,
		Version:        existing.Version,
	}
	saved, err := s.store.UpdateTrip(ctx, updated)
	if err != nil {
		tripFailuresTotal.WithLabelValues("edit", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}

	s.publish(ctx, domain.EventTripUpdated, map[string]any{"trip_id": saved.ID})
	s.logger.Info("trip updated", zap.Int64("id", saved.ID))
	return saved, nil
}

// FinalizeTrip completes a trip: it fixes the final cost, derives profit from
// the stored revenue, stamps the completion date from the clock and moves the
// trip to Finished. Finished is terminal; a second finalization is rejected.
func (s *Service) FinalizeTrip(ctx context.Context, id int64, cost string) (domain.Trip, error) {
	finalCost, err := parseAmount(cost, "cost")
	if err != nil {
		tripFailuresTotal.WithLabelValues("finalize", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}

	finished, err := s.store.FinalizeTrip(ctx, id, finalCost, s.completionDate())
	if err != nil {
		tripFailuresTotal.WithLabelValues("finalize", string(domain.KindOf(err))).Inc()
		return domain.Trip{}, err
	}

	tripsFinalizedTotal.Inc()
	s.publish(ctx, domain.EventTripFinalized, map[string]any{
		"trip_id": finished.ID,
		"profit":  finished.Profit,
	})
	s.logger.Info("trip finalized", zap.Int64("id", finished.ID), zap.Float64("profit", finished.Profit))
	return finished, nil
}

// GetTrip retrieves a trip by identifier.
func (s *Service) GetTrip(ctx context.Context, id int64) (domain.Trip, error) {
	return s.store.GetTripByID(ctx, id)
}
