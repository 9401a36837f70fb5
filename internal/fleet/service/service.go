// Package service implements the trip lifecycle engine and the entity
// registration operations it depends on.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/fleetwise/internal/fleet/domain"
	"github.com/example/fleetwise/internal/fleet/repository"
	"github.com/example/fleetwise/internal/fleet/resolve"
)

// Service coordinates fleet operations between handlers and the entity store.
type Service struct {
	store    repository.EntityStore
	resolver *resolve.Resolver
	events   domain.EventPublisher
	clock    domain.Clock
	logger   *zap.Logger
}

// New constructs a Service with the required collaborators. A nil clock
// falls back to the system clock; a nil logger is replaced by a no-op one.
func New(store repository.EntityStore, resolver *resolve.Resolver, events domain.EventPublisher, clock domain.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, resolver: resolver, events: events, clock: clock, logger: logger}
}

func (s *Service) publish(ctx context.Context, eventType domain.EventType, payload map[string]any) {
	if s.events == nil {
		return
	}
	event := domain.Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: s.clock.Now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", string(eventType)), zap.Error(err))
	}
}

// TruckInput is the registration payload for a truck.
type TruckInput struct {
	Plate  string
	Name   string
	Status string
}

// RegisterTruck stores a truck with an uppercased plate. The plate is unique;
// status defaults to Available.
func (s *Service) RegisterTruck(ctx context.Context, input TruckInput) (domain.Truck, error) {
	plate := resolve.NormalizePlate(input.Plate)
	if plate == "" {
		return domain.Truck{}, domain.Invalid("plate", "plate is required")
	}
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = domain.DefaultTruckStatus
	}
	truck, err := s.store.CreateTruck(ctx, domain.Truck{Plate: plate, Name: strings.TrimSpace(input.Name), Status: status})
	if err != nil {
		return domain.Truck{}, err
	}
	s.logger.Info("truck registered", zap.Int64("id", truck.ID), zap.String("plate", truck.Plate))
	return truck, nil
}

// ListTrucks returns all registered trucks.
func (s *Service) ListTrucks(ctx context.Context) ([]domain.Truck, error) {
	return s.store.ListTrucks(ctx)
}

// DriverInput is the registration payload for a driver.
type DriverInput struct {
	Name  string
	Phone string
}

// RegisterDriver stores a driver. Names are unique.
func (s *Service) RegisterDriver(ctx context.Context, input DriverInput) (domain.Driver, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domain.Driver{}, domain.Invalid("name", "name is required")
	}
	driver, err := s.store.CreateDriver(ctx, domain.Driver{Name: name, Phone: strings.TrimSpace(input.Phone)})
	if err != nil {
		return domain.Driver{}, err
	}
	s.logger.Info("driver registered", zap.Int64("id", driver.ID))
	return driver, nil
}

// ListDrivers returns all registered drivers.
func (s *Service) ListDrivers(ctx context.Context) ([]domain.Driver, error) {
	return s.store.ListDrivers(ctx)
}

// DeleteDriver removes a driver unless trips still reference it. The count
// is the primary guard; the store re-checks atomically with the delete.
func (s *Service) DeleteDriver(ctx context.Context, key string) error {
	driver, err := s.resolver.DriverByKey(ctx, key)
	if err != nil {
		return err
	}
	count, err := s.store.CountTripsByDriver(ctx, driver.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ReferentialConflict("driver", "driver is referenced by trips")
	}
	if err := s.store.DeleteDriver(ctx, driver.ID); err != nil {
		return err
	}
	s.publish(ctx, domain.EventDriverDeleted, map[string]any{"driver_id": driver.ID})
	s.logger.Info("driver deleted", zap.Int64("id", driver.ID))
	return nil
}

// ClientInput is the registration payload for a client.
type ClientInput struct {
	Name    string
	Phone   string
	Email   string
	Address string
}

// RegisterClient stores a client. Email is unique when present.
func (s *Service) RegisterClient(ctx context.Context, input ClientInput) (domain.Client, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domain.Client{}, domain.Invalid("name", "name is required")
	}
	client, err := s.store.CreateClient(ctx, domain.Client{
		Name:    name,
		Phone:   strings.TrimSpace(input.Phone),
		Email:   strings.TrimSpace(input.Email),
		Address: strings.TrimSpace(input.Address),
	})
	if err != nil {
		return domain.Client{}, err
	}
	s.logger.Info("client registered", zap.Int64("id", client.ID))
	return client, nil
}

// ListClients returns all registered clients.
func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.store.ListClients(ctx)
}

// completionDateFormat is how finalize stamps the completion date.
const completionDateFormat = "2006-01-02"

func (s *Service) completionDate() string {
	return s.clock.Now().Format(completionDateFormat)
}
