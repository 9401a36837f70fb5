package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/example/fleetwise/internal/fleet/domain"
	"github.com/example/fleetwise/internal/fleet/finance"
)

// MemoryStore provides an in-memory EntityStore suitable for tests and local
// demos. One mutex serializes all writes, which also makes uniqueness checks
// and the finalize transition atomic.
type MemoryStore struct {
	mu      sync.RWMutex
	trucks  map[int64]domain.Truck
	drivers map[int64]domain.Driver
	clients map[int64]domain.Client
	trips   map[int64]domain.Trip
	nextID  map[string]int64
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trucks:  make(map[int64]domain.Truck),
		drivers: make(map[int64]domain.Driver),
		clients: make(map[int64]domain.Client),
		trips:   make(map[int64]domain.Trip),
		nextID:  make(map[string]int64),
	}
}

func (m *MemoryStore) generate(kind string) int64 {
	m.nextID[kind]++
	return m.nextID[kind]
}

// CreateTruck stores the truck, enforcing plate uniqueness.
func (m *MemoryStore) CreateTruck(_ context.Context, truck domain.Truck) (domain.Truck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.trucks {
		if existing.Plate == truck.Plate {
			return domain.Truck{}, domain.UniqueConflict("truck", "plate")
		}
	}
	truck.ID = m.generate("truck")
	m.trucks[truck.ID] = truck
	return truck, nil
}

func (m *MemoryStore) GetTruckByPlate(_ context.Context, plate string) (domain.Truck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, truck := range m.trucks {
		if truck.Plate == plate {
			return truck, nil
		}
	}
	return domain.Truck{}, domain.NotFound("truck")
}

func (m *MemoryStore) GetTruckByID(_ context.Context, id int64) (domain.Truck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	truck, ok := m.trucks[id]
	if !ok {
		return domain.Truck{}, domain.NotFound("truck")
	}
	return truck, nil
}

func (m *MemoryStore) ListTrucks(_ context.Context) ([]domain.Truck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trucks := make([]domain.Truck, 0, len(m.trucks))
	for _, truck := range m.trucks {
		trucks = append(trucks, truck)
	}
	sort.Slice(trucks, func(i, j int) bool { return trucks[i].ID < trucks[j].ID })
	return trucks, nil
}

// CreateDriver stores the driver, enforcing name uniqueness.
func (m *MemoryStore) CreateDriver(_ context.Context, driver domain.Driver) (domain.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.drivers {
		if strings.EqualFold(existing.Name, driver.Name) {
			return domain.Driver{}, domain.UniqueConflict("driver", "name")
		}
	}
	driver.ID = m.generate("driver")
	m.drivers[driver.ID] = driver
	return driver, nil
}

func (m *MemoryStore) GetDriverByID(_ context.Context, id int64) (domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	driver, ok := m.drivers[id]
	if !ok {
		return domain.Driver{}, domain.NotFound("driver")
	}
	return driver, nil
}

func (m *MemoryStore) ListDrivers(_ context.Context) ([]domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	drivers := make([]domain.Driver, 0, len(m.drivers))
	for _, driver := range m.drivers {
		drivers = append(drivers, driver)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].ID < drivers[j].ID })
	return drivers, nil
}

// DeleteDriver removes the driver unless trips still reference it. The
// reference count and the delete happen under one lock.
func (m *MemoryStore) DeleteDriver(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[id]; !ok {
		return domain.NotFound("driver")
	}
	for _, trip := range m.trips {
		if trip.DriverID == id {
			return domain.ReferentialConflict("driver", "driver is referenced by trips")
		}
	}
	delete(m.drivers, id)
	return nil
}

func (m *MemoryStore) CountTripsByDriver(_ context.Context, driverID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, trip := range m.trips {
		if trip.DriverID == driverID {
			count++
		}
	}
	return count, nil
}

// CreateClient stores the client, enforcing email uniqueness when present.
func (m *MemoryStore) CreateClient(_ context.Context, client domain.Client) (domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if client.Email != "" {
		for _, existing := range m.clients {
			if strings.EqualFold(existing.Email, client.Email) {
				return domain.Client{}, domain.UniqueConflict("client", "email")
			}
		}
	}
	client.ID = m.generate("client")
	m.clients[client.ID] = client
	return client, nil
}

func (m *MemoryStore) GetClientByID(_ context.Context, id int64) (domain.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[id]
	if !ok {
		return domain.Client{}, domain.NotFound("client")
	}
	return client, nil
}

func (m *MemoryStore) ListClients(_ context.Context) ([]domain.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clients := make([]domain.Client, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients, nil
}

// checkTripRefs re-verifies referenced entities at write time. Callers hold
// the write lock, so a resolved-then-deleted entity cannot slip through.
func (m *MemoryStore) checkTripRefs(trip domain.Trip) error {
	if _, ok := m.trucks[trip.TruckID]; !ok {
		return domain.NotFound("truck")
	}
	if _, ok := m.drivers[trip.DriverID]; !ok {
		return domain.NotFound("driver")
	}
	if _, ok := m.clients[trip.ClientID]; !ok {
		return domain.NotFound("client")
	}
	return nil
}

func (m *MemoryStore) CreateTrip(_ context.Context, trip domain.Trip) (domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkTripRefs(trip); err != nil {
		return domain.Trip{}, err
	}
	trip.ID = m.generate("trip")
	trip.Version = 1
	m.trips[trip.ID] = trip
	return trip, nil
}

func (m *MemoryStore) GetTripByID(_ context.Context, id int64) (domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trip, ok := m.trips[id]
	if !ok {
		return domain.Trip{}, domain.NotFound("trip")
	}
	return trip, nil
}

// UpdateTrip replaces the stored trip in full, bumping the version. The write
// only applies when the caller's version matches the stored one, so a stale
// read cannot overwrite a concurrent mutation (in particular, an edit racing
// a finalization cannot drag a Finished trip back to InProgress).
func (m *MemoryStore) UpdateTrip(_ context.Context, trip domain.Trip) (domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.trips[trip.ID]
	if !ok {
		return domain.Trip{}, domain.NotFound("trip")
	}
	if trip.Version != existing.Version {
		return domain.Trip{}, domain.StateConflict("trip", "trip was modified concurrently")
	}
	if err := m.checkTripRefs(trip); err != nil {
		return domain.Trip{}, err
	}
	trip.Version = existing.Version + 1
	m.trips[trip.ID] = trip
	return trip, nil
}

// FinalizeTrip applies the InProgress -> Finished transition. The status
// check, profit derivation and write happen under one lock, so exactly one of
// two concurrent finalizations wins.
func (m *MemoryStore) FinalizeTrip(_ context.Context, id int64, cost float64, completionDate string) (domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[id]
	if !ok {
		return domain.Trip{}, domain.NotFound("trip")
	}
	if !trip.Status.CanTransitionTo(domain.StatusFinished) {
		return domain.Trip{}, domain.StateConflict("trip", "trip is already finished")
	}
	trip.Status = domain.StatusFinished
	trip.Cost = cost
	trip.Profit = finance.Profit(trip.Revenue, cost)
	trip.CompletionDate = completionDate
	trip.Version++
	m.trips[id] = trip
	return trip, nil
}

func (m *MemoryStore) ListTripViews(_ context.Context, filter TripFilter) ([]TripView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	views := make([]TripView, 0, len(m.trips))
	for _, trip := range m.trips {
		if filter.Status != "" && trip.Status != filter.Status {
			continue
		}
		if filter.TruckID != 0 && trip.TruckID != filter.TruckID {
			continue
		}
		views = append(views, TripView{
			TripID:         trip.ID,
			Plate:          m.trucks[trip.TruckID].Plate,
			DriverName:     m.drivers[trip.DriverID].Name,
			ClientName:     m.clients[trip.ClientID].Name,
			Start:          trip.Start,
			End:            trip.End,
			Origin:         trip.Origin,
			Destination:    trip.Destination,
			Revenue:        trip.Revenue,
			Cost:           trip.Cost,
			Profit:         trip.Profit,
			CompletionDate: trip.CompletionDate,
			Status:         trip.Status,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].TripID < views[j].TripID })
	return views, nil
}
