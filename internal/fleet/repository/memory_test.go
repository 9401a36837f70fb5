package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/fleetwise/internal/fleet/domain"
	"github.com/example/fleetwise/internal/fleet/repository"
)

func seedStore(t *testing.T) (*repository.MemoryStore, domain.Truck, domain.Driver, domain.Client) {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()
	truck, err := store.CreateTruck(ctx, domain.Truck{Plate: "ABC1234", Status: domain.DefaultTruckStatus})
	require.NoError(t, err)
	driver, err := store.CreateDriver(ctx, domain.Driver{Name: "Jo"})
	require.NoError(t, err)
	client, err := store.CreateClient(ctx, domain.Client{Name: "X", Email: "x@x.com"})
	require.NoError(t, err)
	return store, truck, driver, client
}

func seedTrip(t *testing.T, store *repository.MemoryStore, truck domain.Truck, driver domain.Driver, client domain.Client) domain.Trip {
	t.Helper()
	trip, err := store.CreateTrip(context.Background(), domain.Trip{
		TruckID:     truck.ID,
		DriverID:    driver.ID,
		ClientID:    client.ID,
		Start:       "2026-01-10",
		End:         "2026-01-12",
		Origin:      "Santos",
		Destination: "Goiania",
		Revenue:     1000,
		Profit:      1000,
		Status:      domain.StatusInProgress,
	})
	require.NoError(t, err)
	return trip
}

func TestUniquenessEnforcedAtStore(t *testing.T) {
	store, _, _, _ := seedStore(t)
	ctx := context.Background()

	_, err := store.CreateTruck(ctx, domain.Truck{Plate: "ABC1234"})
	require.Equal(t, domain.KindUniqueConflict, domain.KindOf(err))

	_, err = store.CreateDriver(ctx, domain.Driver{Name: "jo"})
	require.Equal(t, domain.KindUniqueConflict, domain.KindOf(err))

	_, err = store.CreateClient(ctx, domain.Client{Name: "Y", Email: "X@X.COM"})
	require.Equal(t, domain.KindUniqueConflict, domain.KindOf(err))

	// email is only unique when present
	_, err = store.CreateClient(ctx, domain.Client{Name: "Y"})
	require.NoError(t, err)
	_, err = store.CreateClient(ctx, domain.Client{Name: "Z"})
	require.NoError(t, err)
}

func TestCreateTripChecksReferencesAtWriteTime(t *testing.T) {
	store, truck, driver, client := seedStore(t)
	ctx := context.Background()

	_, err := store.CreateTrip(ctx, domain.Trip{TruckID: 99, DriverID: driver.ID, ClientID: client.ID})
	require.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = store.CreateTrip(ctx, domain.Trip{TruckID: truck.ID, DriverID: 99, ClientID: client.ID})
	require.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = store.CreateTrip(ctx, domain.Trip{TruckID: truck.ID, DriverID: driver.ID, ClientID: 99})
	require.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestDeleteDriverGuard(t *testing.T) {
	store, truck, driver, client := seedStore(t)
	ctx := context.Background()
	seedTrip(t, store, truck, driver, client)

	err := store.DeleteDriver(ctx, driver.ID)
	require.Equal(t, domain.KindReferentialConflict, domain.KindOf(err))
	// driver unchanged after the refused delete
	_, err = store.GetDriverByID(ctx, driver.ID)
	require.NoError(t, err)

	free, err := store.CreateDriver(ctx, domain.Driver{Name: "Ana"})
	require.NoError(t, err)
	require.NoError(t, store.DeleteDriver(ctx, free.ID))
	_, err = store.GetDriverByID(ctx, free.ID)
	require.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestFinalizeTripTransition(t *testing.T) {
	store, truck, driver, client := seedStore(t)
	ctx := context.Background()
	trip := seedTrip(t, store, truck, driver, client)

	finished, err := store.FinalizeTrip(ctx, trip.ID, 200, "2026-02-01")
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinished, finished.Status)
	require.Equal(t, 800.0, finished.Profit)
	require.Equal(t, "2026-02-01", finished.CompletionDate)

	_, err = store.FinalizeTrip(ctx, trip.ID, 300, "2026-02-02")
	require.Equal(t, domain.KindStateConflict, domain.KindOf(err))

	_, err = store.FinalizeTrip(ctx, 999, 300, "2026-02-02")
	require.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestUpdateTripRejectsStaleWrite(t *testing.T) {
	store, truck, driver, client := seedStore(t)
	ctx := context.Background()
	trip := seedTrip(t, store, truck, driver, client)

	stale, err := store.GetTripByID(ctx, trip.ID)
	require.NoError(t, err)

	_, err = store.FinalizeTrip(ctx, trip.ID, 200, "2026-02-01")
	require.NoError(t, err)

	// the pre-finalize snapshot must not overwrite the finalized trip
	stale.Destination = "Curitiba"
	_, err = store.UpdateTrip(ctx, stale)
	require.Equal(t, domain.KindStateConflict, domain.KindOf(err))

	final, err := store.GetTripByID(ctx, trip.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinished, final.Status)
	require.Equal(t, 200.0, final.Cost)
	require.Equal(t, 800.0, final.Profit)

	// a fresh read carries the current version and succeeds
	fresh, err := store.GetTripByID(ctx, trip.ID)
	require.NoError(t, err)
	fresh.Destination = "Curitiba"
	updated, err := store.UpdateTrip(ctx, fresh)
	require.NoError(t, err)
	require.Equal(t, "Curitiba", updated.Destination)
	require.Equal(t, domain.StatusFinished, updated.Status)
}

func TestConcurrentFinalizeSingleWinner(t *testing.T) {
	store, truck, driver, client := seedStore(t)
	ctx := context.Background()
	trip := seedTrip(t, store, truck, driver, client)

	costs := []float64{200, 300}
	errs := make([]error, len(costs))
	var wg sync.WaitGroup
	for i, cost := range costs {
		wg.Add(1)
		go func(i int, cost float64) {
			defer wg.Done()
			_, errs[i] = store.FinalizeTrip(ctx, trip.ID, cost, "2026-02-01")
		}(i, cost)
	}
	wg.Wait()

	var winners int
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.Equal(t, domain.KindStateConflict, domain.KindOf(err))
		}
	}
	require.Equal(t, 1, winners)

	final, err := store.GetTripByID(ctx, trip.ID)
	require.NoError(t, err)
	// the persisted profit reflects exactly one of the two costs
	require.Contains(t, []float64{800, 700}, final.Profit)
	require.Equal(t, final.Revenue-final.Cost, final.Profit)
}

func TestListTripViewsJoinsAndFilters(t *testing.T) {
	store, truck, driver, client := seedStore(t)
	ctx := context.Background()
	trip := seedTrip(t, store, truck, driver, client)
	_, err := store.FinalizeTrip(ctx, trip.ID, 100, "2026-02-01")
	require.NoError(t, err)
	seedTrip(t, store, truck, driver, client)

	active, err := store.ListTripViews(ctx, repository.TripFilter{Status: domain.StatusInProgress})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "ABC1234", active[0].Plate)
	require.Equal(t, "Jo", active[0].DriverName)
	require.Equal(t, "X", active[0].ClientName)

	finished, err := store.ListTripViews(ctx, repository.TripFilter{Status: domain.StatusFinished})
	require.NoError(t, err)
	require.Len(t, finished, 1)
	require.Equal(t, 900.0, finished[0].Profit)

	byTruck, err := store.ListTripViews(ctx, repository.TripFilter{TruckID: truck.ID})
	require.NoError(t, err)
	require.Len(t, byTruck, 2)
}
