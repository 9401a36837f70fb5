// Package resolve translates human-facing keys (truck plate, numeric driver
// and client ids) into canonical entities. It has no side effects; every trip
// mutation calls it once per referenced entity before any write.
package resolve

import (
	"context"
	"strconv"
	"strings"

	"github.com/example/fleetwise/internal/fleet/domain"
	"github.com/example/fleetwise/internal/fleet/repository"
)

type Resolver struct {
	store repository.EntityStore
}

func New(store repository.EntityStore) *Resolver {
	return &Resolver{store: store}
}

// NormalizePlate uppercases and trims a plate for exact-match lookup.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// TruckByPlate resolves a plate to its truck.
func (r *Resolver) TruckByPlate(ctx context.Context, plate string) (domain.Truck, error) {
	return r.store.GetTruckByPlate(ctx, NormalizePlate(plate))
}

// DriverByKey resolves a numeric driver key.
func (r *Resolver) DriverByKey(ctx context.Context, key string) (domain.Driver, error) {
	id, err := parseKey(key, "driver_id")
	if err != nil {
		return domain.Driver{}, err
	}
	return r.store.GetDriverByID(ctx, id)
}

// ClientByKey resolves a numeric client key.
func (r *Resolver) ClientByKey(ctx context.Context, key string) (domain.Client, error) {
	id, err := parseKey(key, "client_id")
	if err != nil {
		return domain.Client{}, err
	}
	return r.store.GetClientByID(ctx, id)
}

func parseKey(key, field string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
	if err != nil {
		return 0, domain.Invalid(field, "must be an integer id")
	}
	return id, nil
}
