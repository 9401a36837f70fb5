package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/example/fleetwise/internal/fleet/domain"
)

func pgErr(code, constraint string) error {
	return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code, ConstraintName: constraint})
}

func TestTranslatePgError(t *testing.T) {
	var domainErr *domain.Error

	err := translatePgError(pgErr("23505", "trucks_plate_key"), "truck")
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, domain.KindUniqueConflict, domainErr.Kind)
	require.Equal(t, "plate", domainErr.Field)

	err = translatePgError(pgErr("23505", "clients_email_key"), "client")
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, domain.KindUniqueConflict, domainErr.Kind)
	require.Equal(t, "email", domainErr.Field)

	err = translatePgError(pgErr("23503", "trips_truck_id_fkey"), "trip")
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, domain.KindNotFound, domainErr.Kind)
	require.Equal(t, "truck", domainErr.Entity)

	err = translatePgError(errors.New("connection reset"), "trip")
	require.Equal(t, domain.KindStorage, domain.KindOf(err))
}

func TestDeleteDriverErrorMapsForeignKeyToConflict(t *testing.T) {
	// a trip committed between the reference count and the DELETE trips the
	// FK constraint; that is a conflict, not a missing driver
	err := deleteDriverError(pgErr("23503", "trips_driver_id_fkey"))
	require.Equal(t, domain.KindReferentialConflict, domain.KindOf(err))

	err = deleteDriverError(errors.New("connection reset"))
	require.Equal(t, domain.KindStorage, domain.KindOf(err))
}
