package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/fleetwise/internal/fleet/domain"
)

// PostgresStore persists entities through database/sql with the pgx driver.
// UNIQUE and FOREIGN KEY constraints back up the application-level checks;
// the finalize transition is a single conditional UPDATE.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables when missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trucks (
			id BIGSERIAL PRIMARY KEY,
			plate VARCHAR(16) NOT NULL UNIQUE,
			name VARCHAR(255) DEFAULT '',
			status VARCHAR(50) NOT NULL DEFAULT 'Available'
		)`,
		`CREATE TABLE IF NOT EXISTS drivers (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			phone VARCHAR(32) DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS clients (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			phone VARCHAR(32) DEFAULT '',
			email VARCHAR(255) UNIQUE,
			address VARCHAR(255) DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS trips (
			id BIGSERIAL PRIMARY KEY,
			truck_id BIGINT NOT NULL REFERENCES trucks(id),
			driver_id BIGINT NOT NULL REFERENCES drivers(id),
			client_id BIGINT NOT NULL REFERENCES clients(id),
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			origin VARCHAR(255) NOT NULL,
			destination VARCHAR(255) NOT NULL,
			revenue DOUBLE PRECISION NOT NULL,
			cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			profit DOUBLE PRECISION NOT NULL,
			completion_date TEXT DEFAULT '',
			status VARCHAR(50) NOT NULL,
			version BIGINT NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id BIGSERIAL PRIMARY KEY,
			topic TEXT NOT NULL,
			payload BYTEA NOT NULL,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, ddl := range statements {
		if _, err := p.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func translatePgError(err error, entity string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return domain.UniqueConflict(entity, uniqueField(pgErr.ConstraintName))
		case "23503":
			return domain.NotFound(referencedEntity(pgErr.ConstraintName))
		}
	}
	return domain.StorageFailure(err)
}

// deleteDriverError translates a failed driver DELETE. A foreign key
// violation here means a trip was committed between the reference count and
// the delete, which is a referential conflict, not a missing row.
func deleteDriverError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return domain.ReferentialConflict("driver", "driver is referenced by trips")
	}
	return domain.StorageFailure(err)
}

func uniqueField(constraint string) string {
	switch {
	case strings.Contains(constraint, "plate"):
		return "plate"
	case strings.Contains(constraint, "email"):
		return "email"
	case strings.Contains(constraint, "name"):
		return "name"
	default:
		return constraint
	}
}

func referencedEntity(constraint string) string {
	switch {
	case strings.Contains(constraint, "truck"):
		return "truck"
	case strings.Contains(constraint, "driver"):
		return "driver"
	case strings.Contains(constraint, "client"):
		return "client"
	default:
		return "trip"
	}
}

func (p *PostgresStore) CreateTruck(ctx context.Context, truck domain.Truck) (domain.Truck, error) {
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO trucks (plate, name, status) VALUES ($1, $2, $3) RETURNING id`,
		truck.Plate, truck.Name, truck.Status,
	).Scan(&truck.ID)
	if err != nil {
		return domain.Truck{}, translatePgError(err, "truck")
	}
	return truck, nil
}

func (p *PostgresStore) GetTruckByPlate(ctx context.Context, plate string) (domain.Truck, error) {
	var truck domain.Truck
	err := p.db.QueryRowContext(ctx,
		`SELECT id, plate, name, status FROM trucks WHERE plate = $1`, plate,
	).Scan(&truck.ID, &truck.Plate, &truck.Name, &truck.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Truck{}, domain.NotFound("truck")
	}
	if err != nil {
		return domain.Truck{}, domain.StorageFailure(err)
	}
	return truck, nil
}

func (p *PostgresStore) GetTruckByID(ctx context.Context, id int64) (domain.Truck, error) {
	var truck domain.Truck
	err := p.db.QueryRowContext(ctx,
		`SELECT id, plate, name, status FROM trucks WHERE id = $1`, id,
	).Scan(&truck.ID, &truck.Plate, &truck.Name, &truck.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Truck{}, domain.NotFound("truck")
	}
	if err != nil {
		return domain.Truck{}, domain.StorageFailure(err)
	}
	return truck, nil
}

func (p *PostgresStore) ListTrucks(ctx context.Context) ([]domain.Truck, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, plate, name, status FROM trucks ORDER BY id`)
	if err != nil {
		return nil, domain.StorageFailure(err)
	}
	defer rows.Close()
	var trucks []domain.Truck
	for rows.Next() {
		var truck domain.Truck
		if err := rows.Scan(&truck.ID, &truck.Plate, &truck.Name, &truck.Status); err != nil {
			return nil, domain.StorageFailure(err)
		}
		trucks = append(trucks, truck)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure(err)
	}
	return trucks, nil
}

func (p *PostgresStore) CreateDriver(ctx context.Context, driver domain.Driver) (domain.Driver, error) {
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO drivers (name, phone) VALUES ($1, $2) RETURNING id`,
		driver.Name, driver.Phone,
	).Scan(&driver.ID)
	if err != nil {
		return domain.Driver{}, translatePgError(err, "driver")
	}
	return driver, nil
}

func (p *PostgresStore) GetDriverByID(ctx context.Context, id int64) (domain.Driver, error) {
	var driver domain.Driver
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, phone FROM drivers WHERE id = $1`, id,
	).Scan(&driver.ID, &driver.Name, &driver.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Driver{}, domain.NotFound("driver")
	}
	if err != nil {
		return domain.Driver{}, domain.StorageFailure(err)
	}
	return driver, nil
}

func (p *PostgresStore) ListDrivers(ctx context.Context) ([]domain.Driver, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, phone FROM drivers ORDER BY id`)
	if err != nil {
		return nil, domain.StorageFailure(err)
	}
	defer rows.Close()
	var drivers []domain.Driver
	for rows.Next() {
		var driver domain.Driver
		if err := rows.Scan(&driver.ID, &driver.Name, &driver.Phone); err != nil {
			return nil, domain.StorageFailure(err)
		}
		drivers = append(drivers, driver)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure(err)
	}
	return drivers, nil
}

// DeleteDriver counts referencing trips and deletes inside one transaction.
func (p *PostgresStore) DeleteDriver(ctx context.Context, id int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageFailure(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var count int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trips WHERE driver_id = $1`, id,
	).Scan(&count); err != nil {
		return domain.StorageFailure(err)
	}
	if count > 0 {
		return domain.ReferentialConflict("driver", "driver is referenced by trips")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM drivers WHERE id = $1`, id)
	if err != nil {
		return deleteDriverError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.StorageFailure(err)
	}
	if affected == 0 {
		return domain.NotFound("driver")
	}
	if err := tx.Commit(); err != nil {
		return domain.StorageFailure(err)
	}
	return nil
}

func (p *PostgresStore) CountTripsByDriver(ctx context.Context, driverID int64) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trips WHERE driver_id = $1`, driverID,
	).Scan(&count)
	if err != nil {
		return 0, domain.StorageFailure(err)
	}
	return count, nil
}

func (p *PostgresStore) CreateClient(ctx context.Context, client domain.Client) (domain.Client, error) {
	email := sql.NullString{String: client.Email, Valid: client.Email != ""}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO clients (name, phone, email, address) VALUES ($1, $2, $3, $4) RETURNING id`,
		client.Name, client.Phone, email, client.Address,
	).Scan(&client.ID)
	if err != nil {
		return domain.Client{}, translatePgError(err, "client")
	}
	return client, nil
}

func (p *PostgresStore) GetClientByID(ctx context.Context, id int64) (domain.Client, error) {
	var client domain.Client
	var email sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, phone, email, address FROM clients WHERE id = $1`, id,
	).Scan(&client.ID, &client.Name, &client.Phone, &email, &client.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Client{}, domain.NotFound("client")
	}
	if err != nil {
		return domain.Client{}, domain.StorageFailure(err)
	}
	client.Email = email.String
	return client, nil
}

func (p *PostgresStore) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, phone, email, address FROM clients ORDER BY id`)
	if err != nil {
		return nil, domain.StorageFailure(err)
	}
	defer rows.Close()
	var clients []domain.Client
	for rows.Next() {
		var client domain.Client
		var email sql.NullString
		if err := rows.Scan(&client.ID, &client.Name, &client.Phone, &email, &client.Address); err != nil {
			return nil, domain.StorageFailure(err)
		}
		client.Email = email.String
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure(err)
	}
	return clients, nil
}

// CreateTrip inserts the trip and an outbox row in one transaction. The
// foreign key constraints re-verify references at write time.
func (p *PostgresStore) CreateTrip(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trip{}, domain.StorageFailure(err)
	}
	defer tx.Rollback() //nolint:errcheck

	err = tx.QueryRowContext(ctx,
		`INSERT INTO trips (truck_id, driver_id, client_id, start_date, end_date, origin, destination,
			revenue, cost, profit, completion_date, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id, version`,
		trip.TruckID, trip.DriverID, trip.ClientID, trip.Start, trip.End, trip.Origin, trip.Destination,
		trip.Revenue, trip.Cost, trip.Profit, trip.CompletionDate, trip.Status,
	).Scan(&trip.ID, &trip.Version)
	if err != nil {
		return domain.Trip{}, translatePgError(err, "trip")
	}
	if err := insertOutbox(ctx, tx, domain.EventTripCreated, trip); err != nil {
		return domain.Trip{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Trip{}, domain.StorageFailure(err)
	}
	return trip, nil
}

func scanTrip(row interface{ Scan(...any) error }) (domain.Trip, error) {
	var trip domain.Trip
	err := row.Scan(&trip.ID, &trip.TruckID, &trip.DriverID, &trip.ClientID,
		&trip.Start, &trip.End, &trip.Origin, &trip.Destination,
		&trip.Revenue, &trip.Cost, &trip.Profit, &trip.CompletionDate, &trip.Status, &trip.Version)
	return trip, err
}

const tripColumns = `id, truck_id, driver_id, client_id, start_date, end_date, origin, destination,
	revenue, cost, profit, completion_date, status, version`

func (p *PostgresStore) GetTripByID(ctx context.Context, id int64) (domain.Trip, error) {
	trip, err := scanTrip(p.db.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trip{}, domain.NotFound("trip")
	}
	if err != nil {
		return domain.Trip{}, domain.StorageFailure(err)
	}
	return trip, nil
}

// UpdateTrip replaces every mutable column, bumping the version. The UPDATE
// is guarded by the caller's version so a stale full-replace write loses to
// any concurrent mutation instead of silently overwriting it.
func (p *PostgresStore) UpdateTrip(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trip{}, domain.StorageFailure(err)
	}
	defer tx.Rollback() //nolint:errcheck

	err = tx.QueryRowContext(ctx,
		`UPDATE trips SET truck_id = $2, driver_id = $3, client_id = $4, start_date = $5, end_date = $6,
			origin = $7, destination = $8, revenue = $9, cost = $10, profit = $11,
			completion_date = $12, status = $13, version = version + 1
		 WHERE id = $1 AND version = $14 RETURNING version`,
		trip.ID, trip.TruckID, trip.DriverID, trip.ClientID, trip.Start, trip.End,
		trip.Origin, trip.Destination, trip.Revenue, trip.Cost, trip.Profit,
		trip.CompletionDate, trip.Status, trip.Version,
	).Scan(&trip.Version)
	if errors.Is(err, sql.ErrNoRows) {
		// distinguish a missing trip from a version mismatch
		var exists bool
		probe := tx.QueryRowContext(ctx, `SELECT true FROM trips WHERE id = $1`, trip.ID).Scan(&exists)
		if errors.Is(probe, sql.ErrNoRows) {
			return domain.Trip{}, domain.NotFound("trip")
		}
		if probe != nil {
			return domain.Trip{}, domain.StorageFailure(probe)
		}
		return domain.Trip{}, domain.StateConflict("trip", "trip was modified concurrently")
	}
	if err != nil {
		return domain.Trip{}, translatePgError(err, "trip")
	}
	if err := insertOutbox(ctx, tx, domain.EventTripUpdated, trip); err != nil {
		return domain.Trip{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Trip{}, domain.StorageFailure(err)
	}
	return trip, nil
}

// FinalizeTrip relies on the status predicate in the UPDATE: of two
// concurrent finalizations only one matches the InProgress row.
func (p *PostgresStore) FinalizeTrip(ctx context.Context, id int64, cost float64, completionDate string) (domain.Trip, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trip{}, domain.StorageFailure(err)
	}
	defer tx.Rollback() //nolint:errcheck

	trip, err := scanTrip(tx.QueryRowContext(ctx,
		`UPDATE trips SET status = $2, cost = $3, profit = revenue - $3, completion_date = $4,
			version = version + 1
		 WHERE id = $1 AND status = $5 RETURNING `+tripColumns,
		id, domain.StatusFinished, cost, completionDate, domain.StatusInProgress))
	if errors.Is(err, sql.ErrNoRows) {
		// distinguish a missing trip from one already finished
		var status domain.TripStatus
		probe := tx.QueryRowContext(ctx, `SELECT status FROM trips WHERE id = $1`, id).Scan(&status)
		if errors.Is(probe, sql.ErrNoRows) {
			return domain.Trip{}, domain.NotFound("trip")
		}
		if probe != nil {
			return domain.Trip{}, domain.StorageFailure(probe)
		}
		return domain.Trip{}, domain.StateConflict("trip", "trip is already finished")
	}
	if err != nil {
		return domain.Trip{}, domain.StorageFailure(err)
	}
	if err := insertOutbox(ctx, tx, domain.EventTripFinalized, trip); err != nil {
		return domain.Trip{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Trip{}, domain.StorageFailure(err)
	}
	return trip, nil
}

func (p *PostgresStore) ListTripViews(ctx context.Context, filter TripFilter) ([]TripView, error) {
	query := `SELECT t.id, k.plate, d.name, c.name, t.start_date, t.end_date, t.origin, t.destination,
			t.revenue, t.cost, t.profit, t.completion_date, t.status
		FROM trips t
		JOIN trucks k ON t.truck_id = k.id
		JOIN drivers d ON t.driver_id = d.id
		JOIN clients c ON t.client_id = c.id`
	var clauses []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("t.status = $%d", len(args)))
	}
	if filter.TruckID != 0 {
		args = append(args, filter.TruckID)
		clauses = append(clauses, fmt.Sprintf("t.truck_id = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY t.id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageFailure(err)
	}
	defer rows.Close()
	var views []TripView
	for rows.Next() {
		var view TripView
		if err := rows.Scan(&view.TripID, &view.Plate, &view.DriverName, &view.ClientName,
			&view.Start, &view.End, &view.Origin, &view.Destination,
			&view.Revenue, &view.Cost, &view.Profit, &view.CompletionDate, &view.Status); err != nil {
			return nil, domain.StorageFailure(err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure(err)
	}
	return views, nil
}

// insertOutbox queues a lifecycle event for the relay in the same transaction
// as the trip write.
func insertOutbox(ctx context.Context, tx *sql.Tx, eventType domain.EventType, trip domain.Trip) error {
	payload, err := json.Marshal(map[string]any{
		"type":    string(eventType),
		"trip_id": trip.ID,
		"status":  string(trip.Status),
		"profit":  trip.Profit,
		"at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return domain.StorageFailure(err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (topic, payload) VALUES ($1, $2)`, "fleet.trips", payload); err != nil {
		return domain.StorageFailure(err)
	}
	return nil
}
