package service

import (
	"math"
	"strconv"
	"strings"

	"github.com/example/fleetwise/internal/fleet/domain"
)

// TripInput carries the raw trip payload. Numeric fields arrive as strings so
// malformed values surface as InvalidInput here instead of as a transport
// decode failure; date fields are opaque strings and never parsed.
type TripInput struct {
	TruckPlate     string
	DriverKey      string
	ClientKey      string
	Start          string
	End            string
	Origin         string
	Destination    string
	Revenue        string
	Cost           string
	Status         string
	CompletionDate string
}

// tripScalars is the typed result of scalar validation.
type tripScalars struct {
	Revenue float64
	Cost    float64
	Status  domain.TripStatus
}

// validateTripScalars checks presence and type of every scalar field before
// any store access. The first violated field wins. Reference keys are only
// checked for presence here; the resolver parses and resolves them afterwards.
func validateTripScalars(input TripInput) (tripScalars, error) {
	var scalars tripScalars
	if strings.TrimSpace(input.TruckPlate) == "" {
		return scalars, domain.Invalid("truck_plate", "truck plate is required")
	}
	if strings.TrimSpace(input.DriverKey) == "" {
		return scalars, domain.Invalid("driver_id", "driver is required")
	}
	if strings.TrimSpace(input.ClientKey) == "" {
		return scalars, domain.Invalid("client_id", "client is required")
	}
	if strings.TrimSpace(input.Start) == "" {
		return scalars, domain.Invalid("start", "start date is required")
	}
	if strings.TrimSpace(input.End) == "" {
		return scalars, domain.Invalid("end", "end date is required")
	}
	if strings.TrimSpace(input.Origin) == "" {
		return scalars, domain.Invalid("origin", "origin is required")
	}
	if strings.TrimSpace(input.Destination) == "" {
		return scalars, domain.Invalid("destination", "destination is required")
	}

	revenue, err := parseAmount(input.Revenue, "revenue")
	if err != nil {
		return scalars, err
	}
	scalars.Revenue = revenue

	if strings.TrimSpace(input.Cost) != "" {
		cost, err := parseAmount(input.Cost, "cost")
		if err != nil {
			return scalars, err
		}
		scalars.Cost = cost
	}

	status := domain.TripStatus(strings.TrimSpace(input.Status))
	if status != "" && !domain.ValidStatus(status) {
		return scalars, domain.Invalid("status", "status must be InProgress or Finished")
	}
	scalars.Status = status
	return scalars, nil
}

func parseAmount(raw, field string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	// ParseFloat accepts "NaN" and "Inf", neither is a valid amount
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, domain.Invalid(field, "must be a number")
	}
	if value < 0 {
		return 0, domain.Invalid(field, "must not be negative")
	}
	return value, nil
}
