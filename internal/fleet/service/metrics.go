package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tripsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_trips_created_total",
		Help: "Total number of trips created.",
	})

	tripsFinalizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_trips_finalized_total",
		Help: "Total number of trips moved to the Finished state.",
	})

	tripFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_trip_failures_total",
		Help: "Trip mutations rejected, grouped by operation and error kind.",
	}, []string{"operation", "kind"})
)
