package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Predictor metrics
var (
	// PredictorRequestsTotal tracks the total number of predictor calls
	PredictorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictor_requests_total",
			Help: "Total number of requests sent to the forecasting service",
		},
		[]string{"endpoint", "status"},
	)

	// PredictorRequestDuration tracks the duration of predictor calls
	PredictorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "predictor_request_duration_seconds",
			Help:    "Duration of forecasting service requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

// Orchestration metrics
var (
	// SimulationFallbacksTotal counts simulations answered by the local approximation
	SimulationFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridcast_simulation_fallbacks_total",
			Help: "Simulations recomputed locally because the predictor was unreachable",
		},
	)

	// SupersededResponsesTotal counts responses discarded because a newer request replaced them
	SupersededResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcast_superseded_responses_total",
			Help: "Predictor responses discarded because a newer request superseded them",
		},
		[]string{"component"},
	)

	// AggregationsTotal counts provincial recomputations by outcome
	AggregationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcast_aggregations_total",
			Help: "Provincial load recomputations by outcome",
		},
		[]string{"status"},
	)

	// ProvincialLoadMW is the latest aggregated load
	ProvincialLoadMW = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridcast_provincial_load_mw",
			Help: "Latest aggregated provincial load in MW",
		},
	)

	// GridOverloaded is 1 while the latest aggregate exceeds the overload threshold
	GridOverloaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridcast_grid_overloaded",
			Help: "1 when the latest aggregated load exceeds the overload threshold",
		},
	)

	// EventSubscribers tracks connected live-event clients
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridcast_event_subscribers",
			Help: "Number of connected websocket event subscribers",
		},
	)

	// AppInfo provides static information about the application
	AppInfo = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridcast_app_info",
			Help: "Application information (always 1)",
		},
	)

	// AppStartTime records when the application started
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridcast_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

func init() {
	AppInfo.Set(1)
	AppStartTime.SetToCurrentTime()
}

// RecordPredictorCall records a predictor request
func RecordPredictorCall(endpoint string, duration time.Duration, err error) {
	status := "success"
	switch {
	case errors.Is(err, context.Canceled):
		status = "cancelled"
	case err != nil:
		status = "error"
	}
	PredictorRequestsTotal.WithLabelValues(endpoint, status).Inc()
	PredictorRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAggregate publishes the latest provincial load
func RecordAggregate(totalMW float64, overloaded bool) {
	AggregationsTotal.WithLabelValues("success").Inc()
	ProvincialLoadMW.Set(totalMW)
	if overloaded {
		GridOverloaded.Set(1)
	} else {
		GridOverloaded.Set(0)
	}
}
