package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "uber_ride_tracker", Name: "poll_ticks_total", Help: "Poll ticks by outcome (active, inactive, error)"},
		[]string{"outcome"},
	)
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "uber_ride_tracker", Name: "api_calls_total", Help: "Uber API calls by endpoint and status class"},
		[]string{"endpoint", "status"},
	)
	TokenRefreshesTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "uber_ride_tracker", Name: "token_refreshes_total", Help: "Successful OAuth token refreshes"},
	)
	UpdateFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "uber_ride_tracker", Name: "update_failures_total", Help: "Poll ticks that ended in an update-failed signal"},
	)
	PollIntervalSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "uber_ride_tracker", Name: "poll_interval_seconds", Help: "Interval scheduled for the next poll tick"},
	)
	ActiveRide = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "uber_ride_tracker", Name: "active_ride", Help: "1 when a ride is currently active"},
	)
)
