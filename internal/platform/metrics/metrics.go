package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Polling loop
var (
	// TicksTotal counts polling loop ticks by outcome (ok, transient, unavailable).
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appguard_ticks_total",
			Help: "Polling loop ticks by outcome",
		},
		[]string{"outcome"},
	)

	// EventsTotal counts foreground transition events fed to the tracker.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appguard_events_total",
			Help: "Foreground transition events processed by kind",
		},
		[]string{"kind"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appguard_tick_duration_seconds",
			Help:    "Polling loop tick duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "appguard_live_sessions",
			Help: "Sessions currently open in the tracker",
		},
	)

	LoopRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "appguard_loop_restarts_total",
			Help: "Polling loop restarts performed by the supervisor",
		},
	)
)

// Configuration table
var (
	MonitoredApps = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "appguard_monitored_apps",
			Help: "Enabled applications in the current configuration snapshot",
		},
	)

	SubscriptionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "appguard_subscription_failures_total",
			Help: "Settings feed failures observed by the configuration table",
		},
	)
)

// Alert dispatch
var (
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appguard_alerts_total",
			Help: "Alerts delivered by presentation channel",
		},
		[]string{"channel"},
	)

	PresentationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appguard_presentation_failures_total",
			Help: "Presentation attempts that failed by channel",
		},
		[]string{"channel"},
	)

	AlertsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "appguard_alerts_dropped_total",
			Help: "Alerts dropped because the dispatch queue was full or no channel delivered",
		},
	)

	// BreakerState tracks each channel breaker (0=closed, 1=half-open, 2=open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "appguard_channel_breaker_state",
			Help: "Presentation channel circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"channel"},
	)
)
