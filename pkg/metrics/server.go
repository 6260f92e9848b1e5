// Package metrics exposes Prometheus metrics for the fieldtrack daemon.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldtrack/fieldtrack/pkg"
	"github.com/fieldtrack/fieldtrack/pkg/engine"
	"github.com/fieldtrack/fieldtrack/pkg/logx"
	"github.com/fieldtrack/fieldtrack/pkg/telem"
)

var movementClasses = []pkg.MovementClass{
	pkg.MovementUnknown,
	pkg.MovementStationary,
	pkg.MovementWalking,
	pkg.MovementRunning,
	pkg.MovementDriving,
}

// Server provides Prometheus metrics for fieldtrackd
type Server struct {
	engine   *engine.Engine
	store    *telem.Store
	logger   *logx.Logger
	server   *http.Server
	registry *prometheus.Registry
	started  time.Time

	updatesTotal        *prometheus.CounterVec
	forcedUpdatesTotal  prometheus.Counter
	providerErrorsTotal prometheus.Counter
	recoveriesTotal     *prometheus.CounterVec

	cumulativeDisplacement prometheus.Gauge
	totalIdleSeconds       prometheus.Gauge
	outsideVisitIdle       prometheus.Gauge
	adaptiveInterval       prometheus.Gauge
	batteryLevel           prometheus.Gauge
	movementClass          *prometheus.GaugeVec
	telemetryUpdates       prometheus.Gauge
	daemonUptime           prometheus.Gauge
}

// NewServer creates a new metrics server
func NewServer(eng *engine.Engine, store *telem.Store, logger *logx.Logger) *Server {
	s := &Server{
		engine:   eng,
		store:    store,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}
	s.registerMetrics()
	return s
}

// registerMetrics registers all Prometheus metrics
func (s *Server) registerMetrics() {
	s.updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldtrack_updates_total",
			Help: "Total decided update events by kind",
		},
		[]string{"kind"},
	)

	s.forcedUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldtrack_forced_updates_total",
			Help: "Real updates emitted solely by the force-update timeout",
		},
	)

	s.providerErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldtrack_provider_errors_total",
			Help: "Transient location provider errors",
		},
	)

	s.recoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldtrack_recoveries_total",
			Help: "Provider recovery attempts by result",
		},
		[]string{"result"},
	)

	s.cumulativeDisplacement = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldtrack_cumulative_displacement_meters",
			Help: "Unaccepted displacement since the last real update",
		},
	)

	s.totalIdleSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldtrack_total_idle_seconds",
			Help: "Cumulative idle time below the movement threshold",
		},
	)

	s.outsideVisitIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldtrack_outside_visit_idle_seconds",
			Help: "Idle time accrued while no visit is active",
		},
	)

	s.adaptiveInterval = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldtrack_adaptive_interval_seconds",
			Help: "Current adaptive polling interval",
		},
	)

	s.batteryLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldtrack_battery_level",
			Help: "Last reported battery level in [0,1]",
		},
	)

	s.movementClass = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldtrack_movement_class",
			Help: "Current movement classification (1 for the active class)",
		},
		[]string{"class"},
	)

	s.telemetryUpdates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldtrack_telemetry_updates",
			Help: "Update events retained in the telemetry store",
		},
	)

	s.daemonUptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldtrack_daemon_uptime_seconds",
			Help: "Daemon uptime in seconds",
		},
	)

	s.registry.MustRegister(
		s.updatesTotal,
		s.forcedUpdatesTotal,
		s.providerErrorsTotal,
		s.recoveriesTotal,
		s.cumulativeDisplacement,
		s.totalIdleSeconds,
		s.outsideVisitIdle,
		s.adaptiveInterval,
		s.batteryLevel,
		s.movementClass,
		s.telemetryUpdates,
		s.daemonUptime,
	)
}

// Start starts the metrics server
func (s *Server) Start(port int) error {
	s.logger.Info("Starting metrics server", "port", port)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.healthHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server error", "error", err.Error())
		}
	}()

	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info("Stopping metrics server")
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// healthHandler provides a simple health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

// RecordUpdate counts a decided update event.
func (s *Server) RecordUpdate(ev engine.UpdateEvent) {
	s.updatesTotal.With(prometheus.Labels{"kind": string(ev.Kind)}).Inc()
	if ev.Forced {
		s.forcedUpdatesTotal.Inc()
	}
}

// RecordProviderError counts a transient provider error.
func (s *Server) RecordProviderError() {
	s.providerErrorsTotal.Inc()
}

// RecordRecovery counts a recovery attempt outcome.
func (s *Server) RecordRecovery(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	s.recoveriesTotal.With(prometheus.Labels{"result": result}).Inc()
}

// UpdateMetrics refreshes gauges from the current engine snapshot.
func (s *Server) UpdateMetrics() {
	state := s.engine.Snapshot()

	s.cumulativeDisplacement.Set(state.CumulativeDisplacementM)
	s.totalIdleSeconds.Set(state.Idle.TotalIdle.Seconds())
	s.outsideVisitIdle.Set(state.Idle.OutsideVisitIdle.Seconds())
	s.adaptiveInterval.Set(state.Interval.Seconds())
	s.batteryLevel.Set(state.BatteryLevel)

	for _, class := range movementClasses {
		v := 0.0
		if class == state.Class {
			v = 1.0
		}
		s.movementClass.With(prometheus.Labels{"class": string(class)}).Set(v)
	}

	if s.store != nil {
		if n, ok := s.store.Stats()["updates"].(int); ok {
			s.telemetryUpdates.Set(float64(n))
		}
	}

	s.daemonUptime.Set(time.Since(s.started).Seconds())
}
