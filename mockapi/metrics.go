package mockapi

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsSubsystem = "taskboard_mock"

// serverMetrics counts task mutations on top of the generic request metrics.
type serverMetrics struct {
	mutations *prometheus.CounterVec
	replays   prometheus.Counter
	authFails *prometheus.CounterVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	f := promauto.With(reg)
	return &serverMetrics{
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "task_mutations_total",
			Help:      "Accepted task mutations by operation.",
		}, []string{"op"}),
		replays: f.NewCounter(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "idempotent_replays_total",
			Help:      "Create requests answered from an earlier Idempotency-Key.",
		}),
		authFails: f.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "auth_failures_total",
			Help:      "Rejected requests by status code.",
		}, []string{"status"}),
	}
}

// registerMetrics installs the request metrics middleware and the /metrics
// endpoint backed by reg.
func registerMetrics(e *echo.Echo, reg *prometheus.Registry) {
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  metricsSubsystem,
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))
}
