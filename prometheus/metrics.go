package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timewise_login_total",
			Help: "Total number of login attempts",
		},
	)

	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timewise_register_total",
			Help: "Total number of organization registrations",
		},
	)

	CheckInCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timewise_checkin_total",
			Help: "Total number of check-in attempts by method and result",
		},
		[]string{"method", "result"}, // result: "ok", "duplicate", "rejected"
	)

	CheckOutCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timewise_checkout_total",
			Help: "Total number of check-out attempts by result",
		},
		[]string{"result"},
	)

	WebhookCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timewise_webhook_events_total",
			Help: "Total number of payment webhook events by type and result",
		},
		[]string{"event", "result"}, // result: "applied", "duplicate", "rejected"
	)

	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timewise_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"},
	)

	FeatureDenialCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timewise_feature_denials_total",
			Help: "Total number of feature gate denials by plan and feature",
		},
		[]string{"plan", "feature"},
	)

	PlanFallbackCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timewise_plan_fallback_total",
			Help: "Times an unknown plan tier fell back to starter",
		},
	)

	CrossTenantCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timewise_cross_tenant_rejections_total",
			Help: "Total number of rejected cross-tenant access attempts",
		},
	)

	SweepCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timewise_subscription_sweep_total",
			Help: "Subscription sweep actions by kind",
		},
		[]string{"kind"}, // "trial_expired", "past_due", "downgrade_applied"
	)

	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timewise_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Histogram metrics
var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timewise_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timewise_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Gauge metrics
var (
	ActiveOrganizationsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "timewise_active_organizations",
			Help: "Number of organizations not suspended",
		},
	)

	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "timewise_info",
			Help: "Information about the TimeWise service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(CheckInCounter)
	prometheus.MustRegister(CheckOutCounter)
	prometheus.MustRegister(WebhookCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(FeatureDenialCounter)
	prometheus.MustRegister(PlanFallbackCounter)
	prometheus.MustRegister(CrossTenantCounter)
	prometheus.MustRegister(SweepCounter)
	prometheus.MustRegister(HTTPRequestCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(ActiveOrganizationsGauge)
	prometheus.MustRegister(InfoGauge)

	InfoGauge.With(prometheus.Labels{"version": "2.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// RecordAuthError increments the auth error counter for the given type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordFeatureDenial increments the feature denial counter
func RecordFeatureDenial(plan, feature string) {
	FeatureDenialCounter.With(prometheus.Labels{"plan": plan, "feature": feature}).Inc()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}
