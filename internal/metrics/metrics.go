package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registerOnce sync.Once

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantauth_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantauth_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantauth_login_attempts_total",
			Help: "Login attempts by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	AccountLockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenantauth_account_lockouts_total",
		Help: "Accounts locked after repeated password failures.",
	})

	RefreshRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantauth_refresh_rotations_total",
			Help: "Refresh token rotations by outcome.",
		},
		[]string{"outcome"},
	)

	RefreshReuseDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenantauth_refresh_reuse_detected_total",
		Help: "Presentations of an already revoked refresh token.",
	})

	AuditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenantauth_audit_write_failures_total",
		Help: "Login audit entries that could not be persisted.",
	})

	PermissionCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantauth_permission_cache_lookups_total",
			Help: "Permission cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register adds all collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			LoginAttempts,
			AccountLockouts,
			RefreshRotations,
			RefreshReuseDetected,
			AuditWriteFailures,
			PermissionCacheLookups,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
