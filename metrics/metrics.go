// Package metrics exposes Prometheus metrics for custody operations and the
// standalone metrics listener used by service binaries.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WalletCreatesTotal counts wallet creation attempts by outcome.
	WalletCreatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_wallet_creates_total",
			Help: "Total number of wallet creation attempts",
		},
		[]string{"result"},
	)

	// SignsTotal counts signing attempts by outcome.
	SignsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_signs_total",
			Help: "Total number of signing attempts",
		},
		[]string{"result"},
	)

	// RecoveriesTotal counts recovery attempts by outcome.
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_recoveries_total",
			Help: "Total number of wallet recovery attempts",
		},
		[]string{"result"},
	)

	// InvalidPinTotal counts PIN rejections separately so brute-force
	// attempts are visible without parsing sign outcomes.
	InvalidPinTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_invalid_pin_total",
			Help: "Total number of rejected PIN attempts",
		},
	)

	// SessionLoginsTotal counts identity-proof verifications by outcome.
	SessionLoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_session_logins_total",
			Help: "Total number of session login attempts",
		},
		[]string{"result"},
	)

	// ServiceInfo reports the serving binary, set once at startup.
	ServiceInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "custody_service_info",
			Help: "Static service identity",
		},
		[]string{"service"},
	)

	// OperationDuration observes end-to-end custody operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custody_operation_duration_seconds",
			Help:    "Time taken by custody operations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// MetricsServer serves the Prometheus scrape endpoint on its own address.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given listen address. Callers pass
// common.PackageName as the service identity.
func New(service, listenAddr string) (*MetricsServer, error) {
	ServiceInfo.WithLabelValues(service).Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving the scrape endpoint.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
