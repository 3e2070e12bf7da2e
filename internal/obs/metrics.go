package obs

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide Prometheus registry plus the handful of
// domain counters/gauges the daemon's hot paths feed directly (ledger
// append, PTY session count, delivery attempts). Grounded on the teacher's
// use of client_golang for its controller's default metrics server, scaled
// down from a generic `/metrics` HTTP handler to the same shape bound to a
// loopback-only listener (the daemon has no public HTTP surface — see
// SPEC_FULL.md Non-goals).
type Metrics struct {
	registry *prometheus.Registry

	LedgerAppends     *prometheus.CounterVec
	PTYSessionsActive prometheus.Gauge
	DeliveryAttempts  *prometheus.CounterVec
	HandoffsQueued    prometheus.Counter
	HandoffsDropped   prometheus.Counter
}

// NewMetrics constructs and registers every counter/gauge against a fresh
// registry (never the global default one, so tests can construct
// independent instances without collector-already-registered panics).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		LedgerAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cccc_ledger_append_total",
			Help: "Ledger events appended, by kind.",
		}, []string{"kind"}),
		PTYSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cccc_pty_sessions_active",
			Help: "Currently running PTY actor sessions.",
		}),
		DeliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cccc_delivery_attempts_total",
			Help: "Chat message deliveries attempted, by outcome.",
		}, []string{"outcome"}),
		HandoffsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cccc_handoffs_queued_total",
			Help: "Handoffs queued behind a busy receiver.",
		}),
		HandoffsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cccc_handoffs_dropped_total",
			Help: "Handoffs dropped after exhausting resend attempts.",
		}),
	}
	reg.MustRegister(m.LedgerAppends, m.PTYSessionsActive, m.DeliveryAttempts, m.HandoffsQueued, m.HandoffsDropped)
	return m
}

// Serve binds a loopback-only HTTP listener exposing /metrics. Returns the
// net.Listener so the caller can log the bound port (0 picks an ephemeral
// one) and close it on shutdown.
func (m *Metrics) Serve(addr string) (net.Listener, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	return ln, nil
}

var global *Metrics

// SetGlobal installs m as the package-level metrics instance that
// ledger/ptysup hot paths report into via the RecordX helpers below. A nil
// global (the default before ccccd wires it up) makes every RecordX call a
// no-op, so packages can call these unconditionally without a nil check.
func SetGlobal(m *Metrics) { global = m }

func RecordLedgerAppend(kind string) {
	if global == nil {
		return
	}
	global.LedgerAppends.WithLabelValues(kind).Inc()
}

func SetPTYSessionsActive(n int) {
	if global == nil {
		return
	}
	global.PTYSessionsActive.Set(float64(n))
}

func RecordDeliveryAttempt(ok bool) {
	if global == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	global.DeliveryAttempts.WithLabelValues(outcome).Inc()
}

func RecordHandoffQueued() {
	if global == nil {
		return
	}
	global.HandoffsQueued.Inc()
}

func RecordHandoffDropped() {
	if global == nil {
		return
	}
	global.HandoffsDropped.Inc()
}
