package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elys-network/fundmanager/internal/logger"
	"github.com/elys-network/fundmanager/internal/types"
	"github.com/elys-network/fundmanager/internal/utils"
)

const namespace = "fund_manager"

var metricsLogger = logger.GetForComponent("metrics")

// Collector exports the fund state and the outcome of every fund operation.
// It satisfies fund.Observer.
type Collector struct {
	registry *prometheus.Registry

	totalValue     prometheus.Gauge
	unitSupply     prometheus.Gauge
	grossUnitValue prometheus.Gauge
	netUnitValue   prometheus.Gauge
	pendingUnits   prometheus.Gauge
	authorizations prometheus.Gauge
	pendingClaims  prometheus.Gauge
	positionValue  *prometheus.GaugeVec
	positionShare  *prometheus.GaugeVec

	operations   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	botRuns      *prometheus.CounterVec
}

func gauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		totalValue:     gauge("fund", "total_value_usd", "Cached USD value of all positions."),
		unitSupply:     gauge("fund", "unit_supply", "Outstanding fund units."),
		grossUnitValue: gauge("fund", "gross_unit_value_usd", "USD value of one fund unit."),
		netUnitValue:   gauge("fund", "net_unit_value_usd", "USD value of one fund unit after the withdrawal fee."),
		pendingUnits:   gauge("fund", "pending_units", "Minted units waiting to be distributed."),
		authorizations: gauge("fund", "authorizations", "Live multisig authorization records."),
		pendingClaims:  gauge("fund", "pending_claims", "Stored unstake claim receipts."),
		positionValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "value_usd",
			Help:      "Cached USD value of a position.",
		}, []string{"position"}),
		positionShare: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "allocation_percent",
			Help:      "Desired and actual share of a position in the fund.",
		}, []string{"position", "kind"}),

		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fund",
			Name:      "operations_total",
			Help:      "Fund operations by outcome.",
		}, []string{"operation", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),
		botRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "job_runs_total",
			Help:      "Bot job runs by outcome.",
		}, []string{"job", "success"}),
	}

	c.registry.MustRegister(
		c.totalValue, c.unitSupply, c.grossUnitValue, c.netUnitValue, c.pendingUnits,
		c.authorizations, c.pendingClaims, c.positionValue, c.positionShare,
		c.operations, c.httpRequests, c.httpDuration, c.botRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns an HTTP handler exposing the registered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveOperation counts an operation by outcome.
func (c *Collector) ObserveOperation(operation string, err error) {
	c.operations.WithLabelValues(operation, Result(err)).Inc()
}

// Result maps an operation error to a result label.
func Result(err error) string {
	if err == nil {
		return "committed"
	}
	return "aborted"
}

// ObserveSnapshot refreshes every fund gauge.
func (c *Collector) ObserveSnapshot(s types.FundSnapshot) {
	set(c.totalValue, s.TotalValue)
	set(c.unitSupply, s.UnitSupply)
	set(c.grossUnitValue, s.GrossUnitValue)
	set(c.netUnitValue, s.NetUnitValue)
	set(c.pendingUnits, s.PendingUnits)
	c.authorizations.Set(float64(s.Authorizations))
	c.pendingClaims.Set(float64(len(s.PendingClaims)))

	// Removed positions must disappear from the export.
	c.positionValue.Reset()
	c.positionShare.Reset()
	for _, p := range s.Positions {
		set(c.positionValue.WithLabelValues(p.Name), p.Value)
		c.positionShare.WithLabelValues(p.Name, "desired").Set(float64(p.DesiredPercentage))
		set(c.positionShare.WithLabelValues(p.Name, "actual"), p.ActualPercentage)
	}
}

// ObserveBotRun counts a bot job run.
func (c *Collector) ObserveBotRun(job string, err error) {
	c.botRuns.WithLabelValues(job, strconv.FormatBool(err == nil)).Inc()
}

func set(g prometheus.Gauge, value sdkmath.LegacyDec) {
	if value.IsNil() {
		g.Set(0)
		return
	}
	f, err := utils.DecToFloat64(value)
	if err != nil {
		metricsLogger.Warn().Err(err).Str("value", value.String()).Msg("Cannot export decimal as float")
		return
	}
	g.Set(f)
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		c.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath keeps the first two segments so path parameters do not explode label cardinality.
func canonicalPath(path string) string {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return "/"
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) > 2 {
		segments = segments[:2]
	}
	return "/" + strings.Join(segments, "/")
}
