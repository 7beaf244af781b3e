// Package metrics exposes Prometheus metrics for the cost engine. Recorder
// implements the observer interfaces of calculator, tariffcache and quote.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/warp/energy-engine/energy"
)

const (
	metricPrefix = "energy_engine_"

	resultSuccess = "success"
)

// Recorder holds the engine's collectors.
type Recorder struct {
	calculationsTotal  *prometheus.CounterVec
	calculationLatency *prometheus.HistogramVec
	estimatesTotal     *prometheus.CounterVec
	cacheLookupsTotal  *prometheus.CounterVec
	quotesTotal        *prometheus.CounterVec
	exportsTotal       *prometheus.CounterVec
	exportLatency      *prometheus.HistogramVec
	tariffReloadsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		calculationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "calculations_total",
				Help: "Total calculations by contract type and result",
			},
			[]string{"contract_type", "result"},
		),
		calculationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "calculation_latency_seconds",
				Help:    "Calculation latency in seconds, tariff resolution included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"contract_type"},
		),
		estimatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "network_fee_estimates_total",
				Help: "Calculations that used an estimated grootverbruik network fee",
			},
			[]string{"commodity"},
		),
		cacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tariff_cache_lookups_total",
				Help: "Tariff cache lookups by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		quotesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "quotes_total",
				Help: "Quote operations by action and result",
			},
			[]string{"action", "result"},
		),
		exportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "quote_exports_total",
				Help: "Quote exports by format and result",
			},
			[]string{"format", "result"},
		),
		exportLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "quote_export_latency_seconds",
				Help:    "Quote export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		),
		tariffReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tariff_reloads_total",
				Help: "Tariff file reloads by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		r.calculationsTotal,
		r.calculationLatency,
		r.estimatesTotal,
		r.cacheLookupsTotal,
		r.quotesTotal,
		r.exportsTotal,
		r.exportLatency,
		r.tariffReloadsTotal,
	)
	return r
}

// result maps an error code onto a label value. The empty code is success.
func result(code string) string {
	if code == "" {
		return resultSuccess
	}
	return code
}

// ObserveCalculation implements calculator.Observer.
func (r *Recorder) ObserveCalculation(contractType energy.ContractType, code string, duration time.Duration) {
	r.calculationsTotal.WithLabelValues(string(contractType), result(code)).Inc()
	r.calculationLatency.WithLabelValues(string(contractType)).Observe(duration.Seconds())
}

// ObserveEstimate implements calculator.Observer.
func (r *Recorder) ObserveEstimate(commodity energy.Commodity) {
	r.estimatesTotal.WithLabelValues(string(commodity)).Inc()
}

// ObserveCacheLookup implements tariffcache.Observer.
func (r *Recorder) ObserveCacheLookup(kind string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheLookupsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveQuote implements quote.Observer.
func (r *Recorder) ObserveQuote(action, code string) {
	r.quotesTotal.WithLabelValues(action, result(code)).Inc()
}

// ObserveExport records one quote export.
func (r *Recorder) ObserveExport(format, code string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	r.exportsTotal.WithLabelValues(format, result(code)).Inc()
	r.exportLatency.WithLabelValues(format).Observe(duration.Seconds())
}

// ObserveTariffReload records one reload of the tariff file.
func (r *Recorder) ObserveTariffReload(err error) {
	res := resultSuccess
	if err != nil {
		res = "error"
	}
	r.tariffReloadsTotal.WithLabelValues(res).Inc()
}
