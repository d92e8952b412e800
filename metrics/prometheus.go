package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lrtvault"

var (
	// Singleton collector
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds all vault node metrics
type Collector struct {
	// Operation metrics
	OperationsTotal  *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	EventsTotal      *prometheus.CounterVec

	// Vault ledger
	VaultAssets    *prometheus.GaugeVec
	Ratio          *prometheus.GaugeVec
	ShareSupply    prometheus.Gauge
	CumulativeLoss prometheus.Gauge
	CurrentEpoch   prometheus.Gauge

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec

	// API metrics
	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
	APIErrorsTotal    *prometheus.CounterVec
	RateLimitHits     *prometheus.CounterVec

	// System metrics
	Height        prometheus.Gauge
	CommitLatency prometheus.Histogram
}

// GetCollector returns the singleton metrics collector
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

func newCollector() *Collector {
	c := &Collector{}

	c.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operations",
			Name:      "total",
			Help:      "Operations executed, by message type and outcome",
		},
		[]string{"type", "status"},
	)

	c.OperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "operations",
			Name:      "latency_ms",
			Help:      "Operation execution latency in milliseconds, commit included",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"type"},
	)

	c.EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "total",
			Help:      "Committed module events by type",
		},
		[]string{"type"},
	)

	c.VaultAssets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "assets",
			Help:      "Vault asset buckets in base units",
		},
		[]string{"bucket"},
	)

	c.Ratio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "ratio",
			Help:      "Assets per share (adjusted, backing)",
		},
		[]string{"kind"},
	)

	c.ShareSupply = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "share_supply",
			Help:      "Outstanding claim token supply",
		},
	)

	c.CumulativeLoss = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "cumulative_loss",
			Help:      "Unbonding funds written off as lost",
		},
	)

	c.CurrentEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "current_epoch",
			Help:      "Id of the open withdrawal epoch",
		},
	)

	c.WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of active WebSocket connections",
		},
	)

	c.WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "WebSocket messages sent by channel",
		},
		[]string{"channel"},
	)

	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total API requests",
		},
		[]string{"method", "path", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_latency_ms",
			Help:      "API request latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"method", "path"},
	)

	c.APIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "API errors by codespace and code",
		},
		[]string{"codespace", "code"},
	)

	c.RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"path"},
	)

	c.Height = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "height",
			Help:      "Latest committed store version",
		},
	)

	c.CommitLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "commit_latency_ms",
			Help:      "Store commit latency in milliseconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	c.registerAll()

	return c
}

func (c *Collector) registerAll() {
	prometheus.MustRegister(c.OperationsTotal)
	prometheus.MustRegister(c.OperationLatency)
	prometheus.MustRegister(c.EventsTotal)

	prometheus.MustRegister(c.VaultAssets)
	prometheus.MustRegister(c.Ratio)
	prometheus.MustRegister(c.ShareSupply)
	prometheus.MustRegister(c.CumulativeLoss)
	prometheus.MustRegister(c.CurrentEpoch)

	prometheus.MustRegister(c.WSConnectionsActive)
	prometheus.MustRegister(c.WSMessagesTotal)

	prometheus.MustRegister(c.APIRequestsTotal)
	prometheus.MustRegister(c.APIRequestLatency)
	prometheus.MustRegister(c.APIErrorsTotal)
	prometheus.MustRegister(c.RateLimitHits)

	prometheus.MustRegister(c.Height)
	prometheus.MustRegister(c.CommitLatency)
}

// ============ Recording Helpers ============

// VaultSnapshot is the ledger state exported as gauges
type VaultSnapshot struct {
	Free           float64
	Delegated      float64
	InFlight       float64
	Obligations    float64
	RedeemReserved float64
	ShareSupply    float64
	CumulativeLoss float64
	AdjustedRatio  float64
	BackingRatio   float64
	CurrentEpoch   uint64
}

// RecordOperation records one executed operation
func (c *Collector) RecordOperation(msgType string, ok bool, latencyMs float64) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	c.OperationsTotal.WithLabelValues(msgType, status).Inc()
	c.OperationLatency.WithLabelValues(msgType).Observe(latencyMs)
}

// RecordEvent counts a committed module event
func (c *Collector) RecordEvent(eventType string) {
	c.EventsTotal.WithLabelValues(eventType).Inc()
}

// RecordVault updates the ledger gauges
func (c *Collector) RecordVault(s VaultSnapshot) {
	c.VaultAssets.WithLabelValues("free").Set(s.Free)
	c.VaultAssets.WithLabelValues("delegated").Set(s.Delegated)
	c.VaultAssets.WithLabelValues("in_flight").Set(s.InFlight)
	c.VaultAssets.WithLabelValues("obligations").Set(s.Obligations)
	c.VaultAssets.WithLabelValues("redeem_reserved").Set(s.RedeemReserved)
	c.Ratio.WithLabelValues("adjusted").Set(s.AdjustedRatio)
	c.Ratio.WithLabelValues("backing").Set(s.BackingRatio)
	c.ShareSupply.Set(s.ShareSupply)
	c.CumulativeLoss.Set(s.CumulativeLoss)
	c.CurrentEpoch.Set(float64(s.CurrentEpoch))
}

// RecordCommit records a store commit
func (c *Collector) RecordCommit(height int64, latencyMs float64) {
	c.Height.Set(float64(height))
	c.CommitLatency.Observe(latencyMs)
}

// RecordAPIRequest records an API request
func (c *Collector) RecordAPIRequest(method, path, status string, latencyMs float64) {
	c.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, path).Observe(latencyMs)
}

// RecordAPIError records an error returned to a client
func (c *Collector) RecordAPIError(codespace string, code uint32) {
	c.APIErrorsTotal.WithLabelValues(codespace, strconv.FormatUint(uint64(code), 10)).Inc()
}

// RecordRateLimitHit records a request rejected by the limiter
func (c *Collector) RecordRateLimitHit(path string) {
	c.RateLimitHits.WithLabelValues(path).Inc()
}

// RecordWSConnection records WebSocket connection changes
func (c *Collector) RecordWSConnection(delta int) {
	c.WSConnectionsActive.Add(float64(delta))
}

// RecordWSMessage records a WebSocket message
func (c *Collector) RecordWSMessage(channel string) {
	c.WSMessagesTotal.WithLabelValues(channel).Inc()
}

// ============ HTTP Handler ============

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for measuring latency
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed time in milliseconds
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
