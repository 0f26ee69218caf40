// Package metrics exposes the bot's observability surface as
// Prometheus collectors. The core emits values here and never reads
// them back.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set is one bot instance's collectors. A nil *Set is a valid no-op
// sink so tests and tools can skip metrics entirely.
type Set struct {
	unclaimedFees0  prometheus.Gauge
	unclaimedFees1  prometheus.Gauge
	gasPriceGwei    prometheus.Gauge
	lastBlockTime   prometheus.Gauge
	lastRerangeTime prometheus.Gauge
	positionID      prometheus.Gauge
	balance0        prometheus.Gauge
	balance1        prometheus.Gauge
	nativeBalance   prometheus.Gauge

	txGasUSD  *prometheus.HistogramVec
	txLatency *prometheus.HistogramVec
}

// New registers a Set on reg. The width label keeps several bot
// instances apart on one registry.
func New(reg prometheus.Registerer, width string) *Set {
	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"width": width}, reg))
	return &Set{
		unclaimedFees0: f.NewGauge(prometheus.GaugeOpts{
			Name: "rerange_unclaimed_fees_token0",
			Help: "Unclaimed fees owed to the open position, token0 raw units.",
		}),
		unclaimedFees1: f.NewGauge(prometheus.GaugeOpts{
			Name: "rerange_unclaimed_fees_token1",
			Help: "Unclaimed fees owed to the open position, token1 raw units.",
		}),
		gasPriceGwei: f.NewGauge(prometheus.GaugeOpts{
			Name: "rerange_gas_price_gwei",
			Help: "Gas price observed at the last block.",
		}),
		lastBlockTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "rerange_last_block_unix",
			Help: "Unix time the last block was observed.",
		}),
		lastRerangeTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "rerange_last_rerange_unix",
			Help: "Unix time of the last re-range.",
		}),
		positionID: f.NewGauge(prometheus.GaugeOpts{
			Name: "rerange_position_id",
			Help: "Token id of the currently tracked position, 0 when none.",
		}),
		balance0: f.NewGauge(prometheus.GaugeOpts{
			Name: "rerange_wallet_token0_raw",
			Help: "Wallet token0 balance, raw units.",
		}),
		balance1: f.NewGauge(prometheus.GaugeOpts{
			Name: "rerange_wallet_token1_raw",
			Help: "Wallet token1 balance, raw units.",
		}),
		nativeBalance: f.NewGauge(prometheus.GaugeOpts{
			Name: "rerange_wallet_native_wei",
			Help: "Wallet native balance in wei.",
		}),
		txGasUSD: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rerange_tx_gas_usd",
			Help:    "Estimated USD gas cost per transaction.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"kind"}),
		txLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rerange_tx_latency_seconds",
			Help:    "Submission-to-confirmation latency per transaction.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"kind"}),
	}
}

func (s *Set) SetUnclaimedFees(amount0, amount1 float64) {
	if s == nil {
		return
	}
	s.unclaimedFees0.Set(amount0)
	s.unclaimedFees1.Set(amount1)
}

func (s *Set) SetGasPriceGwei(gwei float64) {
	if s == nil {
		return
	}
	s.gasPriceGwei.Set(gwei)
}

func (s *Set) BlockSeen(at time.Time) {
	if s == nil {
		return
	}
	s.lastBlockTime.Set(float64(at.Unix()))
}

func (s *Set) RerangeDone(at time.Time) {
	if s == nil {
		return
	}
	s.lastRerangeTime.Set(float64(at.Unix()))
}

func (s *Set) SetPositionID(id float64) {
	if s == nil {
		return
	}
	s.positionID.Set(id)
}

func (s *Set) SetBalances(amount0, amount1, native float64) {
	if s == nil {
		return
	}
	s.balance0.Set(amount0)
	s.balance1.Set(amount1)
	s.nativeBalance.Set(native)
}

func (s *Set) ObserveTx(kind string, gasUSD float64, latency time.Duration) {
	if s == nil {
		return
	}
	s.txGasUSD.WithLabelValues(kind).Observe(gasUSD)
	s.txLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

// Handler serves reg at /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
