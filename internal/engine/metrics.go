package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics agrupa os coletores do engine; métodos aceitam receiver nil
type Metrics struct {
	appends     *prometheus.CounterVec
	rejects     *prometheus.CounterVec
	matches     prometheus.Counter
	settlements *prometheus.CounterVec
	writeTime   *prometheus.HistogramVec
	chainValid  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		appends:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_appends_total", Help: "transações gravadas por kind"}, []string{"kind"}),
		rejects:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_rejections_total", Help: "operações rejeitadas por motivo"}, []string{"op", "reason"}),
		matches:     prometheus.NewCounter(prometheus.CounterOpts{Name: "bets_matched_total", Help: "pares de apostas casados"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "event_settlements_total", Help: "eventos liquidados/cancelados"}, []string{"outcome"}),
		writeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_write_duration_seconds",
			Help:    "tempo de cada operação de escrita, incluindo espera pelo lock",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		chainValid: prometheus.NewGauge(prometheus.GaugeOpts{Name: "ledger_chain_valid", Help: "1 se a última verificação passou"}),
	}
	reg.MustRegister(m.appends, m.rejects, m.matches, m.settlements, m.writeTime, m.chainValid)
	return m
}

func (m *Metrics) observeWrite(op string, started time.Time) {
	if m == nil {
		return
	}
	m.writeTime.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) appended(kind string) {
	if m == nil {
		return
	}
	m.appends.WithLabelValues(kind).Inc()
}

func (m *Metrics) rejected(op, reason string) {
	if m == nil {
		return
	}
	m.rejects.WithLabelValues(op, reason).Inc()
}

func (m *Metrics) matched() {
	if m == nil {
		return
	}
	m.matches.Inc()
}

func (m *Metrics) settled(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *Metrics) verified(valid bool) {
	if m == nil {
		return
	}
	if valid {
		m.chainValid.Set(1)
		return
	}
	m.chainValid.Set(0)
}
