// internal/metrics/metrics.go
package metrics

import (
	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nightstake"

// MatchCollector implements game.Metrics on top of prometheus.
type MatchCollector struct {
	created        prometheus.Counter
	started        prometheus.Counter
	ended          *prometheus.CounterVec
	phases         *prometheus.CounterVec
	active         prometheus.Gauge
	forced         *prometheus.CounterVec
	settleFailures prometheus.Counter
}

var _ game.Metrics = (*MatchCollector)(nil)

func NewMatchCollector(registerer prometheus.Registerer) *MatchCollector {
	mc := &MatchCollector{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_created_total",
			Help:      "matches created",
		}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_started_total",
			Help:      "matches that left the lobby",
		}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_ended_total",
			Help:      "matches that reached a terminal state, by win reason",
		}, []string{"reason"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phases_entered_total",
			Help:      "phase transitions, by target phase",
		}, []string{"phase"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "matches_in_memory",
			Help:      "matches currently held by the orchestrator",
		}),
		forced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "forced_total",
			Help:      "interventions by the stuck match monitor, by kind",
		}, []string{"kind"}),
		settleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "settlement_failures_total",
			Help:      "settlement submissions that failed and need an out of band retry",
		}),
	}
	registerer.MustRegister(mc.created, mc.started, mc.ended, mc.phases, mc.active, mc.forced, mc.settleFailures)
	return mc
}

func (mc *MatchCollector) MatchCreated() { mc.created.Inc() }
func (mc *MatchCollector) MatchStarted() { mc.started.Inc() }

func (mc *MatchCollector) MatchEnded(reason game.WinReason) {
	mc.ended.WithLabelValues(string(reason)).Inc()
}

func (mc *MatchCollector) PhaseEntered(p game.Phase) {
	mc.phases.WithLabelValues(p.String()).Inc()
}

func (mc *MatchCollector) ActiveMatches(n int) { mc.active.Set(float64(n)) }

func (mc *MatchCollector) StuckMatchForced(kind string) {
	mc.forced.WithLabelValues(kind).Inc()
}

func (mc *MatchCollector) SettlementFailed() { mc.settleFailures.Inc() }
