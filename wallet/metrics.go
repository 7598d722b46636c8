package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/topocare/iota-pay-on-production/wallet/pool"
)

// Metrics of the wallet. All methods are safe on nil
type Metrics struct {
	state            prometheus.Gauge
	stages           *prometheus.GaugeVec
	bundles          *prometheus.CounterVec
	attachRetries    prometheus.Counter
	promotions       prometheus.Counter
	reattachments    prometheus.Counter
	rollbackFailures prometheus.Counter
	poolBalance      *prometheus.GaugeVec
	poolCount        *prometheus.GaugeVec
}

// NewMetrics creates wallet metrics and registers them with reg unless it is nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	ret := &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iotawallet_state",
			Help: "Current wallet state: 0 noFunding, 1 noFundingAndTransactionOngoing, 2 allFundingInConfirmation, " +
				"3 preparingRefunding, 4 refunding, 5 available, 6 availableAndTransactionOngoing",
		}),
		stages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "iotawallet_bundles_in_stage",
			Help: "Number of bundles before attach, at attach and waiting for confirmation",
		}, []string{"stage"}),
		bundles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iotawallet_bundle_counter",
			Help: "Increases every time a bundle is confirmed, abandoned or stalled",
		}, []string{"kind", "result"}),
		attachRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotawallet_attach_retry_counter",
			Help: "Increases every time attach is retried with bigger depth",
		}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotawallet_promotion_counter",
			Help: "Increases every time an unconfirmed bundle is promoted",
		}),
		reattachments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotawallet_reattachment_counter",
			Help: "Increases every time an unconfirmed bundle is reattached",
		}),
		rollbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotawallet_resolve_failure_counter",
			Help: "Increases every time commit or rollback of a reservation fails",
		}),
		poolBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "iotawallet_pool_balance",
			Help: "Balance of the pool by view: current, incoming, outgoing",
		}, []string{"pool", "view"}),
		poolCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "iotawallet_pool_addresses",
			Help: "Number of addresses of the pool by view: current, incoming, outgoing, spent",
		}, []string{"pool", "view"}),
	}
	if reg != nil {
		reg.MustRegister(
			ret.state,
			ret.stages,
			ret.bundles,
			ret.attachRetries,
			ret.promotions,
			ret.reattachments,
			ret.rollbackFailures,
			ret.poolBalance,
			ret.poolCount,
		)
	}
	return ret
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *Metrics) stageChanged(ev StageEvent) {
	if m == nil || ev.Stage == StageRefund {
		return
	}
	m.stages.WithLabelValues(ev.Stage.String()).Set(float64(ev.New))
}

func (m *Metrics) bundleDone(kind Kind, result string) {
	if m == nil {
		return
	}
	m.bundles.WithLabelValues(kind.String(), result).Inc()
}

func (m *Metrics) attachRetried() {
	if m == nil {
		return
	}
	m.attachRetries.Inc()
}

func (m *Metrics) promoted() {
	if m == nil {
		return
	}
	m.promotions.Inc()
}

func (m *Metrics) reattached() {
	if m == nil {
		return
	}
	m.reattachments.Inc()
}

func (m *Metrics) resolveFailed() {
	if m == nil {
		return
	}
	m.rollbackFailures.Inc()
}

func (m *Metrics) observePools(stats ...pool.Stats) {
	if m == nil {
		return
	}
	for _, st := range stats {
		for view, meta := range map[string]pool.Meta{
			"current":  st.Current,
			"incoming": st.Incoming,
			"outgoing": st.Outgoing,
		} {
			m.poolBalance.WithLabelValues(st.Name, view).Set(float64(meta.Balance))
			m.poolCount.WithLabelValues(st.Name, view).Set(float64(meta.Count))
		}
		// only the receiving pool reuses spent addresses
		if st.Spent > 0 {
			m.poolCount.WithLabelValues(st.Name, "spent").Set(float64(st.Spent))
		}
	}
}
