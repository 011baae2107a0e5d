// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/modgate/internal/module"
)

// Metrics records the outcome of reconciliation.
type Metrics struct {
	ModulesTracked    prometheus.Gauge
	ModulesDisabled   prometheus.Gauge
	DisabledTypes     *prometheus.GaugeVec
	UnattributedTypes *prometheus.CounterVec
}

// NewMetrics creates and registers reconciliation metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ModulesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modgate_modules_tracked",
			Help: "Number of modules tracked in the module store",
		}),
		ModulesDisabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modgate_modules_disabled",
			Help: "Number of modules disabled at launch",
		}),
		DisabledTypes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modgate_disabled_types",
				Help: "Number of capability type IDs blocked this run by kind",
			},
			[]string{"kind"},
		),
		UnattributedTypes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modgate_unattributed_types_total",
				Help: "Capability types whose owner is not a tracked module, by kind",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(m.ModulesTracked)
	reg.MustRegister(m.ModulesDisabled)
	reg.MustRegister(m.DisabledTypes)
	reg.MustRegister(m.UnattributedTypes)

	return m
}

func (m *Metrics) observe(st *module.Store, d *Disabled) {
	if m == nil {
		return
	}
	disabled := 0
	st.Each(func(r *module.Record) {
		if !r.EnabledAtLaunch {
			disabled++
		}
	})
	m.ModulesTracked.Set(float64(st.Len()))
	m.ModulesDisabled.Set(float64(disabled))
	for _, k := range module.Kinds {
		m.DisabledTypes.WithLabelValues(k.String()).Set(float64(d.Len(k)))
	}
}

func (m *Metrics) unattributed(kind module.Kind) {
	if m == nil {
		return
	}
	m.UnattributedTypes.WithLabelValues(kind.String()).Inc()
}
