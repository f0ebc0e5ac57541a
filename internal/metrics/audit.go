package metrics

import "github.com/prometheus/client_golang/prometheus"

// Audit counts checked outcomes and the violations found in them.
type Audit struct {
	checked    *prometheus.CounterVec
	violations *prometheus.CounterVec
}

func NewAudit(reg prometheus.Registerer) (*Audit, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	checked, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_outcomes_total",
		Help: "Audited job outcomes by result",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	violations, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_violations_total",
		Help: "Ledger violations by rule",
	}, []string{"rule"}))
	if err != nil {
		return nil, err
	}
	return &Audit{checked: checked, violations: violations}, nil
}

func (a *Audit) RecordCheck(rules []string) {
	if a == nil {
		return
	}
	if len(rules) == 0 {
		a.checked.WithLabelValues("ok").Inc()
		return
	}
	a.checked.WithLabelValues("violation").Inc()
	for _, r := range rules {
		a.violations.WithLabelValues(r).Inc()
	}
}
