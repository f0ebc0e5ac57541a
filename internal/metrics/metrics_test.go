package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestDispatch_RecordCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewDispatch(reg)
	require.NoError(t, err)

	m.RecordCycle("assigned", 3, 2, 2*time.Second)
	m.RecordCycle("expired", 2, 0, 10*time.Second)
	m.RecordCycle("no_couriers", 0, 0, time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("assigned")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("expired")))
	require.Equal(t, 5.0, testutil.ToFloat64(m.offers))
	require.Equal(t, 2.0, testutil.ToFloat64(m.acceptances))
	require.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNewDispatch_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewDispatch(reg)
	require.NoError(t, err)
	second, err := NewDispatch(reg)
	require.NoError(t, err)

	second.RecordCycle("assigned", 1, 1, time.Second)
	require.Equal(t, 1.0, testutil.ToFloat64(first.cycles.WithLabelValues("assigned")))
}

func TestDispatch_NilIsNoop(t *testing.T) {
	var m *Dispatch
	require.NotPanics(t, func() { m.RecordCycle("assigned", 1, 1, time.Second) })
}

func TestAudit_RecordCheck(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewAudit(reg)
	require.NoError(t, err)

	a.RecordCheck(nil)
	a.RecordCheck([]string{"multiple_winners", "open_bids"})
	a.RecordCheck([]string{"open_bids"})

	require.Equal(t, 1.0, testutil.ToFloat64(a.checked.WithLabelValues("ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(a.checked.WithLabelValues("violation")))
	require.Equal(t, 2.0, testutil.ToFloat64(a.violations.WithLabelValues("open_bids")))

	var none *Audit
	require.NotPanics(t, func() { none.RecordCheck([]string{"x"}) })
}
