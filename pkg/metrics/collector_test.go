package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeCacheSizer struct {
	keys []string
}

func (f fakeCacheSizer) Keys(context.Context) ([]string, error) {
	return f.keys, nil
}

func TestCacheCollectorReportsLiveCount(t *testing.T) {
	collector := NewCacheCollector(fakeCacheSizer{keys: []string{"a", "b", "c"}})

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(collector))

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, metricFamilies, 1)
	require.Equal(t, float64(3), metricFamilies[0].GetMetric()[0].GetGauge().GetValue())
}
