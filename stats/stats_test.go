package stats_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/go-libre/libre/stats"
)

func collectOne(t *testing.T, c prometheus.Collector) []*dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	var out []*dto.Metric
	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		out = append(out, &pb)
	}
	return out
}

func TestCounterAddAccumulates(t *testing.T) {
	r := stats.NewRegistry(nil)
	c := r.Counter("libre_test_events_total", "events processed")
	c.Add(3)
	c.Add(4)
	require.Equal(t, uint64(7), c.NbRequests())
}

func TestRegistryCollectsCounterAndRateMetrics(t *testing.T) {
	r := stats.NewRegistry(nil)
	c := r.Counter("libre_test_requests_total", "requests handled")
	c.Add(5)

	metrics := collectOne(t, r)
	// one counter value plus three rate-window gauges (10s/30s/300s).
	require.Len(t, metrics, 4)
	require.Equal(t, float64(5), metrics[0].GetCounter().GetValue())
}

func TestGaugeFuncsSamplesOnCollect(t *testing.T) {
	g := stats.NewGaugeFuncs()
	n := 0
	g.Add("libre_test_cache_size", "entries cached", func() int { return n })

	n = 2
	metrics := collectOne(t, g)
	require.Len(t, metrics, 1)
	require.Equal(t, float64(2), metrics[0].GetGauge().GetValue())
}
