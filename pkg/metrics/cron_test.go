package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labelsOf(m *dto.Metric) map[string]string {
	out := map[string]string{}
	for _, l := range m.GetLabel() {
		out[l.GetName()] = l.GetValue()
	}
	return out
}

func TestCronJobMetricsRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_760_000_000, 0) }

	m.ObserveDuration("pending-order-expiry", 300*time.Millisecond)
	m.IncSuccess("pending-order-expiry")
	m.IncFailure("pending-order-expiry")
	m.IncFailure("")

	families := gather(t, reg)

	runs := families["cron_job_runs_total"]
	require.NotNil(t, runs)
	counts := map[string]float64{}
	for _, metric := range runs.GetMetric() {
		l := labelsOf(metric)
		counts[l["job"]+"/"+l["result"]] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{
		"pending-order-expiry/success": 1,
		"pending-order-expiry/failure": 1,
		"unknown/failure":              1,
	}, counts)

	hist := families["cron_job_duration_seconds"]
	require.NotNil(t, hist)
	assert.InDelta(t, 0.3, hist.GetMetric()[0].GetHistogram().GetSampleSum(), 0.001)

	last := families["cron_job_last_success_timestamp_seconds"]
	require.NotNil(t, last)
	assert.Equal(t, float64(1_760_000_000), last.GetMetric()[0].GetGauge().GetValue())
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	var m *CronJobMetrics
	assert.Nil(t, NewCronJobMetrics(nil))
	assert.NotPanics(t, func() {
		m.ObserveDuration("x", time.Second)
		m.IncSuccess("x")
		m.IncFailure("x")
	})
}
