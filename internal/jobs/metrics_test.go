package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsRuns(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, metrics.Track("warm").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("warm").End(boom), boom)

	require.EqualValues(t, 1, testutil.ToFloat64(metrics.runs.WithLabelValues("warm", "success")))
	require.EqualValues(t, 1, testutil.ToFloat64(metrics.runs.WithLabelValues("warm", "failure")))
	require.EqualValues(t, 1, testutil.ToFloat64(metrics.failures.WithLabelValues("warm")))
}

func TestNilMetricsTrackerIsSafe(t *testing.T) {
	var metrics *Metrics

	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("warm").End(boom), boom)
	require.NoError(t, metrics.Track("warm").End(nil))
}
