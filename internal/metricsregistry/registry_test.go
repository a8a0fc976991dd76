package metricsregistry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/privacy-relayer/internal/model"
)

func TestGatherExposesRegisteredMetrics(t *testing.T) {
	r := New()
	r.SetQueueDepth(model.ChainSepolia, 3)
	r.IncSent(model.ChainSepolia)
	r.IncConfirmed(model.ChainSepolia)

	mfs, err := r.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)

	var sawQueueDepth bool
	for _, mf := range mfs {
		if mf.GetName() == "relayer_sepolia_queue_depth" {
			sawQueueDepth = true
			require.Equal(t, float64(3), mf.Metric[0].GetGauge().GetValue())
		}
	}
	require.True(t, sawQueueDepth)
}

func TestExecutionRateAndSizeAccessors(t *testing.T) {
	r := New()
	r.SetDLQSize(model.ChainAmoy, 2)
	require.Equal(t, int64(2), r.DLQSize(model.ChainAmoy))

	r.MarkExecutionCompleted(model.ChainAmoy)
	require.GreaterOrEqual(t, r.ExecutionRate1(model.ChainAmoy), float64(0))
}
