// Package metricsregistry adapts a github.com/luxfi/geth/metrics registry
// of go-ethereum style meters and gauges into a prometheus.Gatherer, so
// the relayer's own counters can be exposed through the standard
// prometheus/client_golang HTTP handler.
package metricsregistry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	gethmetrics "github.com/luxfi/geth/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/luxfi/privacy-relayer/internal/model"
)

// Registry owns the relayer's metric instruments and exposes them both
// as a prometheus.Gatherer (served by HealthAPI's /metrics) and as typed
// accessors read by the orchestrator's periodic metrics log.
type Registry struct {
	inner gethmetrics.Registry

	perChain map[model.ChainID]*chainMetrics
}

type chainMetrics struct {
	queueDepth        gethmetrics.Gauge
	executionRate     gethmetrics.Meter
	walletCount       gethmetrics.Gauge
	dlqSize           gethmetrics.Gauge
	duplicatesSkipped gethmetrics.Counter
	sent              gethmetrics.Counter
	confirmed         gethmetrics.Counter
	failed            gethmetrics.Counter
}

func New() *Registry {
	return &Registry{inner: gethmetrics.NewRegistry(), perChain: make(map[model.ChainID]*chainMetrics)}
}

func (r *Registry) forChain(chainID model.ChainID) *chainMetrics {
	if cm, ok := r.perChain[chainID]; ok {
		return cm
	}
	prefix := fmt.Sprintf("relayer/%s/", chainID)
	cm := &chainMetrics{
		queueDepth:        gethmetrics.NewRegisteredGauge(prefix+"queue_depth", r.inner),
		executionRate:     gethmetrics.NewRegisteredMeter(prefix+"execution_rate", r.inner),
		walletCount:       gethmetrics.NewRegisteredGauge(prefix+"wallet_count", r.inner),
		dlqSize:           gethmetrics.NewRegisteredGauge(prefix+"dlq_size", r.inner),
		duplicatesSkipped: gethmetrics.NewRegisteredCounter(prefix+"duplicates_skipped", r.inner),
		sent:              gethmetrics.NewRegisteredCounter(prefix+"sent", r.inner),
		confirmed:         gethmetrics.NewRegisteredCounter(prefix+"confirmed", r.inner),
		failed:            gethmetrics.NewRegisteredCounter(prefix+"failed", r.inner),
	}
	r.perChain[chainID] = cm
	return cm
}

func (r *Registry) SetQueueDepth(chainID model.ChainID, depth int64) {
	r.forChain(chainID).queueDepth.Update(depth)
}

func (r *Registry) MarkExecutionCompleted(chainID model.ChainID) {
	r.forChain(chainID).executionRate.Mark(1)
}

func (r *Registry) SetWalletCount(chainID model.ChainID, count int64) {
	r.forChain(chainID).walletCount.Update(count)
}

func (r *Registry) SetDLQSize(chainID model.ChainID, size int64) {
	r.forChain(chainID).dlqSize.Update(size)
}

func (r *Registry) IncDuplicatesSkipped(chainID model.ChainID) {
	r.forChain(chainID).duplicatesSkipped.Inc(1)
}

func (r *Registry) IncSent(chainID model.ChainID)      { r.forChain(chainID).sent.Inc(1) }
func (r *Registry) IncConfirmed(chainID model.ChainID)  { r.forChain(chainID).confirmed.Inc(1) }
func (r *Registry) IncFailed(chainID model.ChainID)     { r.forChain(chainID).failed.Inc(1) }

// ExecutionRate1 returns the chain's 1-minute EWMA completed-intents/sec
// rate, used to derive the throughput estimate T = min(lambda, k*mu).
func (r *Registry) ExecutionRate1(chainID model.ChainID) float64 {
	return r.forChain(chainID).executionRate.Rate1()
}

func (r *Registry) QueueDepth(chainID model.ChainID) int64 {
	return r.forChain(chainID).queueDepth.Snapshot().Value()
}

func (r *Registry) DLQSize(chainID model.ChainID) int64 {
	return r.forChain(chainID).dlqSize.Snapshot().Value()
}

var _ prometheus.Gatherer = (*Registry)(nil)

// Gather implements prometheus.Gatherer by translating every registered
// geth-metrics instrument into a prometheus MetricFamily.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	var names []string
	r.inner.Each(func(name string, _ interface{}) { names = append(names, name) })
	sort.Strings(names)

	mfs := make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		mf, err := metricFamily(r.inner, name)
		switch {
		case errors.Is(err, errMetricSkip):
			continue
		case err != nil:
			return nil, err
		}
		mfs = append(mfs, mf)
	}
	return mfs, nil
}

var errMetricSkip = errors.New("metric skipped")

func ptrTo[T any](x T) *T { return &x }

func metricFamily(registry gethmetrics.Registry, name string) (*dto.MetricFamily, error) {
	metric := registry.Get(name)
	promName := strings.ReplaceAll(name, "/", "_")
	if metric == nil {
		return nil, fmt.Errorf("%w: %q metric is nil", errMetricSkip, promName)
	}

	switch m := metric.(type) {
	case gethmetrics.Counter:
		return &dto.MetricFamily{
			Name: &promName,
			Type: dto.MetricType_COUNTER.Enum(),
			Metric: []*dto.Metric{{
				Counter: &dto.Counter{Value: ptrTo(float64(m.Snapshot().Count()))},
			}},
		}, nil
	case gethmetrics.Gauge:
		return &dto.MetricFamily{
			Name: &promName,
			Type: dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{
				Gauge: &dto.Gauge{Value: ptrTo(float64(m.Snapshot().Value()))},
			}},
		}, nil
	case gethmetrics.Meter:
		return &dto.MetricFamily{
			Name: &promName,
			Type: dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{
				Gauge: &dto.Gauge{Value: ptrTo(float64(m.Snapshot().Count()))},
			}},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q has unsupported metric type %T", errMetricSkip, promName, metric)
	}
}
