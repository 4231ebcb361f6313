package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is what the engine, the bus and the lock layer report.
type Metrics interface {
	IncContextsAdvanced(stream, outcome string, n int)
	ObserveTaskDuration(kind string, durationSeconds float64)
	IncRetriesScheduled(stream string)
	IncRetriesExhausted(stream string)
	IncBusRejected(class string)
	ObserveLockWait(durationSeconds float64)
	SetPublishers(n int)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncContextsAdvanced(string, string, int) {}
func (Noop) ObserveTaskDuration(string, float64)     {}
func (Noop) IncRetriesScheduled(string)              {}
func (Noop) IncRetriesExhausted(string)              {}
func (Noop) IncBusRejected(string)                   {}
func (Noop) ObserveLockWait(float64)                 {}
func (Noop) SetPublishers(int)                       {}

var _ Metrics = Noop{}
var _ Metrics = new(Prom)

type Prom struct {
	contextsAdvanced *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	retriesScheduled *prometheus.CounterVec
	retriesExhausted *prometheus.CounterVec
	busRejected      *prometheus.CounterVec
	lockWait         prometheus.Histogram
	publishers       prometheus.Gauge
}

// NewProm builds the collectors and registers them on reg.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		contextsAdvanced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contexts_advanced_total",
			Help:      "Flow contexts advanced by stream and outcome",
		}, []string{"stream", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution latency by task kind",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		retriesScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Retry records written by stream",
		}, []string{"stream"}),
		retriesExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_exhausted_total",
			Help:      "Contexts that ran out of retries by stream",
		}, []string{"stream"}),
		busRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_rejected_total",
			Help:      "Events rejected by a full bus queue by class",
		}, []string{"class"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring leases",
			Buckets:   prometheus.DefBuckets,
		}),
		publishers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publishers",
			Help:      "Live flow publishers in this process",
		}),
	}
	if reg != nil {
		reg.MustRegister(p.contextsAdvanced, p.taskDuration, p.retriesScheduled, p.retriesExhausted,
			p.busRejected, p.lockWait, p.publishers)
	}
	return p
}

func (p *Prom) IncContextsAdvanced(stream, outcome string, n int) {
	p.contextsAdvanced.WithLabelValues(stream, outcome).Add(float64(n))
}

func (p *Prom) ObserveTaskDuration(kind string, durationSeconds float64) {
	p.taskDuration.WithLabelValues(kind).Observe(durationSeconds)
}

func (p *Prom) IncRetriesScheduled(stream string) {
	p.retriesScheduled.WithLabelValues(stream).Inc()
}

func (p *Prom) IncRetriesExhausted(stream string) {
	p.retriesExhausted.WithLabelValues(stream).Inc()
}

func (p *Prom) IncBusRejected(class string) {
	p.busRejected.WithLabelValues(class).Inc()
}

func (p *Prom) ObserveLockWait(durationSeconds float64) {
	p.lockWait.Observe(durationSeconds)
}

func (p *Prom) SetPublishers(n int) {
	p.publishers.Set(float64(n))
}
