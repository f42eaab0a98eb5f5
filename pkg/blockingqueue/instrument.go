package blockingqueue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors an instrumented queue reports to. The wait
// histograms measure how long Put and Take were blocked, which is where
// backpressure shows up.
type Metrics struct {
	Depth    prometheus.Gauge
	Capacity prometheus.Gauge
	Puts     prometheus.Counter
	Takes    prometheus.Counter
	PutWait  prometheus.Histogram
	TakeWait prometheus.Histogram
}

// NewMetrics registers the queue collectors with reg under the given queue name.
func NewMetrics(reg prometheus.Registerer, name string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"queue": name}
	waitBuckets := prometheus.ExponentialBuckets(0.000001, 4, 12) // 1µs to ~4s

	return &Metrics{
		Depth: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "firegex_queue_depth",
			Help:        "Number of elements currently held by the queue",
			ConstLabels: labels,
		}),
		Capacity: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "firegex_queue_capacity",
			Help:        "Maximum number of elements the queue holds",
			ConstLabels: labels,
		}),
		Puts: factory.NewCounter(prometheus.CounterOpts{
			Name:        "firegex_queue_puts_total",
			Help:        "Total number of completed Put calls",
			ConstLabels: labels,
		}),
		Takes: factory.NewCounter(prometheus.CounterOpts{
			Name:        "firegex_queue_takes_total",
			Help:        "Total number of completed Take calls",
			ConstLabels: labels,
		}),
		PutWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "firegex_queue_put_wait_seconds",
			Help:        "Time spent inside Put, including time blocked on a full queue",
			ConstLabels: labels,
			Buckets:     waitBuckets,
		}),
		TakeWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "firegex_queue_take_wait_seconds",
			Help:        "Time spent inside Take, including time blocked on an empty queue",
			ConstLabels: labels,
			Buckets:     waitBuckets,
		}),
	}
}

type instrumented[T any] struct {
	Queue[T]
	m *Metrics
}

// Instrument wraps q so every Put and Take is reported to m. The wrapper keeps
// the blocking behaviour of q unchanged.
func Instrument[T any](q Queue[T], m *Metrics) Queue[T] {
	m.Capacity.Set(float64(q.Cap()))
	m.Depth.Set(float64(q.Len()))
	return &instrumented[T]{Queue: q, m: m}
}

func (q *instrumented[T]) Put(v T) {
	start := time.Now()
	q.Queue.Put(v)
	q.m.PutWait.Observe(time.Since(start).Seconds())
	q.m.Puts.Inc()
	q.m.Depth.Inc()
}

func (q *instrumented[T]) Take() T {
	start := time.Now()
	v := q.Queue.Take()
	q.m.TakeWait.Observe(time.Since(start).Seconds())
	q.m.Takes.Inc()
	q.m.Depth.Dec()
	return v
}
