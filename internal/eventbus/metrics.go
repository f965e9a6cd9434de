package eventbus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsExporter переносит Stats шины в Prometheus. Stats хранит нарастающие
// итоги, поэтому счётчики получают разницу с прошлым опросом.
type MetricsExporter struct {
	bus  EventBus
	prev Stats

	published   prometheus.Counter
	consumed    prometheus.Counter
	dropped     prometheus.Counter
	inflight    prometheus.Gauge
	subscribers prometheus.Gauge
}

// NewMetricsExporter регистрирует метрики graphite_eventbus_* в reg
func NewMetricsExporter(bus EventBus, reg prometheus.Registerer) *MetricsExporter {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: "graphite", Subsystem: "eventbus", Name: name, Help: help}
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "graphite", Subsystem: "eventbus", Name: name, Help: help})
	}
	me := &MetricsExporter{
		bus:         bus,
		published:   prometheus.NewCounter(opts("published_total", "Опубликованные события мира.")),
		consumed:    prometheus.NewCounter(opts("consumed_total", "События, обработанные подписчиками.")),
		dropped:     prometheus.NewCounter(opts("dropped_total", "События, потерянные при переполнении или сбое.")),
		inflight:    gauge("inflight", "События в очередях подписчиков."),
		subscribers: gauge("subscribers", "Активные подписки."),
	}
	reg.MustRegister(me.published, me.consumed, me.dropped, me.inflight, me.subscribers)
	return me
}

// Run опрашивает шину каждые interval до отмены ctx
func (m *MetricsExporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.collect()
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *MetricsExporter) collect() {
	st := m.bus.Metrics()
	if st.Published > m.prev.Published {
		m.published.Add(float64(st.Published - m.prev.Published))
	}
	if st.Consumed > m.prev.Consumed {
		m.consumed.Add(float64(st.Consumed - m.prev.Consumed))
	}
	if st.Dropped > m.prev.Dropped {
		m.dropped.Add(float64(st.Dropped - m.prev.Dropped))
	}
	m.inflight.Set(float64(st.InFlight))
	m.subscribers.Set(float64(st.Subscribers))
	m.prev = st
}
