package world

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics Prometheus-метрики миров. Один экземпляр на процесс, метки по имени мира.
type Metrics struct {
	chunksLoaded  *prometheus.GaugeVec
	chunkLoads    *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
	chunksSent    *prometheus.CounterVec
	chunksEvicted *prometheus.CounterVec
	players       *prometheus.GaugeVec
	joins         *prometheus.CounterVec
	tickDuration  *prometheus.HistogramVec
}

// NewMetrics создаёт метрики и регистрирует их в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		chunksLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "graphite",
			Subsystem: "world",
			Name:      "chunks_loaded",
			Help:      "Чанков в памяти в статусе Loaded",
		}, []string{"world"}),
		chunkLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphite",
			Subsystem: "world",
			Name:      "chunk_loads_total",
			Help:      "Попытки загрузки чанков по результату",
		}, []string{"world", "result"}),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphite",
			Subsystem: "world",
			Name:      "chunk_load_seconds",
			Help:      "Время загрузки чанка вместе с повторами",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"world"}),
		chunksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphite",
			Subsystem: "world",
			Name:      "chunks_sent_total",
			Help:      "Отправленные клиентам пакеты с данными чанков",
		}, []string{"world"}),
		chunksEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphite",
			Subsystem: "world",
			Name:      "chunks_evicted_total",
			Help:      "Чанки, выгруженные из памяти",
		}, []string{"world"}),
		players: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "graphite",
			Subsystem: "world",
			Name:      "players",
			Help:      "Игроков в мире",
		}, []string{"world"}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphite",
			Subsystem: "world",
			Name:      "joins_total",
			Help:      "Входы в мир по результату",
		}, []string{"world", "result"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphite",
			Subsystem: "world",
			Name:      "tick_seconds",
			Help:      "Длительность тика мира",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"world"}),
	}

	reg.MustRegister(m.chunksLoaded, m.chunkLoads, m.loadDuration, m.chunksSent,
		m.chunksEvicted, m.players, m.joins, m.tickDuration)
	return m
}

// worldMetrics метрики с привязанной меткой мира
type worldMetrics struct {
	loaded       prometheus.Gauge
	loadOK       prometheus.Counter
	loadRetry    prometheus.Counter
	loadFailed   prometheus.Counter
	loadDuration prometheus.Observer
	sent         prometheus.Counter
	evicted      prometheus.Counter
	players      prometheus.Gauge
	joinOK       prometheus.Counter
	joinAborted  prometheus.Counter
	tick         prometheus.Observer
}

func (m *Metrics) forWorld(name string) worldMetrics {
	return worldMetrics{
		loaded:       m.chunksLoaded.WithLabelValues(name),
		loadOK:       m.chunkLoads.WithLabelValues(name, "ok"),
		loadRetry:    m.chunkLoads.WithLabelValues(name, "retry"),
		loadFailed:   m.chunkLoads.WithLabelValues(name, "failed"),
		loadDuration: m.loadDuration.WithLabelValues(name),
		sent:         m.chunksSent.WithLabelValues(name),
		evicted:      m.chunksEvicted.WithLabelValues(name),
		players:      m.players.WithLabelValues(name),
		joinOK:       m.joins.WithLabelValues(name, "ok"),
		joinAborted:  m.joins.WithLabelValues(name, "aborted"),
		tick:         m.tickDuration.WithLabelValues(name),
	}
}
