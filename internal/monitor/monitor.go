package monitor

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics represents all the application metrics
type Metrics struct {
	DownloadsTotal   *prometheus.CounterVec
	DownloadsFailed  *prometheus.CounterVec
	DownloadDuration *prometheus.HistogramVec
	DownloadSize     *prometheus.HistogramVec

	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	PolicyBlocks  *prometheus.CounterVec
	RateDenials   *prometheus.CounterVec
	DeliveredMsgs prometheus.Counter

	ActiveDownloads prometheus.Gauge
	Goroutines      prometheus.Gauge
	MemoryUsage     prometheus.Gauge
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		DownloadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_pipeline_downloads_total",
				Help: "Total number of download attempts",
			},
			[]string{"engine", "media_type"},
		),

		DownloadsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_pipeline_downloads_failed_total",
				Help: "Total number of failed downloads",
			},
			[]string{"engine", "media_type"},
		),

		DownloadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "media_pipeline_download_duration_seconds",
				Help:    "Time spent acquiring media",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"engine"},
		),

		DownloadSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "media_pipeline_download_size_bytes",
				Help:    "Size of acquired media",
				Buckets: []float64{1e6, 1e7, 1e8, 1e9, 2e9},
			},
			[]string{"media_type"},
		),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "media_pipeline_cache_hits_total",
			Help: "Requests answered by replaying cached deliveries",
		}),

		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "media_pipeline_cache_misses_total",
			Help: "Requests that required a fresh acquisition",
		}),

		PolicyBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_pipeline_policy_blocks_total",
				Help: "Requests refused by content policy",
			},
			[]string{"reason"},
		),

		RateDenials: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_pipeline_rate_denials_total",
				Help: "Requests refused by rate limiting",
			},
			[]string{"period"},
		),

		DeliveredMsgs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "media_pipeline_delivered_messages_total",
			Help: "Messages delivered to chats",
		}),

		ActiveDownloads: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "media_pipeline_active_downloads",
			Help: "Downloads currently in flight",
		}),

		Goroutines: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "media_pipeline_goroutines",
			Help: "Number of goroutines",
		}),

		MemoryUsage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "media_pipeline_memory_usage_bytes",
			Help: "Memory usage in bytes",
		}),
	}
}

// StartSystemCollector updates runtime gauges on an interval until the
// returned stop function is called.
func (m *Metrics) StartSystemCollector(interval time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.Goroutines.Set(float64(runtime.NumGoroutine()))
				var ms runtime.MemStats
				runtime.ReadMemStats(&ms)
				m.MemoryUsage.Set(float64(ms.Alloc))
			}
		}
	}()
	return func() { close(stop) }
}
