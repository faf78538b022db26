package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ecard"

var (
	cardExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "card",
			Name:      "exports_total",
			Help:      "名片导出结果计数。",
		},
		[]string{"face", "status"},
	)

	captureDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "card",
			Name:      "capture_duration_seconds",
			Help:      "无头浏览器截图耗时（秒）。",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"face"},
	)

	cardViewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "card",
			Name:      "views_total",
			Help:      "公开名片页与二维码的访问次数。",
		},
		[]string{"kind"},
	)
)

// ObserveExport 记录一次导出的最终状态。
func ObserveExport(face, status string) {
	cardExportsTotal.WithLabelValues(face, status).Inc()
}

// ObserveCapture 记录截图耗时。
func ObserveCapture(face string, elapsed time.Duration) {
	captureDuration.WithLabelValues(face).Observe(elapsed.Seconds())
}

// ObserveView 记录公开访问，kind 取 share / qr / json。
func ObserveView(kind string) {
	cardViewsTotal.WithLabelValues(kind).Inc()
}
