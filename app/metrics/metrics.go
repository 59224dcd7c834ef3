package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	VideoDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "video_dispatch_total",
		Help: "Video generation dispatcher ticks by outcome",
	}, []string{"outcome"})
	VideoCandidateSkips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "video_dispatch_candidate_skips_total",
		Help: "Candidates skipped because their background could not be resolved",
	})
	VideoCallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "video_callback_total",
		Help: "Video generation callbacks by reported status and response code",
	}, []string{"status", "code"})
	VideoGeneratingInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "video_generating_inflight",
		Help: "Podcasts currently in the generating state",
	})
)

// Register 注册全部指标，可重复调用
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			VideoDispatchTotal,
			VideoCandidateSkips,
			VideoCallbackTotal,
			VideoGeneratingInFlight,
		)
	})
}

// Handler 暴露 /metrics
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
