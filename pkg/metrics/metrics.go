// Package metrics 服务运行指标，经/metrics暴露给Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions 按方向统计的活跃WebSocket会话数
	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "speechgate",
		Name:      "active_sessions",
		Help:      "Number of active websocket sessions by direction.",
	}, []string{"direction"})

	// AudioChunksProcessed 已处理的流式识别推理块数
	AudioChunksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "speechgate",
		Name:      "asr_chunks_processed_total",
		Help:      "Total number of streaming ASR chunks fed to the engine.",
	})

	// SynthesisDuration 合成请求耗时分布
	SynthesisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "speechgate",
		Name:      "tts_synthesis_duration_seconds",
		Help:      "Latency of synthesis requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode"})

	// RequestsTotal HTTP接口请求计数
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "speechgate",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by endpoint and status.",
	}, []string{"endpoint", "status"})

	// AsyncTasksTotal 异步合成任务按终态计数
	AsyncTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "speechgate",
		Name:      "async_tts_tasks_total",
		Help:      "Total async TTS tasks by final status.",
	}, []string{"status"})
)
