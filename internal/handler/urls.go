package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/code-100-precent/SpeechGate/internal/task"
	"github.com/code-100-precent/SpeechGate/pkg/auth"
	"github.com/code-100-precent/SpeechGate/pkg/config"
	"github.com/code-100-precent/SpeechGate/pkg/engine"
	"github.com/code-100-precent/SpeechGate/pkg/executor"
	"github.com/code-100-precent/SpeechGate/pkg/voiceclone"
)

// Handlers 聚合全部HTTP与WebSocket处理器的依赖
type Handlers struct {
	cfg       *config.Config
	db        *gorm.DB
	validator *auth.Validator
	manager   *engine.Manager
	registry  *voiceclone.Registry
	worker    *task.AsyncTTSWorker
	exec      *executor.Executor
}

// NewHandlers 创建处理器集合
func NewHandlers(cfg *config.Config, db *gorm.DB, manager *engine.Manager,
	registry *voiceclone.Registry, worker *task.AsyncTTSWorker, exec *executor.Executor) *Handlers {
	return &Handlers{
		cfg:       cfg,
		db:        db,
		validator: auth.NewValidator(cfg.AppToken, cfg.AppKey),
		manager:   manager,
		registry:  registry,
		worker:    worker,
		exec:      exec,
	}
}

// Register 注册全部路由
func (h *Handlers) Register(r *gin.Engine) {
	if h.cfg.RateLimit > 0 {
		r.Use(RateLimitMiddleware(h.cfg.RateLimit))
	}

	r.GET("/", h.handleRoot)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 合成产物通过/tmp静态下发
	r.Static("/tmp", h.cfg.TempDir)

	stream := r.Group("/stream/v1")
	{
		stream.POST("/asr", h.handleASRTranscribe)
		stream.GET("/asr/health", h.handleASRHealth)
		stream.GET("/asr/models", h.handleASRModels)

		stream.POST("/tts", h.handleTTSSynthesize)
		stream.GET("/tts/health", h.handleTTSHealth)
		stream.GET("/tts/voices", h.handleVoiceList)
		stream.GET("/tts/voices/info", h.handleVoiceInfo)
		stream.POST("/tts/voices/refresh", h.handleVoiceRefresh)
	}

	r.POST("/openai/v1/audio/speech", h.handleOpenAISpeech)

	rest := r.Group("/rest/v1/tts")
	{
		rest.POST("/async", h.handleAsyncTTSSubmit)
		rest.GET("/async", h.handleAsyncTTSQuery)
	}

	ws := r.Group("/ws/v1")
	{
		ws.GET("/asr", h.handleWSASR)
		ws.GET("/tts", h.handleWSTTS)
	}
}

// handleRoot 服务横幅与端点一览
func (h *Handlers) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": h.cfg.AppName,
		"version": h.cfg.AppVersion,
		"endpoints": gin.H{
			"asr":        "/stream/v1/asr",
			"asr_models": "/stream/v1/asr/models",
			"asr_health": "/stream/v1/asr/health",
			"asr_ws":     "/ws/v1/asr",
			"tts":        "/stream/v1/tts",
			"tts_ws":     "/ws/v1/tts",
			"tts_openai": "/openai/v1/audio/speech",
			"tts_async":  "/rest/v1/tts/async",
			"tts_voices": "/stream/v1/tts/voices",
			"tts_health": "/stream/v1/tts/health",
			"metrics":    "/metrics",
		},
	})
}
