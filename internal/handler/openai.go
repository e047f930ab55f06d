package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/pkg/logger"
	"github.com/code-100-precent/SpeechGate/pkg/metrics"
	"github.com/code-100-precent/SpeechGate/pkg/protocol"
	"github.com/code-100-precent/SpeechGate/pkg/textnorm"
)

// openaiSpeechRequest 兼容OpenAI /v1/audio/speech的请求体，
// instructions映射到克隆音色的prompt链路
type openaiSpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input" binding:"required"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
	Instructions   string  `json:"instructions"`
}

// handleOpenAISpeech OpenAI兼容合成接口，直接返回音频文件
func (h *Handlers) handleOpenAISpeech(c *gin.Context) {
	taskID := protocol.NewTaskID()

	if err := h.validator.CheckBearer(c.GetHeader("Authorization")); err != nil {
		metrics.RequestsTotal.WithLabelValues("openai", "auth_failed").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"detail": err.Error()})
		return
	}

	var req openaiSpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("请求参数错误: %v", err)})
		return
	}
	if req.Voice == "" {
		req.Voice = "中文女"
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = "wav"
	}
	if req.Speed == 0 {
		req.Speed = 1.0
	}
	if req.Speed < 0.5 || req.Speed > 2.0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"detail": fmt.Sprintf("speed参数超出范围[0.5, 2.0]: %.2f", req.Speed)})
		return
	}
	if !h.registry.Exists(req.Voice) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("不支持的音色: %s", req.Voice)})
		return
	}

	cleanText := textnorm.CleanForTTS(req.Input)
	if cleanText == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "清理后文本为空"})
		return
	}
	logger.Info("OpenAI兼容合成请求",
		zap.String("task_id", taskID),
		zap.String("voice", req.Voice),
		zap.Float64("speed", req.Speed))

	// speed映射回speech_rate走同一条合成链路
	speechRate := int((req.Speed - 1.0) * 500)
	audioURL, err := h.synthesizeToFile(c, taskID, cleanText, &ttsRequest{
		Voice:      req.Voice,
		SpeechRate: speechRate,
		Volume:     50,
		Format:     "wav",
		SampleRate: 22050,
		Prompt:     req.Instructions,
	})
	if err != nil {
		logger.Error("OpenAI兼容合成失败", zap.String("task_id", taskID), zap.Error(err))
		metrics.RequestsTotal.WithLabelValues("openai", "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("内部服务错误: %v", err)})
		return
	}

	metrics.RequestsTotal.WithLabelValues("openai", "ok").Inc()
	c.Header("task_id", taskID)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="speech_%s.wav"`, taskID))
	c.File(h.tempFilePath(audioURL))
}

// tempFilePath 把/tmp下载地址映射回临时目录里的实际路径
func (h *Handlers) tempFilePath(audioURL string) string {
	return h.cfg.TempDir + audioURL[len("/tmp"):]
}
