package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/pkg/audio"
	"github.com/code-100-precent/SpeechGate/pkg/auth"
	"github.com/code-100-precent/SpeechGate/pkg/engine"
	"github.com/code-100-precent/SpeechGate/pkg/engine/cosyvoice"
	"github.com/code-100-precent/SpeechGate/pkg/logger"
	"github.com/code-100-precent/SpeechGate/pkg/metrics"
	"github.com/code-100-precent/SpeechGate/pkg/protocol"
	"github.com/code-100-precent/SpeechGate/pkg/response"
	"github.com/code-100-precent/SpeechGate/pkg/textnorm"
)

// ttsRequest 一句话合成请求体
type ttsRequest struct {
	Text       string `json:"text" binding:"required"`
	Voice      string `json:"voice"`
	SpeechRate int    `json:"speech_rate"`
	Volume     int    `json:"volume"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Prompt     string `json:"prompt"`
}

// ttsResult 一句话合成响应体，音频经/tmp静态路径下发
type ttsResult struct {
	TaskID   string `json:"task_id"`
	AudioURL string `json:"audio_url"`
	Status   int    `json:"status"`
	Message  string `json:"message"`
}

func writeTTSResult(c *gin.Context, taskID, audioURL string, status int, message string) {
	c.Header("task_id", taskID)
	httpStatus := http.StatusOK
	if status != response.StatusSuccess && status < response.StatusDefaultServerError {
		httpStatus = http.StatusBadRequest
	}
	c.JSON(httpStatus, ttsResult{
		TaskID:   taskID,
		AudioURL: audioURL,
		Status:   status,
		Message:  message,
	})
}

// handleTTSSynthesize 一句话合成，结果写入临时目录并返回下载地址
func (h *Handlers) handleTTSSynthesize(c *gin.Context) {
	taskID := protocol.NewTaskID()

	token := c.GetHeader("X-NLS-Token")
	if err := h.validator.CheckToken(token); err != nil {
		metrics.RequestsTotal.WithLabelValues("tts", "auth_failed").Inc()
		writeTTSResult(c, taskID, "", response.StatusAuthenticationFailed, err.Error())
		return
	}
	logger.Info("一句话合成请求",
		zap.String("task_id", taskID), zap.String("token", auth.MaskSensitive(token)))

	var req ttsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeTTSResult(c, taskID, "", response.StatusInvalidParameter,
			fmt.Sprintf("请求参数错误: %v", err))
		return
	}
	if req.Voice == "" {
		req.Voice = "中文女"
	}
	if req.Format == "" {
		req.Format = "wav"
	}
	if req.SampleRate == 0 {
		req.SampleRate = 22050
	}
	if req.Volume == 0 {
		req.Volume = 50
	}
	if req.SpeechRate < -500 || req.SpeechRate > 500 {
		writeTTSResult(c, taskID, "", response.StatusInvalidParameter,
			fmt.Sprintf("speech_rate参数超出范围[-500, 500]: %d", req.SpeechRate))
		return
	}
	if !h.registry.Exists(req.Voice) {
		writeTTSResult(c, taskID, "", response.StatusInvalidParameter,
			fmt.Sprintf("不支持的音色: %s", req.Voice))
		return
	}

	cleanText := textnorm.CleanForTTS(req.Text)
	if cleanText == "" {
		writeTTSResult(c, taskID, "", response.StatusInvalidParameter, "清理后文本为空")
		return
	}

	audioURL, err := h.synthesizeToFile(c, taskID, cleanText, &req)
	if err != nil {
		logger.Error("一句话合成失败", zap.String("task_id", taskID), zap.Error(err))
		metrics.RequestsTotal.WithLabelValues("tts", "error").Inc()
		writeTTSResult(c, taskID, "", response.StatusDefaultServerError, err.Error())
		return
	}

	metrics.RequestsTotal.WithLabelValues("tts", "ok").Inc()
	writeTTSResult(c, taskID, audioURL, response.StatusSuccess, "SUCCESS")
}

// synthesizeToFile 执行合成并落盘，返回/tmp下载地址
func (h *Handlers) synthesizeToFile(c *gin.Context, taskID, cleanText string, req *ttsRequest) (string, error) {
	start := time.Now()

	speed := 1.0 + float64(req.SpeechRate)/500.0
	if speed < 0.5 {
		speed = 0.5
	}
	if speed > 2.0 {
		speed = 2.0
	}

	sampleRate := req.SampleRate
	isClone := h.registry.IsClone(req.Voice)
	if isClone {
		sampleRate = cosyvoice.CloneSampleRate
	}

	eng, idx := h.manager.SelectTTS()
	if eng == nil {
		return "", fmt.Errorf("TTS engine not available")
	}
	defer h.manager.ReleaseTTS(idx)

	var pcm []byte
	err := h.exec.RunSync(c.Request.Context(), func() error {
		data, sErr := eng.Synthesize(c.Request.Context(), &engine.SynthesisRequest{
			Text:       cleanText,
			Voice:      req.Voice,
			Speed:      speed,
			SampleRate: sampleRate,
			Prompt:     req.Prompt,
			Clone:      isClone,
		})
		if sErr != nil {
			return sErr
		}
		pcm = data
		return nil
	})
	if err != nil {
		return "", err
	}

	if req.Volume != 50 {
		pcm = audio.EncodePCM16(audio.ScaleVolume(audio.DecodePCM16(pcm), req.Volume))
	}

	format := strings.ToLower(req.Format)
	data := pcm
	if format != "pcm" {
		wrapped, wErr := audio.WrapPCM(pcm, sampleRate, 1)
		if wErr != nil {
			return "", wErr
		}
		data = wrapped
		format = "wav"
	}

	filename := fmt.Sprintf("tts_%s.%s", taskID, format)
	if err := os.WriteFile(filepath.Join(h.cfg.TempDir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("写出音频文件失败: %w", err)
	}

	metrics.SynthesisDuration.WithLabelValues("oneshot").Observe(time.Since(start).Seconds())
	logger.Info("一句话合成完成",
		zap.String("task_id", taskID),
		zap.Int("audio_bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))
	return "/tmp/" + filename, nil
}

// handleTTSHealth 合成服务健康状态
func (h *Handlers) handleTTSHealth(c *gin.Context) {
	loaded := h.manager.TTSCount() > 0
	status := "healthy"
	if !loaded {
		status = "unhealthy"
	}
	devices := engine.ParseDeviceSpec(h.cfg.TTSGPUs)
	c.JSON(http.StatusOK, gin.H{
		"status":           status,
		"sft_model_loaded": loaded,
		"tts_model_loaded": loaded,
		"device":           strings.Join(devices, ","),
		"preset_voices":    h.registry.Names(),
		"version":          h.cfg.AppVersion,
	})
}

// handleVoiceList 音色名称列表
func (h *Handlers) handleVoiceList(c *gin.Context) {
	names := h.registry.Names()
	c.JSON(http.StatusOK, gin.H{
		"voices": names,
		"total":  len(names),
	})
}

// handleVoiceInfo 音色详细信息
func (h *Handlers) handleVoiceInfo(c *gin.Context) {
	voices := h.registry.List()
	info := make(map[string]any, len(voices))
	for _, v := range voices {
		info[v.Name] = v
	}
	preset, clone := h.registry.Counts()
	c.JSON(http.StatusOK, gin.H{
		"voices":       info,
		"total":        len(voices),
		"preset_count": preset,
		"clone_count":  clone,
	})
}

// handleVoiceRefresh 重新扫描音色目录
func (h *Handlers) handleVoiceRefresh(c *gin.Context) {
	h.registry.Refresh()
	names := h.registry.Names()
	c.JSON(http.StatusOK, gin.H{
		"message": "音色配置已刷新",
		"voices":  names,
		"total":   len(names),
	})
}
