package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/pkg/audio"
	"github.com/code-100-precent/SpeechGate/pkg/auth"
	"github.com/code-100-precent/SpeechGate/pkg/engine"
	"github.com/code-100-precent/SpeechGate/pkg/logger"
	"github.com/code-100-precent/SpeechGate/pkg/metrics"
	"github.com/code-100-precent/SpeechGate/pkg/protocol"
	"github.com/code-100-precent/SpeechGate/pkg/response"
	"github.com/code-100-precent/SpeechGate/pkg/textnorm"
)

// 一句话识别支持的格式与采样率
var (
	asrAudioFormats = map[string]bool{
		"pcm": true, "wav": true, "opus": true, "speex": true, "amr": true,
		"mp3": true, "aac": true, "m4a": true, "flac": true, "ogg": true,
	}
	asrSampleRates = map[int]bool{
		8000: true, 16000: true, 22050: true, 44100: true, 48000: true,
	}
)

// handleASRTranscribe 一句话识别，音频来自请求体或audio_address下载
func (h *Handlers) handleASRTranscribe(c *gin.Context) {
	taskID := protocol.NewTaskID()

	token := c.GetHeader("X-NLS-Token")
	if err := h.validator.CheckToken(token); err != nil {
		metrics.RequestsTotal.WithLabelValues("asr", "auth_failed").Inc()
		response.Fail(c, response.ErrAuthentication(err.Error(), taskID), taskID)
		return
	}
	if err := h.validator.CheckAppKey(c.Query("appkey")); err != nil {
		metrics.RequestsTotal.WithLabelValues("asr", "auth_failed").Inc()
		response.Fail(c, response.ErrAuthentication(err.Error(), taskID), taskID)
		return
	}
	logger.Info("一句话识别请求",
		zap.String("task_id", taskID), zap.String("token", auth.MaskSensitive(token)))

	format := strings.ToLower(c.DefaultQuery("format", "pcm"))
	if !asrAudioFormats[format] {
		response.Fail(c, response.ErrInvalidParameter(
			fmt.Sprintf("不支持的音频格式: %s", format), taskID), taskID)
		return
	}
	sampleRate := cast.ToInt(c.DefaultQuery("sample_rate", "16000"))
	if !asrSampleRates[sampleRate] {
		response.Fail(c, response.ErrInvalidParameter(
			fmt.Sprintf("不支持的采样率: %d", sampleRate), taskID), taskID)
		return
	}

	var audioData []byte
	if address := c.Query("audio_address"); address != "" {
		data, err := audio.Download(address, h.cfg.MaxAudioSize)
		if err != nil {
			response.Fail(c, response.ErrInvalidMessage(err.Error(), taskID), taskID)
			return
		}
		audioData = data
	} else {
		data, err := c.GetRawData()
		if err != nil || len(data) == 0 {
			response.Fail(c, response.ErrInvalidMessage("音频数据为空", taskID), taskID)
			return
		}
		if len(data) > h.cfg.MaxAudioSize {
			response.Fail(c, response.ErrInvalidMessage(
				fmt.Sprintf("音频文件太大，最大支持%dMB", h.cfg.MaxAudioSize/1024/1024), taskID), taskID)
			return
		}
		audioData = data
	}

	// WAV容器统一剥成裸PCM，容器头里的采样率优先生效
	if audio.IsWAV(audioData) {
		if pcm, rate, err := audio.ExtractPCM(audioData); err == nil {
			audioData = pcm
			if rate > 0 {
				sampleRate = rate
			}
		}
	}

	eng, idx := h.manager.SelectASR()
	if eng == nil {
		response.Fail(c, response.ErrServer("ASR engine not available", taskID), taskID)
		return
	}
	defer h.manager.ReleaseASR(idx)

	opts := &engine.FileTranscribeOptions{
		Language:        c.DefaultQuery("dolphin_lang_sym", "zh"),
		Region:          c.DefaultQuery("dolphin_region_sym", "SHANGHAI"),
		VocabularyID:    c.Query("vocabulary_id"),
		CustomizationID: c.Query("customization_id"),
		Disfluency:      cast.ToBool(c.Query("disfluency")),
	}

	var result string
	err := h.exec.RunSync(c.Request.Context(), func() error {
		text, tErr := eng.TranscribeFile(c.Request.Context(), audioData, sampleRate, opts)
		if tErr != nil {
			return tErr
		}
		result = strings.TrimSpace(text)
		return nil
	})
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("asr", "error").Inc()
		response.Fail(c, response.ErrInference(err.Error(), taskID), taskID)
		return
	}

	if result != "" && cast.ToBool(c.Query("enable_punctuation_prediction")) {
		if punctuated, pErr := eng.Punctuate(c.Request.Context(), result); pErr == nil && punctuated != "" {
			result = strings.TrimSpace(punctuated)
		}
	}
	if result != "" && cast.ToBool(c.Query("enable_inverse_text_normalization")) {
		result = textnorm.ApplyITN(result)
	}

	logger.Info("一句话识别完成",
		zap.String("task_id", taskID), zap.Int("audio_bytes", len(audioData)))
	metrics.RequestsTotal.WithLabelValues("asr", "ok").Inc()
	response.OK(c, taskID, result)
}

// handleASRHealth 识别服务健康状态与主机资源占用
func (h *Handlers) handleASRHealth(c *gin.Context) {
	loaded := h.manager.ASRCount() > 0
	status := "healthy"
	message := "ASR service is running normally"
	if !loaded {
		status = "unhealthy"
		message = "ASR engine not available"
	}

	devices := engine.ParseDeviceSpec(h.cfg.ASRGPUs)
	models := h.asrModelDescriptors()
	names := make([]string, 0, len(models))
	for _, m := range models {
		if cast.ToBool(m["loaded"]) {
			names = append(names, cast.ToString(m["name"]))
		}
	}

	var memoryUsage gin.H
	if vm, err := mem.VirtualMemory(); err == nil {
		memoryUsage = gin.H{
			"total_mb": vm.Total / 1024 / 1024,
			"used_mb":  vm.Used / 1024 / 1024,
			"percent":  vm.UsedPercent,
		}
	}
	if uptime, err := host.Uptime(); err == nil {
		if memoryUsage == nil {
			memoryUsage = gin.H{}
		}
		memoryUsage["host_uptime_sec"] = uptime
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"model_loaded":  loaded,
		"device":        strings.Join(devices, ","),
		"version":       h.cfg.AppVersion,
		"message":       message,
		"loaded_models": names,
		"memory_usage":  memoryUsage,
	})
}

// handleASRModels 列出可用模型
func (h *Handlers) handleASRModels(c *gin.Context) {
	models := h.asrModelDescriptors()
	loadedCount := 0
	for _, m := range models {
		if cast.ToBool(m["loaded"]) {
			loadedCount++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"models":       models,
		"total":        len(models),
		"loaded_count": loadedCount,
	})
}

// asrModelDescriptors 根据模型加载模式与引擎池状态构建模型列表
func (h *Handlers) asrModelDescriptors() []gin.H {
	mode := h.cfg.ASRModelMode
	available := h.manager.ASRCount() > 0
	devices := engine.ParseDeviceSpec(h.cfg.ASRGPUs)
	device := strings.Join(devices, ",")

	realtimeLoaded := available && (mode == "all" || mode == "realtime")
	offlineLoaded := available && (mode == "all" || mode == "offline")

	return []gin.H{
		{
			"name":        "paraformer-realtime",
			"description": "流式识别模型，" + strconv.Itoa(len(devices)) + "个实例",
			"loaded":      realtimeLoaded,
			"device":      device,
		},
		{
			"name":        "paraformer-offline",
			"description": "离线识别模型，带标点恢复",
			"loaded":      offlineLoaded,
			"device":      device,
		},
	}
}
