package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/code-100-precent/SpeechGate/internal/models"
	"github.com/code-100-precent/SpeechGate/pkg/logger"
	"github.com/code-100-precent/SpeechGate/pkg/metrics"
	"github.com/code-100-precent/SpeechGate/pkg/protocol"
	"github.com/code-100-precent/SpeechGate/pkg/response"
)

const asyncTTSURL = "/rest/v1/tts/async"

// asyncTTSSubmitRequest 异步合成提交请求体，header携带凭据
type asyncTTSSubmitRequest struct {
	Header struct {
		Appkey string `json:"appkey"`
		Token  string `json:"token"`
	} `json:"header"`
	Payload struct {
		TTSRequest struct {
			Text           string `json:"text"`
			Voice          string `json:"voice"`
			SampleRate     int    `json:"sample_rate"`
			Format         string `json:"format"`
			EnableSubtitle bool   `json:"enable_subtitle"`
		} `json:"tts_request"`
		EnableNotify bool   `json:"enable_notify"`
		NotifyURL    string `json:"notify_url"`
	} `json:"payload"`
}

func writeAsyncTTSError(c *gin.Context, requestID, message string, errorCode, httpStatus int) {
	c.JSON(httpStatus, models.AsyncTTSErrorResponse{
		ErrorMessage: message,
		ErrorCode:    errorCode,
		RequestID:    requestID,
		URL:          asyncTTSURL,
		Status:       httpStatus,
	})
}

// handleAsyncTTSSubmit 提交异步合成任务并确保后台协程在跑
func (h *Handlers) handleAsyncTTSSubmit(c *gin.Context) {
	h.worker.Start()

	requestID := protocol.NewRequestID()
	taskID := protocol.NewTaskID()

	var req asyncTTSSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAsyncTTSError(c, requestID, fmt.Sprintf("请求参数错误: %v", err),
			response.StatusInvalidParameter, http.StatusBadRequest)
		return
	}

	if req.Header.Token == "" {
		writeAsyncTTSError(c, requestID, "缺少访问令牌",
			response.StatusAuthenticationFailed, http.StatusBadRequest)
		return
	}
	if req.Header.Appkey == "" {
		writeAsyncTTSError(c, requestID, "缺少应用密钥",
			response.StatusAuthenticationFailed, http.StatusBadRequest)
		return
	}
	if err := h.validator.CheckToken(req.Header.Token); err != nil {
		writeAsyncTTSError(c, requestID, err.Error(),
			response.StatusAuthenticationFailed, http.StatusBadRequest)
		return
	}
	if err := h.validator.CheckAppKey(req.Header.Appkey); err != nil {
		writeAsyncTTSError(c, requestID, err.Error(),
			response.StatusAuthenticationFailed, http.StatusBadRequest)
		return
	}

	payload := req.Payload.TTSRequest
	if len([]rune(payload.Text)) > 5000 {
		writeAsyncTTSError(c, requestID, "文本长度超过限制，最大支持5000个字符",
			response.StatusInvalidParameter, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Voice) == "" {
		writeAsyncTTSError(c, requestID, "音色参数不能为空",
			response.StatusInvalidParameter, http.StatusBadRequest)
		return
	}
	if req.Payload.EnableNotify {
		if req.Payload.NotifyURL == "" {
			writeAsyncTTSError(c, requestID, "启用回调通知时必须设置notify_url",
				response.StatusDefaultServerError, http.StatusInternalServerError)
			return
		}
		if !strings.HasPrefix(req.Payload.NotifyURL, "http://") &&
			!strings.HasPrefix(req.Payload.NotifyURL, "https://") {
			writeAsyncTTSError(c, requestID, "notify_url必须是有效的HTTP/HTTPS URL",
				response.StatusInvalidParameter, http.StatusBadRequest)
			return
		}
	}

	if payload.SampleRate == 0 {
		payload.SampleRate = 16000
	}
	if payload.Format == "" {
		payload.Format = "wav"
	}

	notifyURL := ""
	if req.Payload.EnableNotify {
		notifyURL = req.Payload.NotifyURL
	}
	task := &models.AsyncTTSTask{
		TaskID:         taskID,
		RequestID:      requestID,
		Text:           payload.Text,
		Voice:          payload.Voice,
		SampleRate:     payload.SampleRate,
		Format:         payload.Format,
		EnableSubtitle: payload.EnableSubtitle,
		EnableNotify:   req.Payload.EnableNotify,
		NotifyURL:      notifyURL,
	}
	if err := models.CreateAsyncTTSTask(h.db, task); err != nil {
		logger.Error("创建异步任务失败", zap.String("task_id", taskID), zap.Error(err))
		writeAsyncTTSError(c, requestID, "创建任务失败",
			response.StatusDefaultServerError, http.StatusInternalServerError)
		return
	}

	logger.Info("提交异步TTS任务",
		zap.String("task_id", taskID), zap.Int("text_len", len([]rune(payload.Text))))
	metrics.RequestsTotal.WithLabelValues("async_tts_submit", "ok").Inc()

	c.JSON(http.StatusOK, models.AsyncTTSResponse{
		Status:       200,
		ErrorCode:    response.StatusSuccess,
		ErrorMessage: "SUCCESS",
		RequestID:    requestID,
		Data:         models.AsyncTTSTaskData{TaskID: taskID},
	})
}

// handleAsyncTTSQuery 查询异步合成任务结果
func (h *Handlers) handleAsyncTTSQuery(c *gin.Context) {
	requestID := protocol.NewRequestID()

	token := c.Query("token")
	appkey := c.Query("appkey")
	taskID := c.Query("task_id")
	if token == "" {
		writeAsyncTTSError(c, requestID, "缺少访问令牌",
			response.StatusAuthenticationFailed, http.StatusBadRequest)
		return
	}
	if appkey == "" {
		writeAsyncTTSError(c, requestID, "缺少应用密钥",
			response.StatusAuthenticationFailed, http.StatusBadRequest)
		return
	}
	if taskID == "" {
		writeAsyncTTSError(c, requestID, "缺少任务ID",
			response.StatusInvalidParameter, http.StatusBadRequest)
		return
	}
	if err := h.validator.CheckToken(token); err != nil {
		writeAsyncTTSError(c, requestID, err.Error(),
			response.StatusAuthenticationFailed, http.StatusBadRequest)
		return
	}
	if err := h.validator.CheckAppKey(appkey); err != nil {
		writeAsyncTTSError(c, requestID, err.Error(),
			response.StatusAuthenticationFailed, http.StatusBadRequest)
		return
	}

	task, err := models.GetAsyncTTSTask(h.db, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeAsyncTTSError(c, requestID, "任务不存在",
				response.StatusInvalidParameter, http.StatusBadRequest)
			return
		}
		writeAsyncTTSError(c, requestID, fmt.Sprintf("内部服务错误: %v", err),
			response.StatusDefaultServerError, http.StatusInternalServerError)
		return
	}

	logger.Info("查询异步TTS任务",
		zap.String("task_id", taskID), zap.String("status", task.Status))

	data := models.AsyncTTSTaskData{
		TaskID:       taskID,
		AudioAddress: task.AudioAddress,
	}
	if task.EnableNotify {
		data.NotifyCustom = task.NotifyURL
	}
	if task.Status == models.TaskStatusSuccess && task.Sentences != "" {
		var sentences []models.SubtitleSentence
		if err := sonic.UnmarshalString(task.Sentences, &sentences); err == nil {
			data.Sentences = sentences
		}
	}

	c.JSON(http.StatusOK, models.AsyncTTSResponse{
		Status:       200,
		ErrorCode:    task.ErrorCode,
		ErrorMessage: task.ErrorMessage,
		RequestID:    requestID,
		Data:         data,
	})
}
