package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/pkg/audio"
	"github.com/code-100-precent/SpeechGate/pkg/logger"
	"github.com/code-100-precent/SpeechGate/pkg/metrics"
	"github.com/code-100-precent/SpeechGate/pkg/protocol"
	"github.com/code-100-precent/SpeechGate/pkg/stream"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWSASR 实时识别WebSocket入口
func (h *Handlers) handleWSASR(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket升级失败", zap.Error(err))
		return
	}
	defer conn.Close()

	taskID := protocol.NewTaskID()
	writer := stream.NewMessageWriter(conn)

	// 鉴权失败先回TaskFailed再断开
	if err := h.validator.CheckWSToken(c.Request.Header); err != nil {
		logger.Warn("识别连接鉴权失败", zap.String("task_id", taskID), zap.Error(err))
		_ = writer.SendMessage(protocol.NewTaskFailed(
			protocol.NamespaceSpeechTranscriber, taskID, err.Error()))
		return
	}

	metrics.ActiveSessions.WithLabelValues("asr").Inc()
	defer metrics.ActiveSessions.WithLabelValues("asr").Dec()

	var gate *audio.NearfieldGate
	if h.cfg.EnableNearfieldFilter {
		gate = &audio.NearfieldGate{
			Enabled:   true,
			Threshold: h.cfg.NearfieldRMSThreshold,
		}
	}
	session := stream.NewASRSession(writer, h.manager, taskID, stream.ASRSessionOptions{
		EnableRealtimePunc: h.cfg.EnableRealtimePunc,
		Gate:               gate,
		Exec:               h.exec,
	})
	defer session.Close()

	logger.Info("识别连接建立",
		zap.String("task_id", taskID), zap.String("remote", c.ClientIP()))

	ctx := c.Request.Context()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			logger.Info("识别连接断开",
				zap.String("task_id", session.TaskID()), zap.Error(err))
			return
		}
		var done bool
		switch messageType {
		case websocket.TextMessage:
			done = session.HandleText(ctx, data)
		case websocket.BinaryMessage:
			done = session.HandleBinary(ctx, data)
		}
		if done {
			return
		}
	}
}

// handleWSTTS 流式合成WebSocket入口
func (h *Handlers) handleWSTTS(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket升级失败", zap.Error(err))
		return
	}
	defer conn.Close()

	taskID := protocol.NewTaskID()
	writer := stream.NewMessageWriter(conn)

	if err := h.validator.CheckWSToken(c.Request.Header); err != nil {
		logger.Warn("合成连接鉴权失败", zap.String("task_id", taskID), zap.Error(err))
		_ = writer.SendMessage(protocol.NewTaskFailed(
			protocol.NamespaceDefault, taskID, err.Error()))
		return
	}

	metrics.ActiveSessions.WithLabelValues("tts").Inc()
	defer metrics.ActiveSessions.WithLabelValues("tts").Dec()

	session := stream.NewTTSSession(writer, h.manager, h.registry, h.exec, taskID)
	defer session.Close()

	logger.Info("合成连接建立",
		zap.String("task_id", taskID), zap.String("remote", c.ClientIP()))

	ctx := c.Request.Context()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			logger.Info("合成连接断开",
				zap.String("task_id", session.TaskID()), zap.Error(err))
			return
		}
		// 合成方向只处理控制消息，二进制帧忽略
		if messageType != websocket.TextMessage {
			continue
		}
		if session.HandleText(ctx, data) {
			return
		}
	}
}
