package stream

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/pkg/audio"
	"github.com/code-100-precent/SpeechGate/pkg/engine"
	"github.com/code-100-precent/SpeechGate/pkg/executor"
	"github.com/code-100-precent/SpeechGate/pkg/logger"
	"github.com/code-100-precent/SpeechGate/pkg/metrics"
	"github.com/code-100-precent/SpeechGate/pkg/protocol"
	"github.com/code-100-precent/SpeechGate/pkg/textnorm"
)

// ASRSessionOptions 会话级配置
type ASRSessionOptions struct {
	EnableRealtimePunc bool
	Gate               *audio.NearfieldGate
	// Exec 推理执行器，所有送引擎的阻塞调用都经它限流
	Exec *executor.Executor
}

// ASRSession 一条实时识别连接的状态机。
// 单goroutine驱动，消息处理方法不做并发保护。
type ASRSession struct {
	writer  *MessageWriter
	manager *engine.Manager
	opts    ASRSessionOptions

	taskID    string
	sessionID string
	state     int
	params    *protocol.TranscriptionParams

	asrEngine engine.ASREngine
	engineIdx int
	asrStream engine.ASRStream

	chunks audio.ChunkBuffer

	// 句子累积状态
	sentenceIndex     int
	audioTime         int
	sentenceActive    bool
	sentenceStartTime int
	lastSentenceText  string
	sentenceTexts     []string
	sentenceTextsRaw  []string
	emptyResultCount  int
}

// NewASRSession 创建识别会话
func NewASRSession(writer *MessageWriter, manager *engine.Manager, taskID string, opts ASRSessionOptions) *ASRSession {
	return &ASRSession{
		writer:    writer,
		manager:   manager,
		opts:      opts,
		taskID:    taskID,
		sessionID: "session_" + taskID,
		state:     stateReady,
		engineIdx: -1,
	}
}

// TaskID 当前任务ID，StartTranscription可覆盖初始值
func (s *ASRSession) TaskID() string {
	return s.taskID
}

// Close 释放引擎与识别流
func (s *ASRSession) Close() {
	if s.asrStream != nil {
		_ = s.asrStream.Close()
		s.asrStream = nil
	}
	if s.engineIdx >= 0 {
		s.manager.ReleaseASR(s.engineIdx)
		s.engineIdx = -1
	}
}

// HandleText 处理一条控制消息，返回true表示会话结束
func (s *ASRSession) HandleText(ctx context.Context, data []byte) bool {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.sendTaskFailed(fmt.Sprintf("Message Not Json: %s", string(data)))
		return false
	}

	if msg.Header.Namespace != protocol.NamespaceSpeechTranscriber {
		s.sendTaskFailed("Invalid namespace")
		return false
	}

	switch msg.Header.Name {
	case protocol.NameStartTranscription:
		return s.handleStart(ctx, msg)
	case protocol.NameStopTranscription:
		return s.handleStop(ctx, msg)
	default:
		s.sendTaskFailed(fmt.Sprintf("Invalid message name: %s", msg.Header.Name))
		return false
	}
}

func (s *ASRSession) handleStart(ctx context.Context, msg *protocol.Message) bool {
	if s.state != stateReady {
		s.sendTaskFailed("Connection already started")
		return false
	}

	params, err := protocol.ParseTranscriptionParams(msg.Payload)
	if err != nil {
		logger.Warn("StartTranscription参数解析失败",
			zap.String("task_id", s.taskID), zap.Error(err))
		s.sendTaskFailed("Invalid StartTranscription parameters")
		return false
	}
	s.params = params
	if msg.Header.TaskID != "" {
		s.taskID = msg.Header.TaskID
		s.sessionID = "session_" + s.taskID
	}

	eng, idx := s.manager.SelectASR()
	if eng == nil {
		s.sendTaskFailed("ASR engine not available")
		return true
	}
	asrStream, err := eng.NewStream(ctx, params.SampleRate)
	if err != nil {
		s.manager.ReleaseASR(idx)
		s.sendTaskFailed(err.Error())
		return true
	}
	s.asrEngine = eng
	s.engineIdx = idx
	s.asrStream = asrStream

	s.sendEvent(protocol.NameTranscriptionStarted, map[string]any{
		"session_id": s.sessionID,
	})
	s.state = stateStarted
	s.resetSentenceState()
	s.sentenceIndex = 0
	s.audioTime = 0
	logger.Info("实时识别开始",
		zap.String("task_id", s.taskID), zap.Int("sample_rate", params.SampleRate))
	return false
}

func (s *ASRSession) handleStop(ctx context.Context, msg *protocol.Message) bool {
	if s.state != stateStarted {
		s.sendTaskFailed("Connection not started")
		return false
	}
	if msg.Header.TaskID != s.taskID {
		s.sendTaskFailed("Task ID not match")
		return false
	}

	// 冲刷缓冲内不足一个推理块的尾部音频
	if rest := s.chunks.Flush(); len(rest) > 0 || s.sentenceActive {
		if flushRaw, err := s.feed(ctx, rest, true); err == nil && flushRaw != "" {
			if len(s.sentenceTextsRaw) == 0 || flushRaw != s.sentenceTextsRaw[len(s.sentenceTextsRaw)-1] {
				s.sentenceTextsRaw = append(s.sentenceTextsRaw, flushRaw)
			}
		}
	}

	if s.sentenceActive && len(s.sentenceTextsRaw) > 0 {
		s.sentenceIndex++
		full := strings.Join(s.sentenceTextsRaw, "")
		if s.params.Punctuation {
			full = s.punctuate(ctx, full)
		}
		s.sendSentenceEnd(s.sentenceIndex, s.audioTime, full, s.sentenceStartTime)
	}

	s.sendEvent(protocol.NameTranscriptionCompleted, nil)
	s.state = stateCompleted
	logger.Info("实时识别完成",
		zap.String("task_id", s.taskID), zap.Int("sentences", s.sentenceIndex))
	return true
}

// HandleBinary 处理一帧音频，返回true表示会话结束
func (s *ASRSession) HandleBinary(ctx context.Context, data []byte) bool {
	if s.state != stateStarted {
		s.sendTaskFailed("Connection not started")
		return false
	}

	s.chunks.Write(data)
	for {
		chunk := s.chunks.Next()
		if chunk == nil {
			return false
		}
		if err := s.processChunk(ctx, chunk); err != nil {
			logger.Error("音频块处理失败",
				zap.String("task_id", s.taskID), zap.Error(err))
			s.sendTaskFailed(fmt.Sprintf("Audio processing failed: %v", err))
			return false
		}
	}
}

// processChunk 送一个完整推理块进引擎并驱动句子状态
func (s *ASRSession) processChunk(ctx context.Context, chunk []byte) error {
	chunkStartTime := s.audioTime
	samples := audio.DecodePCM16(chunk)
	s.audioTime += audio.DurationMs(len(samples), s.params.SampleRate)
	metrics.AudioChunksProcessed.Inc()

	var resultRaw string
	if s.opts.Gate == nil || s.opts.Gate.Pass(samples, s.sentenceActive) {
		text, err := s.feed(ctx, chunk, false)
		if err != nil {
			return err
		}
		resultRaw = strings.TrimSpace(text)
	}

	resultText := resultRaw
	if resultRaw != "" && s.opts.EnableRealtimePunc && s.params.Punctuation {
		resultText = s.punctuate(ctx, resultRaw)
	}

	isSentenceEnd := false
	if resultText == "" {
		s.emptyResultCount++
		if s.sentenceActive && s.emptyResultCount >= s.params.MaxEmptyCount() {
			isSentenceEnd = true
		}
	} else {
		s.emptyResultCount = 0
	}

	if isSentenceEnd && s.sentenceActive {
		return s.finishSentence(ctx)
	}

	if resultText == "" {
		return nil
	}
	if resultText == s.lastSentenceText {
		return nil
	}
	s.lastSentenceText = resultText
	if len(s.sentenceTexts) == 0 || resultText != s.sentenceTexts[len(s.sentenceTexts)-1] {
		s.sentenceTexts = append(s.sentenceTexts, resultText)
	}
	if len(s.sentenceTextsRaw) == 0 || resultRaw != s.sentenceTextsRaw[len(s.sentenceTextsRaw)-1] {
		s.sentenceTextsRaw = append(s.sentenceTextsRaw, resultRaw)
	}

	if !s.sentenceActive {
		s.sentenceActive = true
		s.sentenceStartTime = chunkStartTime
		s.sentenceTexts = []string{resultText}
		s.sentenceTextsRaw = []string{resultRaw}
		s.emptyResultCount = 0
		s.sendEvent(protocol.NameSentenceBegin, map[string]any{
			"index": s.sentenceIndex + 1,
			"time":  s.sentenceStartTime,
		})
	}

	if s.params.IntermediateResult {
		// 中间结果携带本句全部去重分段的拼接，保证客户端看到的句子单调增长
		s.sendEvent(protocol.NameTranscriptionResultChanged, map[string]any{
			"index":  s.sentenceIndex + 1,
			"time":   s.audioTime,
			"result": strings.Join(s.sentenceTexts, ""),
		})
	}
	return nil
}

// feed 经推理执行器送一段音频进识别流
func (s *ASRSession) feed(ctx context.Context, pcm []byte, isFinal bool) (string, error) {
	if s.opts.Exec == nil {
		return s.asrStream.Feed(ctx, pcm, isFinal)
	}
	var text string
	err := s.opts.Exec.RunSync(ctx, func() error {
		var feedErr error
		text, feedErr = s.asrStream.Feed(ctx, pcm, isFinal)
		return feedErr
	})
	return text, err
}

// finishSentence 静音判定句子结束：冲刷引擎缓存并下发SentenceEnd
func (s *ASRSession) finishSentence(ctx context.Context) error {
	flushRaw, err := s.feed(ctx, nil, true)
	if err != nil {
		return err
	}
	flushRaw = strings.TrimSpace(flushRaw)
	if flushRaw != "" {
		if len(s.sentenceTextsRaw) == 0 || flushRaw != s.sentenceTextsRaw[len(s.sentenceTextsRaw)-1] {
			s.sentenceTextsRaw = append(s.sentenceTextsRaw, flushRaw)
		}
	}

	s.sentenceIndex++
	full := strings.Join(s.sentenceTextsRaw, "")
	if s.params.Punctuation {
		full = s.punctuate(ctx, full)
	}
	logger.Debug("句子结束",
		zap.String("task_id", s.taskID),
		zap.Int("index", s.sentenceIndex),
		zap.String("text", full))
	s.sendSentenceEnd(s.sentenceIndex, s.audioTime, full, s.sentenceStartTime)
	s.resetSentenceState()
	return nil
}

func (s *ASRSession) resetSentenceState() {
	s.sentenceActive = false
	s.sentenceStartTime = 0
	s.lastSentenceText = ""
	s.sentenceTexts = nil
	s.sentenceTextsRaw = nil
	s.emptyResultCount = 0
}

// punctuate 标点恢复失败时回退原文本
func (s *ASRSession) punctuate(ctx context.Context, text string) string {
	if text == "" {
		return text
	}
	result, err := s.asrEngine.Punctuate(ctx, text)
	if err != nil || result == "" {
		logger.Warn("标点恢复失败", zap.String("task_id", s.taskID), zap.Error(err))
		return text
	}
	return strings.TrimSpace(result)
}

func (s *ASRSession) sendSentenceEnd(index, time int, result string, beginTime int) {
	if s.params.ITN && result != "" {
		result = textnorm.ApplyITN(result)
	}
	s.sendEvent(protocol.NameSentenceEnd, map[string]any{
		"index":      index,
		"time":       time,
		"result":     result,
		"begin_time": beginTime,
	})
}

func (s *ASRSession) sendEvent(name string, payload map[string]any) {
	msg := protocol.NewEvent(protocol.NamespaceSpeechTranscriber, name, s.taskID, payload)
	if err := s.writer.SendMessage(msg); err != nil {
		logger.Warn("下发事件失败",
			zap.String("task_id", s.taskID), zap.String("name", name), zap.Error(err))
	}
}

func (s *ASRSession) sendTaskFailed(reason string) {
	msg := protocol.NewTaskFailed(protocol.NamespaceSpeechTranscriber, s.taskID, reason)
	if err := s.writer.SendMessage(msg); err != nil {
		return
	}
	logger.Error("下发TaskFailed",
		zap.String("task_id", s.taskID), zap.String("reason", reason))
}
