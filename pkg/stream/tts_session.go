package stream

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/pkg/audio"
	"github.com/code-100-precent/SpeechGate/pkg/engine"
	"github.com/code-100-precent/SpeechGate/pkg/engine/cosyvoice"
	"github.com/code-100-precent/SpeechGate/pkg/executor"
	"github.com/code-100-precent/SpeechGate/pkg/logger"
	"github.com/code-100-precent/SpeechGate/pkg/protocol"
	"github.com/code-100-precent/SpeechGate/pkg/textnorm"
	"github.com/code-100-precent/SpeechGate/pkg/voiceclone"
)

// 每个音频块发送后的间隔，平滑客户端播放节奏
const defaultChunkInterval = 50 * time.Millisecond

// RunSynthesis单次文本上限（字符）
const maxRunSynthesisChars = 1000

// TTSSession 一条流式合成连接的状态机，
// StartSynthesis后可多次RunSynthesis，StopSynthesis收尾。
// 引擎在StartSynthesis时绑定，整个会话期间不迁移副本。
type TTSSession struct {
	writer   *MessageWriter
	manager  *engine.Manager
	registry *voiceclone.Registry
	exec     *executor.Executor

	taskID        string
	sessionID     string
	state         int
	params        *protocol.SynthesisParams
	chunkInterval time.Duration

	ttsEngine engine.TTSEngine
	engineIdx int
}

// NewTTSSession 创建合成会话
func NewTTSSession(writer *MessageWriter, manager *engine.Manager, registry *voiceclone.Registry, exec *executor.Executor, taskID string) *TTSSession {
	return &TTSSession{
		writer:        writer,
		manager:       manager,
		registry:      registry,
		exec:          exec,
		taskID:        taskID,
		sessionID:     "session_" + taskID,
		state:         stateReady,
		chunkInterval: defaultChunkInterval,
		engineIdx:     -1,
	}
}

// TaskID 当前任务ID
func (s *TTSSession) TaskID() string {
	return s.taskID
}

// Close 归还会话占用的引擎
func (s *TTSSession) Close() {
	if s.engineIdx >= 0 {
		s.manager.ReleaseTTS(s.engineIdx)
		s.engineIdx = -1
		s.ttsEngine = nil
	}
}

// HandleText 处理一条控制消息，返回true表示会话结束
func (s *TTSSession) HandleText(ctx context.Context, data []byte) bool {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.sendTaskFailed(fmt.Sprintf("Message Not Json: %s", string(data)))
		return false
	}

	if msg.Header.Namespace != protocol.NamespaceFlowingSpeech {
		s.sendTaskFailed("Invalid namespace")
		return false
	}

	switch msg.Header.Name {
	case protocol.NameStartSynthesis:
		return s.handleStart(msg)
	case protocol.NameRunSynthesis:
		s.handleRun(ctx, msg)
	case protocol.NameStopSynthesis:
		return s.handleStop(msg)
	default:
		s.sendTaskFailed(fmt.Sprintf("Invalid message name: %s", msg.Header.Name))
	}
	return false
}

func (s *TTSSession) handleStart(msg *protocol.Message) bool {
	if s.state != stateReady {
		s.sendTaskFailed("Connection already started")
		return false
	}
	params, err := protocol.ParseSynthesisParams(msg.Payload)
	if err != nil {
		logger.Warn("StartSynthesis参数解析失败",
			zap.String("task_id", s.taskID), zap.Error(err))
		s.sendTaskFailed("Invalid StartSynthesis parameters")
		return false
	}
	s.params = params
	if msg.Header.TaskID != "" {
		s.taskID = msg.Header.TaskID
		s.sessionID = "session_" + s.taskID
	}

	eng, idx := s.manager.SelectTTS()
	if eng == nil {
		s.sendTaskFailed("TTS engine not available")
		return true
	}
	s.ttsEngine = eng
	s.engineIdx = idx

	s.sendEvent(protocol.NameSynthesisStarted, map[string]any{
		"session_id": s.sessionID,
		"index":      1,
	})
	s.state = stateStarted
	logger.Info("流式合成开始",
		zap.String("task_id", s.taskID),
		zap.String("voice", params.Voice),
		zap.Int("sample_rate", params.SampleRate))
	return false
}

func (s *TTSSession) handleRun(ctx context.Context, msg *protocol.Message) {
	if s.state != stateStarted {
		s.sendTaskFailed("Connection not started")
		return
	}
	if msg.Header.TaskID != s.taskID {
		s.sendTaskFailed("Task ID not match")
		return
	}
	text := ""
	if msg.Payload != nil {
		if v, ok := msg.Payload["text"].(string); ok {
			text = v
		}
	}
	if text == "" {
		s.sendTaskFailed("Missing text in RunSynthesis")
		return
	}
	if utf8.RuneCountInString(text) > maxRunSynthesisChars {
		s.sendTaskFailed(fmt.Sprintf("RunSynthesis text exceeds %d characters", maxRunSynthesisChars))
		return
	}
	if err := s.runSynthesis(ctx, text); err != nil {
		logger.Error("流式合成失败",
			zap.String("task_id", s.taskID), zap.Error(err))
		s.sendTaskFailed(fmt.Sprintf("Synthesis failed: %v", err))
	}
}

func (s *TTSSession) handleStop(msg *protocol.Message) bool {
	if s.state != stateStarted {
		s.sendTaskFailed("Connection not started")
		return false
	}
	if msg.Header.TaskID != s.taskID {
		s.sendTaskFailed("Task ID not match")
		return false
	}
	s.sendEvent(protocol.NameSynthesisCompleted, map[string]any{
		"session_id": s.sessionID,
		"index":      1,
	})
	s.state = stateCompleted
	logger.Info("流式合成完成", zap.String("task_id", s.taskID))
	return true
}

// runSynthesis 合成一段文本并按块下发二进制音频，
// 推理在执行器内运行，发送侧消费有界通道
func (s *TTSSession) runSynthesis(ctx context.Context, text string) error {
	s.sendEvent(protocol.NameSentenceBegin, map[string]any{
		"session_id": s.sessionID,
		"index":      1,
	})

	cleanText := textnorm.CleanForTTS(text)
	req := &engine.SynthesisRequest{
		Text:       cleanText,
		Voice:      s.params.Voice,
		Speed:      s.params.Speed(),
		SampleRate: s.params.SampleRate,
		Prompt:     s.params.Prompt,
	}
	if s.registry != nil && s.registry.IsClone(s.params.Voice) {
		req.Clone = true
		req.SampleRate = cosyvoice.CloneSampleRate
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	items := s.exec.RunStream(runCtx, func(emit func([]byte) bool) error {
		return s.ttsEngine.SynthesizeStream(runCtx, req, emit)
	})

	audioSent := false
	for item := range items {
		if item.Err != nil {
			return item.Err
		}
		if len(item.Data) == 0 {
			continue
		}
		frame := item.Data
		if !s.params.IsPCM() {
			wrapped, wErr := audio.WrapPCM(item.Data, req.SampleRate, 1)
			if wErr != nil {
				logger.Warn("WAV封装失败", zap.String("task_id", s.taskID), zap.Error(wErr))
				continue
			}
			frame = wrapped
		}
		if err := s.writer.SendBinary(frame); err != nil {
			// 连接已断开，取消生产者后停止下发
			cancel()
			break
		}
		audioSent = true
		s.sendSubtitleEvent(protocol.NameSentenceSynthesis, text)
		if s.chunkInterval > 0 {
			time.Sleep(s.chunkInterval)
		}
	}
	if !audioSent {
		logger.Warn("没有生成任何音频数据", zap.String("task_id", s.taskID))
	}

	s.sendSubtitleEvent(protocol.NameSentenceEnd, text)
	return nil
}

// sendSubtitleEvent 下发带字幕的进度事件，时长按每字200ms估算
func (s *TTSSession) sendSubtitleEvent(name, text string) {
	charCount := utf8.RuneCountInString(text)
	s.sendEvent(name, map[string]any{
		"subtitles": []map[string]any{
			{
				"text":         text,
				"begin_time":   0,
				"end_time":     charCount * 200,
				"begin_index":  0,
				"end_index":    charCount,
				"sentence":     true,
				"phoneme_list": []any{},
			},
		},
	})
}

func (s *TTSSession) sendEvent(name string, payload map[string]any) {
	msg := protocol.NewEvent(protocol.NamespaceFlowingSpeech, name, s.taskID, payload)
	if err := s.writer.SendMessage(msg); err != nil {
		logger.Warn("下发事件失败",
			zap.String("task_id", s.taskID), zap.String("name", name), zap.Error(err))
	}
}

// TTS方向的TaskFailed使用Default命名空间
func (s *TTSSession) sendTaskFailed(reason string) {
	msg := protocol.NewTaskFailed(protocol.NamespaceDefault, s.taskID, reason)
	if err := s.writer.SendMessage(msg); err != nil {
		return
	}
	logger.Error("下发TaskFailed",
		zap.String("task_id", s.taskID), zap.String("reason", reason))
}
