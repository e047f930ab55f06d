package protocol

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// 协议命名空间
const (
	NamespaceSpeechTranscriber = "SpeechTranscriber"
	NamespaceFlowingSpeech     = "FlowingSpeechSynthesizer"
	NamespaceDefault           = "Default"
)

// ASR方向消息名
const (
	NameStartTranscription         = "StartTranscription"
	NameStopTranscription          = "StopTranscription"
	NameTranscriptionStarted       = "TranscriptionStarted"
	NameSentenceBegin              = "SentenceBegin"
	NameTranscriptionResultChanged = "TranscriptionResultChanged"
	NameSentenceEnd                = "SentenceEnd"
	NameTranscriptionCompleted     = "TranscriptionCompleted"
)

// TTS方向消息名
const (
	NameStartSynthesis     = "StartSynthesis"
	NameRunSynthesis       = "RunSynthesis"
	NameStopSynthesis      = "StopSynthesis"
	NameSynthesisStarted   = "SynthesisStarted"
	NameSentenceSynthesis  = "SentenceSynthesis"
	NameSynthesisCompleted = "SynthesisCompleted"
)

// NameTaskFailed 双向共用的失败消息
const NameTaskFailed = "TaskFailed"

// 网关状态
const (
	StatusSuccess    = 20000000
	StatusTaskFailed = 40000000
)

// StatusMessageSuccess 成功响应头的固定status_message
const StatusMessageSuccess = "GATEWAY|SUCCESS|Success."

// Header 控制消息公共头
type Header struct {
	MessageID     string `json:"message_id"`
	TaskID        string `json:"task_id"`
	Namespace     string `json:"namespace"`
	Name          string `json:"name"`
	Status        int    `json:"status,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
	StatusText    string `json:"status_text,omitempty"`
}

// Message 控制消息信封，二进制帧不走该结构
type Message struct {
	Header  Header         `json:"header"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Encode 序列化为JSON字节
func (m *Message) Encode() ([]byte, error) {
	return sonic.Marshal(m)
}

// Decode 解析控制消息
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("message not json: %w", err)
	}
	return &m, nil
}

// NewTaskID 生成32位小写十六进制任务ID
func NewTaskID() string {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	sum := md5.Sum([]byte(timestamp + random))
	return hex.EncodeToString(sum[:])
}

// NewMessageID 生成消息ID，与任务ID同构
func NewMessageID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewRequestID 生成请求ID
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewEvent 构造成功事件消息
func NewEvent(namespace, name, taskID string, payload map[string]any) *Message {
	return &Message{
		Header: Header{
			MessageID:     NewMessageID(),
			TaskID:        taskID,
			Namespace:     namespace,
			Name:          name,
			Status:        StatusSuccess,
			StatusMessage: StatusMessageSuccess,
		},
		Payload: payload,
	}
}

// NewTaskFailed 构造终止性失败消息
func NewTaskFailed(namespace, taskID, reason string) *Message {
	return &Message{
		Header: Header{
			MessageID:  NewMessageID(),
			TaskID:     taskID,
			Namespace:  namespace,
			Name:       NameTaskFailed,
			Status:     StatusTaskFailed,
			StatusText: reason,
		},
	}
}
