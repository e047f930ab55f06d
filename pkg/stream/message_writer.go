// Package stream 实现阿里云双向流式语音协议的服务端会话：
// 实时识别与流式合成的状态机、消息收发和音频分发。
package stream

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/code-100-precent/SpeechGate/pkg/protocol"
)

// 连接状态
const (
	stateReady = iota + 1
	stateStarted
	stateCompleted
)

// Conn WebSocket连接的最小写接口，便于测试替换
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// MessageWriter 串行化并发的连接写入，协议消息与二进制帧共用一把锁
type MessageWriter struct {
	mu   sync.Mutex
	conn Conn
}

// NewMessageWriter 创建消息写入器
func NewMessageWriter(conn Conn) *MessageWriter {
	return &MessageWriter{conn: conn}
}

// SendMessage 发送协议控制消息
func (w *MessageWriter) SendMessage(msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// SendBinary 发送音频二进制帧
func (w *MessageWriter) SendBinary(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}
