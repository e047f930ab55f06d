package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-100-precent/SpeechGate/pkg/engine"
	"github.com/code-100-precent/SpeechGate/pkg/protocol"
)

// fakeStreamASR 流式识别引擎，Feed始终返回空结果
type fakeStreamASR struct{}

func (e *fakeStreamASR) Device() string { return "cpu" }

func (e *fakeStreamASR) NewStream(ctx context.Context, sampleRate int) (engine.ASRStream, error) {
	return &fakeStream{}, nil
}

func (e *fakeStreamASR) TranscribeFile(ctx context.Context, data []byte, sampleRate int, opts *engine.FileTranscribeOptions) (string, error) {
	return "", nil
}

func (e *fakeStreamASR) Punctuate(ctx context.Context, text string) (string, error) {
	return text, nil
}

type fakeStream struct{}

func (s *fakeStream) Feed(ctx context.Context, pcm []byte, isFinal bool) (string, error) {
	return "", nil
}

func (s *fakeStream) Close() error { return nil }

func dialWS(t *testing.T, srv *httptest.Server, path string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readControl(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	for {
		messageType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if messageType != websocket.TextMessage {
			continue
		}
		msg, err := protocol.Decode(data)
		require.NoError(t, err)
		return msg
	}
}

func sendControl(t *testing.T, conn *websocket.Conn, msg *protocol.Message) {
	t.Helper()
	data, err := msg.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestWSTTSAuthRejected(t *testing.T) {
	env := newTestEnv(t, "secret-token-1234", "")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/v1/tts", nil)
	msg := readControl(t, conn)
	assert.Equal(t, protocol.NameTaskFailed, msg.Header.Name)
	assert.Equal(t, protocol.StatusTaskFailed, msg.Header.Status)
	assert.Contains(t, msg.Header.StatusText, "X-NLS-Token")

	// 失败帧后连接被服务端关闭
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWSTTSLifecycle(t *testing.T) {
	env := newTestEnv(t, "", "")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/v1/tts", nil)

	sendControl(t, conn, &protocol.Message{
		Header: protocol.Header{
			MessageID: protocol.NewMessageID(),
			Namespace: protocol.NamespaceFlowingSpeech,
			Name:      protocol.NameStartSynthesis,
		},
		Payload: map[string]any{"voice": "中文女", "format": "pcm", "sample_rate": 16000},
	})
	started := readControl(t, conn)
	require.Equal(t, protocol.NameSynthesisStarted, started.Header.Name)
	taskID := started.Header.TaskID

	sendControl(t, conn, &protocol.Message{
		Header: protocol.Header{
			MessageID: protocol.NewMessageID(),
			TaskID:    taskID,
			Namespace: protocol.NamespaceFlowingSpeech,
			Name:      protocol.NameRunSynthesis,
		},
		Payload: map[string]any{"text": "你好世界"},
	})

	var names []string
	binaryFrames := 0
	for {
		messageType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if messageType == websocket.BinaryMessage {
			binaryFrames++
			continue
		}
		msg, err := protocol.Decode(data)
		require.NoError(t, err)
		names = append(names, msg.Header.Name)
		if msg.Header.Name == protocol.NameSentenceEnd {
			break
		}
	}
	assert.Equal(t, protocol.NameSentenceBegin, names[0])
	assert.Contains(t, names, protocol.NameSentenceSynthesis)
	assert.Equal(t, 1, binaryFrames)

	sendControl(t, conn, &protocol.Message{
		Header: protocol.Header{
			MessageID: protocol.NewMessageID(),
			TaskID:    taskID,
			Namespace: protocol.NamespaceFlowingSpeech,
			Name:      protocol.NameStopSynthesis,
		},
	})
	completed := readControl(t, conn)
	assert.Equal(t, protocol.NameSynthesisCompleted, completed.Header.Name)
}

func TestWSASRStartStop(t *testing.T) {
	env := newTestEnv(t, "", "")
	env.handlers.manager = engine.NewManager([]engine.ASREngine{&fakeStreamASR{}}, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/v1/asr", nil)

	sendControl(t, conn, &protocol.Message{
		Header: protocol.Header{
			MessageID: protocol.NewMessageID(),
			Namespace: protocol.NamespaceSpeechTranscriber,
			Name:      protocol.NameStartTranscription,
		},
		Payload: map[string]any{"format": "pcm", "sample_rate": 16000},
	})
	started := readControl(t, conn)
	require.Equal(t, protocol.NameTranscriptionStarted, started.Header.Name)
	require.NotNil(t, started.Payload)
	assert.Contains(t, started.Payload["session_id"], "session_")

	// 一帧静音不产生任何事件
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 3200)))

	sendControl(t, conn, &protocol.Message{
		Header: protocol.Header{
			MessageID: protocol.NewMessageID(),
			TaskID:    started.Header.TaskID,
			Namespace: protocol.NamespaceSpeechTranscriber,
			Name:      protocol.NameStopTranscription,
		},
	})
	completed := readControl(t, conn)
	assert.Equal(t, protocol.NameTranscriptionCompleted, completed.Header.Name)
}
