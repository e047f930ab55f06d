// Package funasr 对接FunASR风格的本地推理运行时，
// 流式识别走WebSocket，文件识别与标点走HTTP。
package funasr

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/pkg/engine"
	"github.com/code-100-precent/SpeechGate/pkg/logger"
)

// Client FunASR运行时客户端，一个实例绑定一个设备
type Client struct {
	baseURL string
	device  string
	http    *resty.Client
	dialer  *websocket.Dialer
}

// New 创建运行时客户端，baseURL形如 http://127.0.0.1:10095
func New(baseURL, device string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		device:  device,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(120 * time.Second),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (c *Client) Device() string {
	return c.device
}

// wsURL 把HTTP地址转换为对应的WebSocket地址
func (c *Client) wsURL() string {
	url := c.baseURL
	url = strings.Replace(url, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return url + "/ws/recognize"
}

// startRequest 流式会话的起始配置帧
type startRequest struct {
	Mode            string `json:"mode"`
	ChunkSize       []int  `json:"chunk_size"`
	AudioFs         int    `json:"audio_fs"`
	EncoderLookBack int    `json:"encoder_look_back"`
	DecoderLookBack int    `json:"decoder_look_back"`
	IsSpeaking      bool   `json:"is_speaking"`
	Device          string `json:"device"`
}

type streamResult struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error,omitempty"`
}

// stream 流式识别会话，Feed串行调用，conn写读一问一答
type stream struct {
	conn       *websocket.Conn
	sampleRate int
	device     string
	mu         sync.Mutex
	closed     bool
}

// NewStream 建立流式识别会话
func (c *Client) NewStream(ctx context.Context, sampleRate int) (engine.ASRStream, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		logger.Error("连接ASR运行时失败", zap.String("url", c.wsURL()), zap.Error(err))
		return nil, fmt.Errorf("连接ASR运行时失败: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	s := &stream{conn: conn, sampleRate: sampleRate, device: c.device}
	if err := s.sendStart(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *stream) sendStart() error {
	start := startRequest{
		Mode:            "online",
		ChunkSize:       []int{0, 10, 5},
		AudioFs:         s.sampleRate,
		EncoderLookBack: 4,
		DecoderLookBack: 1,
		IsSpeaking:      true,
		Device:          s.device,
	}
	data, err := sonic.Marshal(start)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Feed 送入一块PCM并等待运行时返回该块的识别文本。
// isFinal为true时发送冲刷指令，运行时返回最终文本并清空缓存，
// 随后重新下发起始配置以便继续下一句。
func (s *stream) Feed(ctx context.Context, pcm []byte, isFinal bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("识别会话已关闭")
	}

	if len(pcm) > 0 {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
			return "", fmt.Errorf("发送音频失败: %w", err)
		}
	}
	if isFinal {
		if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"is_speaking": false}`)); err != nil {
			return "", fmt.Errorf("发送冲刷指令失败: %w", err)
		}
	} else if len(pcm) == 0 {
		return "", nil
	}

	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetReadDeadline(deadline)

	_, message, err := s.conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("读取识别结果失败: %w", err)
	}
	var result streamResult
	if err := sonic.Unmarshal(message, &result); err != nil {
		return "", fmt.Errorf("解析识别结果失败: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("识别运行时错误: %s", result.Error)
	}

	if isFinal {
		// 冲刷后运行时缓存已清空，重新开始下一句
		if err := s.sendStart(); err != nil {
			return result.Text, err
		}
	}
	return result.Text, nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

type fileResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// TranscribeFile 整段音频离线识别
func (c *Client) TranscribeFile(ctx context.Context, audio []byte, sampleRate int, opts *engine.FileTranscribeOptions) (string, error) {
	if opts == nil {
		opts = &engine.FileTranscribeOptions{}
	}
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetQueryParam("audio_fs", strconv.Itoa(sampleRate)).
		SetQueryParam("device", c.device).
		SetBody(audio)
	if opts.Language != "" {
		req.SetQueryParam("language", opts.Language)
	}
	if opts.Region != "" {
		req.SetQueryParam("region", opts.Region)
	}
	if opts.VocabularyID != "" {
		req.SetQueryParam("vocabulary_id", opts.VocabularyID)
	}
	if opts.CustomizationID != "" {
		req.SetQueryParam("customization_id", opts.CustomizationID)
	}
	if opts.Disfluency {
		req.SetQueryParam("disfluency", "true")
	}

	var result fileResponse
	resp, err := req.SetResult(&result).Post("/api/v1/asr")
	if err != nil {
		return "", fmt.Errorf("调用ASR运行时失败: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("ASR运行时返回异常: HTTP %d %s", resp.StatusCode(), resp.String())
	}
	if result.Error != "" {
		return "", fmt.Errorf("识别运行时错误: %s", result.Error)
	}
	return result.Text, nil
}

type puncResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Punctuate 离线标点恢复
func (c *Client) Punctuate(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", nil
	}
	var result puncResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text}).
		SetResult(&result).
		Post("/api/v1/punc")
	if err != nil {
		return "", fmt.Errorf("调用标点运行时失败: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("标点运行时返回异常: HTTP %d", resp.StatusCode())
	}
	if result.Error != "" {
		return "", fmt.Errorf("标点运行时错误: %s", result.Error)
	}
	return result.Text, nil
}
