// Package cosyvoice 对接CosyVoice风格的本地合成运行时，
// 预置音色走inference_sft，零样本克隆音色走inference_zero_shot，
// 运行时以HTTP分块流返回16bit小端PCM。
package cosyvoice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/pkg/engine"
	"github.com/code-100-precent/SpeechGate/pkg/logger"
)

// CloneSampleRate 零样本克隆模型的固定输出采样率
const CloneSampleRate = 24000

const streamChunkBytes = 8192

// Client CosyVoice运行时客户端，一个实例绑定一个设备
type Client struct {
	device string
	http   *resty.Client
}

// New 创建运行时客户端，baseURL形如 http://127.0.0.1:50000
func New(baseURL, device string) *Client {
	return &Client{
		device: device,
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(300 * time.Second),
	}
}

func (c *Client) Device() string {
	return c.device
}

// Synthesize 合成整段音频
func (c *Client) Synthesize(ctx context.Context, req *engine.SynthesisRequest) ([]byte, error) {
	var pcm []byte
	err := c.SynthesizeStream(ctx, req, func(chunk []byte) bool {
		pcm = append(pcm, chunk...)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("音频合成失败，未生成任何音频片段")
	}
	return pcm, nil
}

// SynthesizeStream 流式合成，音频块按序回调emit，
// emit返回false表示消费方取消，立即停止读取
func (c *Client) SynthesizeStream(ctx context.Context, req *engine.SynthesisRequest, emit func(pcm []byte) bool) error {
	endpoint := "/inference_sft"
	form := map[string]string{
		"tts_text":    req.Text,
		"spk_id":      req.Voice,
		"speed":       strconv.FormatFloat(req.Speed, 'f', 2, 64),
		"sample_rate": strconv.Itoa(req.SampleRate),
		"device":      c.device,
		"stream":      "true",
	}
	if req.Clone {
		endpoint = "/inference_zero_shot"
		form["prompt_text"] = req.Prompt
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetDoNotParseResponse(true).
		Post(endpoint)
	if err != nil {
		logger.Error("调用TTS运行时失败",
			zap.String("endpoint", endpoint), zap.String("voice", req.Voice), zap.Error(err))
		return fmt.Errorf("调用TTS运行时失败: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(body, 1024))
		return fmt.Errorf("TTS运行时返回异常: HTTP %d %s", resp.StatusCode(), string(detail))
	}

	buf := make([]byte, streamChunkBytes)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !emit(chunk) {
				return nil
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("读取合成音频失败: %w", err)
		}
	}
}
