package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/youpy/go-wav"
)

// WrapPCM 将16bit PCM字节包装为WAV字节
func WrapPCM(pcm []byte, sampleRate, channels int) ([]byte, error) {
	var buf bytes.Buffer
	numSamples := uint32(len(pcm) / 2 / channels)
	w := wav.NewWriter(&buf, numSamples, uint16(channels), uint32(sampleRate), 16)
	if _, err := w.Write(pcm); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractPCM 从WAV字节中提取原始PCM数据和采样率
func ExtractPCM(data []byte) ([]byte, int, error) {
	r := wav.NewReader(bytes.NewReader(data))
	format, err := r.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("read wav header: %w", err)
	}
	pcm, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read wav data: %w", err)
	}
	return pcm, int(format.SampleRate), nil
}

// IsWAV 判断字节流是否带有RIFF/WAVE文件头
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}
