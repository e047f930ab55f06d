package protocol

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// TranscriptionParams StartTranscription携带的识别参数
type TranscriptionParams struct {
	Format             string
	SampleRate         int
	IntermediateResult bool
	Punctuation        bool
	ITN                bool
	MaxSentenceSilence int
	EnableWords        bool
}

// ParseTranscriptionParams 解析识别参数，payload字段类型宽松（数字可能以字符串或浮点出现）
func ParseTranscriptionParams(payload map[string]any) (*TranscriptionParams, error) {
	p := &TranscriptionParams{
		Format:             "pcm",
		SampleRate:         16000,
		IntermediateResult: true,
		Punctuation:        true,
		ITN:                true,
		MaxSentenceSilence: 800,
	}
	if payload == nil {
		return p, nil
	}
	if v, ok := payload["format"]; ok {
		p.Format = cast.ToString(v)
	}
	if v, ok := payload["sample_rate"]; ok {
		rate, err := cast.ToIntE(v)
		if err != nil {
			return nil, fmt.Errorf("无效的采样率参数: %v", v)
		}
		p.SampleRate = rate
	}
	if v, ok := payload["enable_intermediate_result"]; ok {
		p.IntermediateResult = cast.ToBool(v)
	}
	if v, ok := payload["enable_punctuation_prediction"]; ok {
		p.Punctuation = cast.ToBool(v)
	}
	if v, ok := payload["enable_inverse_text_normalization"]; ok {
		p.ITN = cast.ToBool(v)
	}
	if v, ok := payload["max_sentence_silence"]; ok {
		ms, err := cast.ToIntE(v)
		if err != nil {
			return nil, fmt.Errorf("无效的max_sentence_silence参数: %v", v)
		}
		p.MaxSentenceSilence = ms
	}
	if v, ok := payload["enable_words"]; ok {
		p.EnableWords = cast.ToBool(v)
	}
	if p.SampleRate != 8000 && p.SampleRate != 16000 {
		return nil, fmt.Errorf("不支持的采样率: %d", p.SampleRate)
	}
	return p, nil
}

// MaxEmptyCount 连续空结果判定句子结束的阈值
func (p *TranscriptionParams) MaxEmptyCount() int {
	n := p.MaxSentenceSilence * 2 / 600
	if n < 3 {
		return 3
	}
	return n
}

// SynthesisParams StartSynthesis携带的合成参数
type SynthesisParams struct {
	Voice          string
	Format         string
	SampleRate     int
	Volume         int
	SpeechRate     int
	PitchRate      int
	EnableSubtitle bool
	Prompt         string
}

// 合成支持的采样率
var synthesisSampleRates = map[int]bool{
	8000: true, 16000: true, 22050: true, 24000: true, 44100: true, 48000: true,
}

// 合成支持的音频格式，MP3仅声明兼容，服务端不做转码
var synthesisFormats = map[string]bool{
	"pcm": true, "wav": true, "mp3": true,
}

// ParseSynthesisParams 解析合成参数并做格式与采样率校验
func ParseSynthesisParams(payload map[string]any) (*SynthesisParams, error) {
	p := &SynthesisParams{
		Voice:      "中文女",
		Format:     "PCM",
		SampleRate: 22050,
		Volume:     50,
	}
	if payload == nil {
		return p, nil
	}
	if v, ok := payload["voice"]; ok {
		p.Voice = cast.ToString(v)
	}
	if v, ok := payload["format"]; ok {
		p.Format = cast.ToString(v)
	}
	if v, ok := payload["sample_rate"]; ok {
		rate, err := cast.ToIntE(v)
		if err != nil {
			return nil, fmt.Errorf("无效的采样率参数: %v", v)
		}
		p.SampleRate = rate
	}
	if v, ok := payload["volume"]; ok {
		p.Volume = cast.ToInt(v)
	}
	if v, ok := payload["speech_rate"]; ok {
		p.SpeechRate = cast.ToInt(v)
	}
	if v, ok := payload["pitch_rate"]; ok {
		p.PitchRate = cast.ToInt(v)
	}
	if v, ok := payload["enable_subtitle"]; ok {
		p.EnableSubtitle = cast.ToBool(v)
	}
	if v, ok := payload["prompt"]; ok {
		p.Prompt = cast.ToString(v)
	}

	if !synthesisFormats[normalizeFormat(p.Format)] {
		return nil, fmt.Errorf("不支持的音频格式: %s", p.Format)
	}
	if !synthesisSampleRates[p.SampleRate] {
		return nil, fmt.Errorf("不支持的采样率: %d", p.SampleRate)
	}
	return p, nil
}

// Speed 将阿里云speech_rate(-500~500)映射为内部speed(0.5~2.0)
func (p *SynthesisParams) Speed() float64 {
	speed := 1.0 + float64(p.SpeechRate)/500.0
	if speed < 0.5 {
		speed = 0.5
	}
	if speed > 2.0 {
		speed = 2.0
	}
	return speed
}

// IsPCM 是否按原始PCM下发二进制帧
func (p *SynthesisParams) IsPCM() bool {
	return normalizeFormat(p.Format) == "pcm"
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}
