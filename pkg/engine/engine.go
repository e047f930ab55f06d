package engine

import "context"

// 引擎层封装对本地推理运行时的访问，
// ASR对接FunASR风格运行时，TTS对接CosyVoice风格运行时

// ASRStream 流式识别会话，按块送入音频并取回增量文本。
// isFinal为true时触发一次冲刷，运行时清空内部缓存，
// 同一会话可继续用于下一句。
type ASRStream interface {
	Feed(ctx context.Context, pcm []byte, isFinal bool) (string, error)
	Close() error
}

// FileTranscribeOptions 一句话识别的可选参数
type FileTranscribeOptions struct {
	Language        string
	Region          string
	VocabularyID    string
	CustomizationID string
	Disfluency      bool
}

// ASREngine 语音识别引擎
type ASREngine interface {
	Device() string
	NewStream(ctx context.Context, sampleRate int) (ASRStream, error)
	TranscribeFile(ctx context.Context, audio []byte, sampleRate int, opts *FileTranscribeOptions) (string, error)
	Punctuate(ctx context.Context, text string) (string, error)
}

// SynthesisRequest 合成请求，Clone为true时走零样本克隆链路
type SynthesisRequest struct {
	Text       string
	Voice      string
	Speed      float64
	SampleRate int
	Prompt     string
	Clone      bool
}

// TTSEngine 语音合成引擎，输出为请求采样率的16bit小端PCM
type TTSEngine interface {
	Device() string
	Synthesize(ctx context.Context, req *SynthesisRequest) ([]byte, error)
	SynthesizeStream(ctx context.Context, req *SynthesisRequest, emit func(pcm []byte) bool) error
}
