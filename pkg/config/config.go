package config

import (
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/code-100-precent/SpeechGate/pkg/logger"
)

// Config 服务全局配置，全部来自环境变量
type Config struct {
	AppName    string `env:"APP_NAME"`
	AppVersion string `env:"APP_VERSION"`
	Host       string `env:"HOST"`
	Port       int    `env:"PORT"`
	Debug      bool   `env:"DEBUG"`
	Mode       string `env:"MODE"`

	// 鉴权配置：为空时鉴权可选
	AppToken string `env:"APPTOKEN"`
	AppKey   string `env:"APPKEY"`

	// 设备配置
	ASRGPUs string `env:"ASR_GPUS"`
	TTSGPUs string `env:"TTS_GPUS"`

	// 模型加载模式
	ASRModelMode string `env:"ASR_MODEL_MODE"` // realtime, offline, all
	TTSModelMode string `env:"TTS_MODEL_MODE"` // all, cosyvoice1, cosyvoice2

	// 推理运行时地址
	ASRRuntimeURL string `env:"ASR_RUNTIME_URL"`
	TTSRuntimeURL string `env:"TTS_RUNTIME_URL"`

	// 流式ASR配置
	EnableRealtimePunc     bool    `env:"ASR_ENABLE_REALTIME_PUNC"`
	EnableNearfieldFilter  bool    `env:"ASR_ENABLE_NEARFIELD_FILTER"`
	NearfieldRMSThreshold  float64 `env:"ASR_NEARFIELD_RMS_THRESHOLD"`
	MaxAudioSize           int     `env:"ASR_MAX_AUDIO_SIZE"`
	InferenceThreadPoolCap int     `env:"INFERENCE_THREAD_POOL_SIZE"`

	// 路径配置
	TempDir      string `env:"TEMP_DIR"`
	VoiceDir     string `env:"VOICE_DIR"`
	DatabasePath string `env:"DATABASE_PATH"`

	// 限流：每IP每秒请求数，0为关闭
	RateLimit int `env:"RATE_LIMIT"`

	Log logger.LogConfig
}

var (
	globalConfig *Config
	loadOnce     sync.Once
)

// Get 获取全局配置，首次调用时加载
func Get() *Config {
	loadOnce.Do(func() {
		globalConfig = load()
	})
	return globalConfig
}

// Reset 仅用于测试：清空已加载配置
func Reset() {
	globalConfig = nil
	loadOnce = sync.Once{}
}

func load() *Config {
	// .env文件不存在时只记录日志，不影响启动
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	cfg := &Config{
		AppName:    getStringOrDefault("APP_NAME", "SpeechGate"),
		AppVersion: getStringOrDefault("APP_VERSION", "1.0.0"),
		Host:       getStringOrDefault("HOST", "0.0.0.0"),
		Port:       getIntOrDefault("PORT", 8000),
		Debug:      getBoolOrDefault("DEBUG", false),
		Mode:       getStringOrDefault("MODE", "development"),

		AppToken: getStringOrDefault("APPTOKEN", ""),
		AppKey:   getStringOrDefault("APPKEY", ""),

		ASRGPUs: getStringOrDefault("ASR_GPUS", "auto"),
		TTSGPUs: getStringOrDefault("TTS_GPUS", "auto"),

		ASRModelMode: getStringOrDefault("ASR_MODEL_MODE", "all"),
		TTSModelMode: getStringOrDefault("TTS_MODEL_MODE", "all"),

		ASRRuntimeURL: getStringOrDefault("ASR_RUNTIME_URL", "http://127.0.0.1:10095"),
		TTSRuntimeURL: getStringOrDefault("TTS_RUNTIME_URL", "http://127.0.0.1:50000"),

		EnableRealtimePunc:     getBoolOrDefault("ASR_ENABLE_REALTIME_PUNC", false),
		EnableNearfieldFilter:  getBoolOrDefault("ASR_ENABLE_NEARFIELD_FILTER", false),
		NearfieldRMSThreshold:  getFloatOrDefault("ASR_NEARFIELD_RMS_THRESHOLD", 0.01),
		MaxAudioSize:           getIntOrDefault("ASR_MAX_AUDIO_SIZE", 100*1024*1024),
		InferenceThreadPoolCap: getIntOrDefault("INFERENCE_THREAD_POOL_SIZE", defaultPoolSize()),

		TempDir:      getStringOrDefault("TEMP_DIR", "temp"),
		VoiceDir:     getStringOrDefault("VOICE_DIR", "voices"),
		DatabasePath: getStringOrDefault("DATABASE_PATH", "data/async_tts.db"),

		RateLimit: getIntOrDefault("RATE_LIMIT", 0),

		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILE", "./logs/speechgate.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 20),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 50),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
	}

	ensureDir(cfg.TempDir)
	ensureDir(cfg.VoiceDir)
	return cfg
}

// defaultPoolSize 推理线程池默认容量
func defaultPoolSize() int {
	n := runtime.NumCPU()
	if n < 4 {
		return 4
	}
	return n
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("create dir %s failed: %v", dir, err)
	}
}

// getStringOrDefault 获取环境变量值，如果为空则返回默认值
func getStringOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault 获取布尔环境变量值，如果为空则返回默认值
func getBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return strings.EqualFold(value, "true") || value == "1"
}

// getIntOrDefault 获取整数环境变量值，如果为空则返回默认值
func getIntOrDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getFloatOrDefault 获取浮点环境变量值，如果为空则返回默认值
func getFloatOrDefault(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
