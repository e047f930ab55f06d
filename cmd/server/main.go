package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/cmd/bootstrap"
	handlers "github.com/code-100-precent/SpeechGate/internal/handler"
	"github.com/code-100-precent/SpeechGate/internal/task"
	"github.com/code-100-precent/SpeechGate/pkg/config"
	"github.com/code-100-precent/SpeechGate/pkg/engine"
	"github.com/code-100-precent/SpeechGate/pkg/engine/cosyvoice"
	"github.com/code-100-precent/SpeechGate/pkg/engine/funasr"
	"github.com/code-100-precent/SpeechGate/pkg/executor"
	"github.com/code-100-precent/SpeechGate/pkg/logger"
	"github.com/code-100-precent/SpeechGate/pkg/voiceclone"
)

func main() {
	// 1. 加载配置（含.env）
	cfg := config.Get()

	// 2. 初始化日志
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		panic("logger init failed: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("启动语音服务",
		zap.String("app", cfg.AppName),
		zap.String("version", cfg.AppVersion),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port))

	// 3. 初始化数据库
	db, err := bootstrap.SetupDatabase(cfg)
	if err != nil {
		logger.Fatal("数据库初始化失败", zap.Error(err))
	}

	// 4. 按设备数创建引擎实例并装入池
	asrDevices := engine.ParseDeviceSpec(cfg.ASRGPUs)
	ttsDevices := engine.ParseDeviceSpec(cfg.TTSGPUs)
	asrEngines := make([]engine.ASREngine, 0, len(asrDevices))
	for _, device := range asrDevices {
		asrEngines = append(asrEngines, funasr.New(cfg.ASRRuntimeURL, device))
	}
	ttsEngines := make([]engine.TTSEngine, 0, len(ttsDevices))
	for _, device := range ttsDevices {
		ttsEngines = append(ttsEngines, cosyvoice.New(cfg.TTSRuntimeURL, device))
	}
	manager := engine.NewManager(asrEngines, ttsEngines)
	engine.SetGlobal(manager)
	logger.Info("引擎池就绪",
		zap.Strings("asr_devices", asrDevices),
		zap.Strings("tts_devices", ttsDevices))

	// 5. 音色注册表与推理执行器
	registry := voiceclone.NewRegistry(cfg.VoiceDir)
	exec := executor.GetGlobal(cfg.InferenceThreadPoolCap)

	// 6. 异步合成后台协程
	worker := task.NewAsyncTTSWorker(db, manager, registry, cfg.TempDir)
	worker.Start()

	// 7. 路由
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	h := handlers.NewHandlers(cfg, db, manager, registry, worker, exec)
	h.Register(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: r,
	}

	go func() {
		logger.Info("HTTP服务监听", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP服务异常退出", zap.Error(err))
		}
	}()

	// 8. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("收到退出信号，开始关闭")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP服务关闭失败", zap.Error(err))
	}
	worker.Stop()
	exec.Shutdown(true)
	logger.Info("服务已退出")
}
