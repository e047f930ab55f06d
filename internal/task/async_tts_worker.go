package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/code-100-precent/SpeechGate/internal/models"
	"github.com/code-100-precent/SpeechGate/pkg/audio"
	"github.com/code-100-precent/SpeechGate/pkg/engine"
	"github.com/code-100-precent/SpeechGate/pkg/engine/cosyvoice"
	"github.com/code-100-precent/SpeechGate/pkg/logger"
	"github.com/code-100-precent/SpeechGate/pkg/metrics"
	"github.com/code-100-precent/SpeechGate/pkg/protocol"
	"github.com/code-100-precent/SpeechGate/pkg/textnorm"
	"github.com/code-100-precent/SpeechGate/pkg/voiceclone"
)

const (
	pendingBatchSize = 5
	pollInterval     = 2 * time.Second
	errorInterval    = 5 * time.Second
	notifyTimeout    = 30 * time.Second
	// 每天凌晨三点清理过期任务
	cleanupCronSpec = "0 3 * * *"
)

// AsyncTTSWorker 异步合成后台工作协程：
// 轮询待处理任务、分段合成、落盘音频、回填状态并发送回调
type AsyncTTSWorker struct {
	db       *gorm.DB
	manager  *engine.Manager
	registry *voiceclone.Registry
	tempDir  string

	notifyClient *resty.Client
	cron         *cron.Cron

	startOnce sync.Once
	stop      chan struct{}
}

// NewAsyncTTSWorker 创建工作协程
func NewAsyncTTSWorker(db *gorm.DB, manager *engine.Manager, registry *voiceclone.Registry, tempDir string) *AsyncTTSWorker {
	return &AsyncTTSWorker{
		db:           db,
		manager:      manager,
		registry:     registry,
		tempDir:      tempDir,
		notifyClient: resty.New().SetTimeout(notifyTimeout),
		cron:         cron.New(),
		stop:         make(chan struct{}),
	}
}

// Start 启动轮询与定时清理，重复调用只生效一次
func (w *AsyncTTSWorker) Start() {
	w.startOnce.Do(func() {
		_, err := w.cron.AddFunc(cleanupCronSpec, w.cleanup)
		if err != nil {
			logger.Error("注册清理任务失败", zap.Error(err))
		}
		w.cron.Start()
		go w.loop()
		logger.Info("异步TTS后台处理协程启动")
	})
}

// Stop 停止轮询与定时清理
func (w *AsyncTTSWorker) Stop() {
	close(w.stop)
	w.cron.Stop()
}

func (w *AsyncTTSWorker) loop() {
	for {
		interval := pollInterval
		if err := w.runIteration(); err != nil {
			logger.Error("异步TTS批处理异常", zap.Error(err))
			interval = errorInterval
		}
		select {
		case <-w.stop:
			return
		case <-time.After(interval):
		}
	}
}

// runIteration 处理一批任务，随后清理超过保留期的终态行
func (w *AsyncTTSWorker) runIteration() error {
	if err := w.processBatch(); err != nil {
		return err
	}
	w.cleanup()
	return nil
}

func (w *AsyncTTSWorker) processBatch() error {
	tasks, err := models.GetPendingAsyncTTSTasks(w.db, pendingBatchSize)
	if err != nil {
		return err
	}
	for i := range tasks {
		w.processTask(&tasks[i])
	}
	return nil
}

func (w *AsyncTTSWorker) processTask(task *models.AsyncTTSTask) {
	logger.Info("处理异步TTS任务", zap.String("task_id", task.TaskID))
	start := time.Now()

	audioAddress, sentences, err := w.synthesize(task)
	if err != nil {
		logger.Error("异步TTS任务失败",
			zap.String("task_id", task.TaskID), zap.Error(err))
		_ = models.UpdateAsyncTTSTaskStatus(w.db, task.TaskID, models.TaskStatusFailed,
			&models.AsyncTTSTaskUpdate{
				ErrorCode:    50000000,
				ErrorMessage: err.Error(),
			})
		metrics.AsyncTasksTotal.WithLabelValues(models.TaskStatusFailed).Inc()
		if task.EnableNotify && task.NotifyURL != "" {
			w.sendErrorNotify(task, err)
		}
		return
	}

	sentencesJSON := ""
	if sentences != nil {
		if data, mErr := sonic.Marshal(sentences); mErr == nil {
			sentencesJSON = string(data)
		}
	}
	_ = models.UpdateAsyncTTSTaskStatus(w.db, task.TaskID, models.TaskStatusSuccess,
		&models.AsyncTTSTaskUpdate{
			AudioAddress: audioAddress,
			Sentences:    sentencesJSON,
			ErrorMessage: "SUCCESS",
		})
	metrics.AsyncTasksTotal.WithLabelValues(models.TaskStatusSuccess).Inc()
	metrics.SynthesisDuration.WithLabelValues("async").Observe(time.Since(start).Seconds())
	logger.Info("异步TTS任务完成",
		zap.String("task_id", task.TaskID),
		zap.Duration("elapsed", time.Since(start)))

	if task.EnableNotify && task.NotifyURL != "" {
		w.sendSuccessNotify(task, audioAddress, sentences)
	}
}

// synthesize 合成任务音频并落盘，开启字幕时分句合成并记录时间戳
func (w *AsyncTTSWorker) synthesize(task *models.AsyncTTSTask) (string, []models.SubtitleSentence, error) {
	cleanText := textnorm.CleanForTTS(task.Text)
	if cleanText == "" {
		return "", nil, fmt.Errorf("清理后文本为空")
	}

	eng, idx := w.manager.SelectTTS()
	if eng == nil {
		return "", nil, fmt.Errorf("TTS engine not available")
	}
	defer w.manager.ReleaseTTS(idx)

	sampleRate := task.SampleRate
	isClone := w.registry != nil && w.registry.IsClone(task.Voice)
	if isClone {
		sampleRate = cosyvoice.CloneSampleRate
	}

	ctx := context.Background()
	var pcm []byte
	var sentences []models.SubtitleSentence

	if task.EnableSubtitle {
		elapsed := 0
		for _, sentence := range textnorm.SplitSentences(cleanText) {
			part, err := eng.Synthesize(ctx, &engine.SynthesisRequest{
				Text:       sentence,
				Voice:      task.Voice,
				Speed:      1.0,
				SampleRate: sampleRate,
				Clone:      isClone,
			})
			if err != nil {
				return "", nil, err
			}
			duration := audio.DurationMs(len(part)/2, sampleRate)
			sentences = append(sentences, models.SubtitleSentence{
				Text:      sentence,
				BeginTime: elapsed,
				EndTime:   elapsed + duration,
			})
			elapsed += duration
			pcm = append(pcm, part...)
		}
	} else {
		var err error
		pcm, err = eng.Synthesize(ctx, &engine.SynthesisRequest{
			Text:       cleanText,
			Voice:      task.Voice,
			Speed:      1.0,
			SampleRate: sampleRate,
			Clone:      isClone,
		})
		if err != nil {
			return "", nil, err
		}
	}

	filename := fmt.Sprintf("async_tts_%s.%s", task.TaskID, task.Format)
	outPath := filepath.Join(w.tempDir, filename)
	data := pcm
	if task.Format != "pcm" {
		wrapped, err := audio.WrapPCM(pcm, sampleRate, 1)
		if err != nil {
			return "", nil, err
		}
		data = wrapped
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return "", nil, fmt.Errorf("写出音频文件失败: %w", err)
	}

	return "/tmp/" + filename, sentences, nil
}

// sendSuccessNotify 回调只发一次，失败不重试
func (w *AsyncTTSWorker) sendSuccessNotify(task *models.AsyncTTSTask, audioAddress string, sentences []models.SubtitleSentence) {
	payload := models.AsyncTTSResponse{
		Status:       200,
		ErrorCode:    20000000,
		ErrorMessage: "SUCCESS",
		RequestID:    protocol.NewRequestID(),
		Data: models.AsyncTTSTaskData{
			TaskID:       task.TaskID,
			AudioAddress: audioAddress,
			NotifyCustom: task.NotifyURL,
			Sentences:    sentences,
		},
	}
	w.postNotify(task.NotifyURL, payload)
}

func (w *AsyncTTSWorker) sendErrorNotify(task *models.AsyncTTSTask, taskErr error) {
	payload := models.AsyncTTSErrorResponse{
		ErrorMessage: taskErr.Error(),
		ErrorCode:    50000000,
		RequestID:    protocol.NewRequestID(),
		URL:          task.NotifyURL,
		Status:       500,
	}
	w.postNotify(task.NotifyURL, payload)
}

func (w *AsyncTTSWorker) postNotify(url string, payload any) {
	resp, err := w.notifyClient.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		logger.Error("发送回调通知失败", zap.String("url", url), zap.Error(err))
		return
	}
	logger.Info("回调通知已发送",
		zap.String("url", url), zap.Int("status", resp.StatusCode()))
}

func (w *AsyncTTSWorker) cleanup() {
	deleted, err := models.CleanupOldAsyncTTSTasks(w.db)
	if err != nil {
		logger.Error("清理过期任务失败", zap.Error(err))
		return
	}
	if deleted > 0 {
		logger.Info("清理过期异步任务", zap.Int64("deleted", deleted))
	}
}
