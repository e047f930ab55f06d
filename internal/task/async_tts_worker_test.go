package task

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"

	"github.com/code-100-precent/SpeechGate/internal/models"
	"github.com/code-100-precent/SpeechGate/pkg/audio"
	"github.com/code-100-precent/SpeechGate/pkg/engine"
)

func newTestDB(t *testing.T) *gorm.DB {
	silent := glog.New(log.New(io.Discard, "", log.LstdFlags), glog.Config{LogLevel: glog.Silent})
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: silent})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AsyncTTSTask{}))
	return db
}

// stubTTSEngine 每句返回固定时长的PCM
type stubTTSEngine struct {
	err error
}

func (e *stubTTSEngine) Device() string { return "cpu" }

func (e *stubTTSEngine) Synthesize(ctx context.Context, req *engine.SynthesisRequest) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	// 16000个采样，16kHz下正好1秒
	return make([]byte, 16000*2), nil
}

func (e *stubTTSEngine) SynthesizeStream(ctx context.Context, req *engine.SynthesisRequest, emit func(pcm []byte) bool) error {
	pcm, err := e.Synthesize(ctx, req)
	if err != nil {
		return err
	}
	emit(pcm)
	return nil
}

func newWorker(t *testing.T, db *gorm.DB, eng engine.TTSEngine) *AsyncTTSWorker {
	m := engine.NewManager(nil, []engine.TTSEngine{eng})
	return NewAsyncTTSWorker(db, m, nil, t.TempDir())
}

func TestProcessBatchSuccess(t *testing.T) {
	db := newTestDB(t)
	w := newWorker(t, db, &stubTTSEngine{})

	require.NoError(t, models.CreateAsyncTTSTask(db, &models.AsyncTTSTask{
		TaskID:     "task-ok",
		RequestID:  "req1",
		Text:       "你好世界",
		Voice:      "中文女",
		SampleRate: 16000,
		Format:     "wav",
	}))

	require.NoError(t, w.processBatch())

	task, err := models.GetAsyncTTSTask(db, "task-ok")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, task.Status)
	assert.Equal(t, "/tmp/async_tts_task-ok.wav", task.AudioAddress)
	assert.Equal(t, "SUCCESS", task.ErrorMessage)
	assert.NotNil(t, task.CompletedAt)

	data, err := os.ReadFile(filepath.Join(w.tempDir, "async_tts_task-ok.wav"))
	require.NoError(t, err)
	assert.True(t, audio.IsWAV(data))
}

func TestProcessBatchWithSubtitles(t *testing.T) {
	db := newTestDB(t)
	w := newWorker(t, db, &stubTTSEngine{})

	require.NoError(t, models.CreateAsyncTTSTask(db, &models.AsyncTTSTask{
		TaskID:         "task-sub",
		RequestID:      "req1",
		Text:           "第一句。第二句。",
		Voice:          "中文女",
		SampleRate:     16000,
		Format:         "wav",
		EnableSubtitle: true,
	}))

	require.NoError(t, w.processBatch())

	task, err := models.GetAsyncTTSTask(db, "task-sub")
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusSuccess, task.Status)

	var sentences []models.SubtitleSentence
	require.NoError(t, sonic.UnmarshalString(task.Sentences, &sentences))
	require.Len(t, sentences, 2)
	assert.Equal(t, "第一句。", sentences[0].Text)
	assert.Equal(t, 0, sentences[0].BeginTime)
	assert.Equal(t, 1000, sentences[0].EndTime)
	assert.Equal(t, 1000, sentences[1].BeginTime)
	assert.Equal(t, 2000, sentences[1].EndTime)
}

func TestProcessBatchFailureMarksTask(t *testing.T) {
	db := newTestDB(t)
	w := newWorker(t, db, &stubTTSEngine{err: errors.New("模型未加载")})

	require.NoError(t, models.CreateAsyncTTSTask(db, &models.AsyncTTSTask{
		TaskID:    "task-bad",
		RequestID: "req1",
		Text:      "文本",
		Voice:     "中文女",
		Format:    "wav",
	}))

	require.NoError(t, w.processBatch())

	task, err := models.GetAsyncTTSTask(db, "task-bad")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, task.Status)
	assert.Equal(t, 50000000, task.ErrorCode)
	assert.Contains(t, task.ErrorMessage, "模型未加载")
}

func TestNotifyCallbackSent(t *testing.T) {
	db := newTestDB(t)
	w := newWorker(t, db, &stubTTSEngine{})

	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, models.CreateAsyncTTSTask(db, &models.AsyncTTSTask{
		TaskID:       "task-notify",
		RequestID:    "req1",
		Text:         "你好",
		Voice:        "中文女",
		SampleRate:   16000,
		Format:       "wav",
		EnableNotify: true,
		NotifyURL:    srv.URL,
	}))

	require.NoError(t, w.processBatch())

	select {
	case body := <-received:
		var resp models.AsyncTTSResponse
		require.NoError(t, sonic.Unmarshal(body, &resp))
		assert.Equal(t, 200, resp.Status)
		assert.Equal(t, 20000000, resp.ErrorCode)
		assert.Equal(t, "SUCCESS", resp.ErrorMessage)
		assert.Equal(t, "task-notify", resp.Data.TaskID)
		assert.Equal(t, "/tmp/async_tts_task-notify.wav", resp.Data.AudioAddress)
	case <-time.After(3 * time.Second):
		t.Fatal("callback not received")
	}
}

func TestIterationReapsExpiredTasks(t *testing.T) {
	db := newTestDB(t)
	w := newWorker(t, db, &stubTTSEngine{})

	expired := &models.AsyncTTSTask{
		TaskID:    "task-old",
		RequestID: "req1",
		Text:      "文本",
		Voice:     "中文女",
		Format:    "wav",
	}
	expired.CreatedAt = time.Now().AddDate(0, 0, -8)
	require.NoError(t, models.CreateAsyncTTSTask(db, expired))
	require.NoError(t, models.UpdateAsyncTTSTaskStatus(db, "task-old", models.TaskStatusSuccess, nil))

	// 每轮批处理顺带清理过期终态行
	require.NoError(t, w.runIteration())

	_, err := models.GetAsyncTTSTask(db, "task-old")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStartIdempotent(t *testing.T) {
	db := newTestDB(t)
	w := newWorker(t, db, &stubTTSEngine{})

	w.Start()
	w.Start()
	w.Stop()
}
