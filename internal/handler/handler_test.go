package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/code-100-precent/SpeechGate/internal/models"
	"github.com/code-100-precent/SpeechGate/internal/task"
	"github.com/code-100-precent/SpeechGate/pkg/audio"
	"github.com/code-100-precent/SpeechGate/pkg/config"
	"github.com/code-100-precent/SpeechGate/pkg/engine"
	"github.com/code-100-precent/SpeechGate/pkg/executor"
	"github.com/code-100-precent/SpeechGate/pkg/response"
	"github.com/code-100-precent/SpeechGate/pkg/voiceclone"
)

type fakeFileASR struct {
	result string
}

func (e *fakeFileASR) Device() string { return "cpu" }

func (e *fakeFileASR) NewStream(ctx context.Context, sampleRate int) (engine.ASRStream, error) {
	return nil, nil
}

func (e *fakeFileASR) TranscribeFile(ctx context.Context, data []byte, sampleRate int, opts *engine.FileTranscribeOptions) (string, error) {
	return e.result, nil
}

func (e *fakeFileASR) Punctuate(ctx context.Context, text string) (string, error) {
	return text + "。", nil
}

type fakeTTS struct{}

func (e *fakeTTS) Device() string { return "cpu" }

func (e *fakeTTS) Synthesize(ctx context.Context, req *engine.SynthesisRequest) ([]byte, error) {
	return make([]byte, 3200), nil
}

func (e *fakeTTS) SynthesizeStream(ctx context.Context, req *engine.SynthesisRequest, emit func(pcm []byte) bool) error {
	emit(make([]byte, 3200))
	return nil
}

type testEnv struct {
	handlers *Handlers
	router   *gin.Engine
	db       *gorm.DB
	tempDir  string
}

func newTestEnv(t *testing.T, appToken, appKey string) *testEnv {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AsyncTTSTask{}))

	tempDir := t.TempDir()
	cfg := &config.Config{
		AppName:      "SpeechGate",
		AppVersion:   "1.0.0",
		AppToken:     appToken,
		AppKey:       appKey,
		ASRGPUs:      "cpu",
		TTSGPUs:      "cpu",
		ASRModelMode: "all",
		MaxAudioSize: 1024 * 1024,
		TempDir:      tempDir,
		VoiceDir:     t.TempDir(),
	}

	manager := engine.NewManager(
		[]engine.ASREngine{&fakeFileASR{result: "今天天气不错"}},
		[]engine.TTSEngine{&fakeTTS{}},
	)
	registry := voiceclone.NewRegistry(cfg.VoiceDir)
	worker := task.NewAsyncTTSWorker(db, manager, registry, tempDir)
	t.Cleanup(worker.Stop)

	h := NewHandlers(cfg, db, manager, registry, worker, executor.New(2))
	router := gin.New()
	h.Register(router)
	return &testEnv{handlers: h, router: router, db: db, tempDir: tempDir}
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), out))
}

func TestRootBanner(t *testing.T) {
	env := newTestEnv(t, "", "")
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "SpeechGate", body["message"])
	endpoints := body["endpoints"].(map[string]any)
	assert.Equal(t, "/stream/v1/asr", endpoints["asr"])
	assert.Equal(t, "/ws/v1/tts", endpoints["tts_ws"])
}

func TestASRTranscribeBinaryBody(t *testing.T) {
	env := newTestEnv(t, "", "")
	req := httptest.NewRequest(http.MethodPost, "/stream/v1/asr?sample_rate=16000",
		bytes.NewReader(make([]byte, 3200)))
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body response.Envelope
	decodeJSON(t, rec, &body)
	assert.Equal(t, response.StatusSuccess, body.Status)
	assert.Equal(t, "今天天气不错", body.Result)
	assert.NotEmpty(t, body.TaskID)
	assert.Equal(t, body.TaskID, rec.Header().Get("task_id"))
}

func TestASRTranscribeWithPunctuationAndITN(t *testing.T) {
	env := newTestEnv(t, "", "")
	env.handlers.manager = engine.NewManager(
		[]engine.ASREngine{&fakeFileASR{result: "温度二十三度"}}, nil)

	req := httptest.NewRequest(http.MethodPost,
		"/stream/v1/asr?enable_punctuation_prediction=true&enable_inverse_text_normalization=true",
		bytes.NewReader(make([]byte, 320)))
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body response.Envelope
	decodeJSON(t, rec, &body)
	assert.Equal(t, "温度23度。", body.Result)
}

func TestASRTranscribeEmptyBody(t *testing.T) {
	env := newTestEnv(t, "", "")
	rec := env.do(httptest.NewRequest(http.MethodPost, "/stream/v1/asr", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body response.Envelope
	decodeJSON(t, rec, &body)
	assert.Equal(t, response.StatusInvalidMessage, body.Status)
	assert.Equal(t, "音频数据为空", body.Message)
}

func TestASRTranscribeInvalidSampleRate(t *testing.T) {
	env := newTestEnv(t, "", "")
	req := httptest.NewRequest(http.MethodPost, "/stream/v1/asr?sample_rate=12345",
		bytes.NewReader(make([]byte, 320)))
	rec := env.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body response.Envelope
	decodeJSON(t, rec, &body)
	assert.Equal(t, response.StatusInvalidParameter, body.Status)
	assert.Contains(t, body.Message, "不支持的采样率")
}

func TestASRTranscribeAuthRequired(t *testing.T) {
	env := newTestEnv(t, "secret-token-1234", "")
	req := httptest.NewRequest(http.MethodPost, "/stream/v1/asr",
		bytes.NewReader(make([]byte, 320)))
	rec := env.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body response.Envelope
	decodeJSON(t, rec, &body)
	assert.Equal(t, response.StatusAuthenticationFailed, body.Status)

	// 带合法token后放行
	req = httptest.NewRequest(http.MethodPost, "/stream/v1/asr",
		bytes.NewReader(make([]byte, 320)))
	req.Header.Set("X-NLS-Token", "secret-token-1234")
	rec = env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestASRTranscribeAudioAddress(t *testing.T) {
	env := newTestEnv(t, "", "")

	wav, err := audio.WrapPCM(make([]byte, 3200), 16000, 1)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	req := httptest.NewRequest(http.MethodPost,
		"/stream/v1/asr?format=wav&audio_address="+srv.URL+"/a.wav", nil)
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body response.Envelope
	decodeJSON(t, rec, &body)
	assert.Equal(t, response.StatusSuccess, body.Status)
}

func TestASRHealthAndModels(t *testing.T) {
	env := newTestEnv(t, "", "")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/stream/v1/asr/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	decodeJSON(t, rec, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, true, health["model_loaded"])
	assert.NotNil(t, health["memory_usage"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/stream/v1/asr/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var modelsResp map[string]any
	decodeJSON(t, rec, &modelsResp)
	assert.EqualValues(t, 2, modelsResp["total"])
	assert.EqualValues(t, 2, modelsResp["loaded_count"])
}

func TestTTSSynthesize(t *testing.T) {
	env := newTestEnv(t, "", "")

	body, _ := sonic.Marshal(gin.H{"text": "你好，世界", "voice": "中文女", "speech_rate": 0})
	req := httptest.NewRequest(http.MethodPost, "/stream/v1/tts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ttsResult
	decodeJSON(t, rec, &resp)
	assert.Equal(t, response.StatusSuccess, resp.Status)
	assert.True(t, strings.HasPrefix(resp.AudioURL, "/tmp/tts_"))

	data, err := os.ReadFile(filepath.Join(env.tempDir, filepath.Base(resp.AudioURL)))
	require.NoError(t, err)
	assert.True(t, audio.IsWAV(data))
}

func TestTTSSynthesizeInvalidVoice(t *testing.T) {
	env := newTestEnv(t, "", "")

	body, _ := sonic.Marshal(gin.H{"text": "你好", "voice": "不存在的音色"})
	req := httptest.NewRequest(http.MethodPost, "/stream/v1/tts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ttsResult
	decodeJSON(t, rec, &resp)
	assert.Equal(t, response.StatusInvalidParameter, resp.Status)
	assert.Contains(t, resp.Message, "不支持的音色")
}

func TestTTSSynthesizeSpeechRateOutOfRange(t *testing.T) {
	env := newTestEnv(t, "", "")

	body, _ := sonic.Marshal(gin.H{"text": "你好", "speech_rate": 600})
	req := httptest.NewRequest(http.MethodPost, "/stream/v1/tts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ttsResult
	decodeJSON(t, rec, &resp)
	assert.Contains(t, resp.Message, "speech_rate")
}

func TestVoiceEndpoints(t *testing.T) {
	env := newTestEnv(t, "", "")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/stream/v1/tts/voices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list map[string]any
	decodeJSON(t, rec, &list)
	assert.EqualValues(t, 7, list["total"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/stream/v1/tts/voices/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]any
	decodeJSON(t, rec, &info)
	assert.EqualValues(t, 7, info["preset_count"])
	assert.EqualValues(t, 0, info["clone_count"])

	rec = env.do(httptest.NewRequest(http.MethodPost, "/stream/v1/tts/voices/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var refresh map[string]any
	decodeJSON(t, rec, &refresh)
	assert.Equal(t, "音色配置已刷新", refresh["message"])
}

func TestOpenAISpeech(t *testing.T) {
	env := newTestEnv(t, "", "")

	body, _ := sonic.Marshal(gin.H{"model": "tts-1", "input": "你好世界", "voice": "中文女"})
	req := httptest.NewRequest(http.MethodPost, "/openai/v1/audio/speech", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("task_id"))
	assert.True(t, audio.IsWAV(rec.Body.Bytes()))
}

func TestOpenAISpeechBearerAuth(t *testing.T) {
	env := newTestEnv(t, "secret-token-1234", "")

	body, _ := sonic.Marshal(gin.H{"input": "你好"})
	req := httptest.NewRequest(http.MethodPost, "/openai/v1/audio/speech", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Contains(t, resp["detail"], "Authorization")
}

func asyncSubmitBody(t *testing.T, token, appkey, text, voice string, notify bool, notifyURL string) []byte {
	t.Helper()
	body, err := sonic.Marshal(gin.H{
		"header": gin.H{"token": token, "appkey": appkey},
		"payload": gin.H{
			"tts_request": gin.H{
				"text":  text,
				"voice": voice,
			},
			"enable_notify": notify,
			"notify_url":    notifyURL,
		},
	})
	require.NoError(t, err)
	return body
}

func TestAsyncTTSSubmitAndQuery(t *testing.T) {
	env := newTestEnv(t, "", "")

	req := httptest.NewRequest(http.MethodPost, "/rest/v1/tts/async",
		bytes.NewReader(asyncSubmitBody(t, "any-token-value", "appkey1", "你好世界", "中文女", false, "")))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.AsyncTTSResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "SUCCESS", resp.ErrorMessage)
	require.NotEmpty(t, resp.Data.TaskID)

	// 刚入库的任务处于RUNNING
	row, err := models.GetAsyncTTSTask(env.db, resp.Data.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRunning, row.Status)

	rec = env.do(httptest.NewRequest(http.MethodGet,
		"/rest/v1/tts/async?appkey=appkey1&token=any-token-value&task_id="+resp.Data.TaskID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var query models.AsyncTTSResponse
	decodeJSON(t, rec, &query)
	assert.Equal(t, resp.Data.TaskID, query.Data.TaskID)
}

func TestAsyncTTSSubmitValidation(t *testing.T) {
	env := newTestEnv(t, "", "")

	cases := []struct {
		name    string
		body    []byte
		status  int
		message string
	}{
		{"missing token", asyncSubmitBody(t, "", "appkey1", "你好", "中文女", false, ""),
			http.StatusBadRequest, "缺少访问令牌"},
		{"missing appkey", asyncSubmitBody(t, "tok-1234567890", "", "你好", "中文女", false, ""),
			http.StatusBadRequest, "缺少应用密钥"},
		{"text too long", asyncSubmitBody(t, "tok-1234567890", "appkey1", strings.Repeat("测", 5001), "中文女", false, ""),
			http.StatusBadRequest, "文本长度超过限制，最大支持5000个字符"},
		{"empty voice", asyncSubmitBody(t, "tok-1234567890", "appkey1", "你好", "  ", false, ""),
			http.StatusBadRequest, "音色参数不能为空"},
		{"notify without url", asyncSubmitBody(t, "tok-1234567890", "appkey1", "你好", "中文女", true, ""),
			http.StatusInternalServerError, "启用回调通知时必须设置notify_url"},
		{"bad notify url", asyncSubmitBody(t, "tok-1234567890", "appkey1", "你好", "中文女", true, "ftp://x"),
			http.StatusBadRequest, "notify_url必须是有效的HTTP/HTTPS URL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rest/v1/tts/async", bytes.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := env.do(req)
			require.Equal(t, tc.status, rec.Code)

			var resp models.AsyncTTSErrorResponse
			decodeJSON(t, rec, &resp)
			assert.Equal(t, tc.message, resp.ErrorMessage)
			assert.Equal(t, "/rest/v1/tts/async", resp.URL)
		})
	}
}

func TestAsyncTTSQueryUnknownTask(t *testing.T) {
	env := newTestEnv(t, "", "")
	rec := env.do(httptest.NewRequest(http.MethodGet,
		"/rest/v1/tts/async?appkey=a1&token=tok-1234567890&task_id=no-such-task", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.AsyncTTSErrorResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "任务不存在", resp.ErrorMessage)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	var body response.Envelope
	require.NoError(t, sonic.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, response.StatusTooManyRequests, body.Status)
}
