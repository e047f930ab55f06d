// Package bench 压测工具：并发驱动WebSocket识别/合成会话，
// 统计会话时延与失败数
package bench

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid"

	"github.com/code-100-precent/SpeechGate/pkg/protocol"
)

// Options 压测参数
type Options struct {
	ServerURL  string // 如 ws://127.0.0.1:8000
	Token      string
	Mode       string // asr 或 tts
	Sessions   int
	Text       string // tts使用的合成文本
	AudioMs    int    // asr每会话发送的静音音频时长
	SampleRate int
	Timeout    time.Duration
}

func (o *Options) withDefaults() {
	if o.Sessions <= 0 {
		o.Sessions = 1
	}
	if o.Text == "" {
		o.Text = "今天天气不错，适合出门散步。"
	}
	if o.AudioMs <= 0 {
		o.AudioMs = 2000
	}
	if o.SampleRate == 0 {
		o.SampleRate = 16000
	}
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
}

// SessionResult 单会话结果
type SessionResult struct {
	ID           string
	Err          error
	StartLatency time.Duration // 收到Started事件的时延
	Total        time.Duration
}

// Result 一次压测的汇总
type Result struct {
	RunID     string
	Mode      string
	Sessions  []SessionResult
	Failures  int
	Elapsed   time.Duration
	MinTotal  time.Duration
	AvgTotal  time.Duration
	MaxTotal  time.Duration
	P95Total  time.Duration
	AvgStart  time.Duration
}

// Run 并发执行全部会话并汇总
func Run(opts Options) *Result {
	opts.withDefaults()
	runID, _ := gonanoid.Nanoid()

	results := make([]SessionResult, opts.Sessions)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < opts.Sessions; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			id, _ := gonanoid.Nanoid()
			results[idx] = runSession(&opts, id)
		}(i)
	}
	wg.Wait()

	r := &Result{
		RunID:    runID,
		Mode:     opts.Mode,
		Sessions: results,
		Elapsed:  time.Since(start),
	}
	summarize(r)
	return r
}

func summarize(r *Result) {
	var ok []time.Duration
	var startSum time.Duration
	for _, s := range r.Sessions {
		if s.Err != nil {
			r.Failures++
			continue
		}
		ok = append(ok, s.Total)
		startSum += s.StartLatency
	}
	if len(ok) == 0 {
		return
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i] < ok[j] })
	r.MinTotal = ok[0]
	r.MaxTotal = ok[len(ok)-1]
	var sum time.Duration
	for _, d := range ok {
		sum += d
	}
	r.AvgTotal = sum / time.Duration(len(ok))
	r.AvgStart = startSum / time.Duration(len(ok))
	p95 := len(ok) * 95 / 100
	if p95 >= len(ok) {
		p95 = len(ok) - 1
	}
	r.P95Total = ok[p95]
}

// Report 人类可读的结果报告
func (r *Result) Report() string {
	return fmt.Sprintf(
		"run=%s mode=%s sessions=%d failures=%d elapsed=%v\n"+
			"total: min=%v avg=%v p95=%v max=%v\n"+
			"start latency: avg=%v\n",
		r.RunID, r.Mode, len(r.Sessions), r.Failures, r.Elapsed.Round(time.Millisecond),
		r.MinTotal.Round(time.Millisecond), r.AvgTotal.Round(time.Millisecond),
		r.P95Total.Round(time.Millisecond), r.MaxTotal.Round(time.Millisecond),
		r.AvgStart.Round(time.Millisecond))
}

func runSession(opts *Options, id string) SessionResult {
	res := SessionResult{ID: id}
	start := time.Now()
	defer func() { res.Total = time.Since(start) }()

	path := "/ws/v1/asr"
	if opts.Mode == "tts" {
		path = "/ws/v1/tts"
	}
	header := http.Header{}
	if opts.Token != "" {
		header.Set("X-NLS-Token", opts.Token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(opts.ServerURL+path, header)
	if err != nil {
		res.Err = fmt.Errorf("dial: %w", err)
		return res
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(opts.Timeout))

	if opts.Mode == "tts" {
		res.Err = runTTSSession(conn, opts, &res, start)
	} else {
		res.Err = runASRSession(conn, opts, &res, start)
	}
	return res
}

func runASRSession(conn *websocket.Conn, opts *Options, res *SessionResult, start time.Time) error {
	if err := sendEvent(conn, protocol.NamespaceSpeechTranscriber, protocol.NameStartTranscription, "",
		map[string]any{"format": "pcm", "sample_rate": opts.SampleRate}); err != nil {
		return err
	}
	started, err := waitFor(conn, protocol.NameTranscriptionStarted)
	if err != nil {
		return err
	}
	res.StartLatency = time.Since(start)
	taskID := started.Header.TaskID

	// 每帧100ms静音
	frame := make([]byte, opts.SampleRate/10*2)
	for sent := 0; sent < opts.AudioMs; sent += 100 {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return err
		}
	}

	if err := sendEvent(conn, protocol.NamespaceSpeechTranscriber, protocol.NameStopTranscription, taskID, nil); err != nil {
		return err
	}
	_, err = waitFor(conn, protocol.NameTranscriptionCompleted)
	return err
}

func runTTSSession(conn *websocket.Conn, opts *Options, res *SessionResult, start time.Time) error {
	if err := sendEvent(conn, protocol.NamespaceFlowingSpeech, protocol.NameStartSynthesis, "",
		map[string]any{"voice": "中文女", "format": "pcm", "sample_rate": opts.SampleRate}); err != nil {
		return err
	}
	started, err := waitFor(conn, protocol.NameSynthesisStarted)
	if err != nil {
		return err
	}
	res.StartLatency = time.Since(start)
	taskID := started.Header.TaskID

	if err := sendEvent(conn, protocol.NamespaceFlowingSpeech, protocol.NameRunSynthesis, taskID,
		map[string]any{"text": opts.Text}); err != nil {
		return err
	}
	if _, err := waitFor(conn, protocol.NameSentenceEnd); err != nil {
		return err
	}

	if err := sendEvent(conn, protocol.NamespaceFlowingSpeech, protocol.NameStopSynthesis, taskID, nil); err != nil {
		return err
	}
	_, err = waitFor(conn, protocol.NameSynthesisCompleted)
	return err
}

func sendEvent(conn *websocket.Conn, namespace, name, taskID string, payload map[string]any) error {
	msg := &protocol.Message{
		Header: protocol.Header{
			MessageID: protocol.NewMessageID(),
			TaskID:    taskID,
			Namespace: namespace,
			Name:      name,
		},
		Payload: payload,
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// waitFor 忽略二进制帧，读到目标事件或TaskFailed为止
func waitFor(conn *websocket.Conn, name string) (*protocol.Message, error) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			return nil, err
		}
		if msg.Header.Name == protocol.NameTaskFailed {
			return nil, fmt.Errorf("task failed: %s", msg.Header.StatusText)
		}
		if msg.Header.Name == name {
			return msg, nil
		}
	}
}
