package models

// 异步合成REST接口与回调通知的响应结构

// SubtitleSentence 单句字幕时间戳，单位毫秒
type SubtitleSentence struct {
	Text      string `json:"text"`
	BeginTime int    `json:"begin_time"`
	EndTime   int    `json:"end_time"`
}

// AsyncTTSTaskData 任务数据块
type AsyncTTSTaskData struct {
	TaskID       string `json:"task_id"`
	AudioAddress string `json:"audio_address"`
	NotifyCustom string `json:"notify_custom"`
	Sentences    any    `json:"sentences"`
}

// AsyncTTSResponse 提交、查询与成功回调共用的响应体
type AsyncTTSResponse struct {
	Status       int              `json:"status"`
	ErrorCode    int              `json:"error_code"`
	ErrorMessage string           `json:"error_message"`
	RequestID    string           `json:"request_id"`
	Data         AsyncTTSTaskData `json:"data"`
}

// AsyncTTSErrorResponse 错误响应与失败回调
type AsyncTTSErrorResponse struct {
	ErrorMessage string `json:"error_message"`
	ErrorCode    int    `json:"error_code"`
	RequestID    string `json:"request_id"`
	URL          string `json:"url"`
	Status       int    `json:"status"`
}
