package models

import (
	"time"

	"gorm.io/gorm"
)

// 异步合成任务状态，终态不可回退
const (
	TaskStatusRunning = "RUNNING"
	TaskStatusSuccess = "SUCCESS"
	TaskStatusFailed  = "FAILED"
)

// 终态任务保留天数，过期由清理任务删除
const TaskRetentionDays = 7

// AsyncTTSTask 异步长文本合成任务
type AsyncTTSTask struct {
	TaskID    string `json:"task_id" gorm:"primaryKey;size:64"`
	RequestID string `json:"request_id" gorm:"size:64;not null"`
	Status    string `json:"status" gorm:"size:16;default:RUNNING;index:idx_task_status"`

	Text           string `json:"text"`
	Voice          string `json:"voice" gorm:"size:128"`
	SampleRate     int    `json:"sample_rate" gorm:"default:16000"`
	Format         string `json:"format" gorm:"size:16;default:wav"`
	EnableSubtitle bool   `json:"enable_subtitle"`
	EnableNotify   bool   `json:"enable_notify"`
	NotifyURL      string `json:"notify_url" gorm:"size:512"`

	AudioAddress string `json:"audio_address" gorm:"size:512"`
	// 字幕JSON，enable_subtitle开启时由工作协程回填
	Sentences    string `json:"sentences"`
	ErrorCode    int    `json:"error_code" gorm:"default:20000000"`
	ErrorMessage string `json:"error_message" gorm:"size:1024;default:RUNNING"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime;index:idx_created_at"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt *time.Time `json:"completed_at"`
}

// IsTerminal 是否处于终态
func (t *AsyncTTSTask) IsTerminal() bool {
	return t.Status == TaskStatusSuccess || t.Status == TaskStatusFailed
}

// CreateAsyncTTSTask 落库新任务
func CreateAsyncTTSTask(db *gorm.DB, task *AsyncTTSTask) error {
	if task.Status == "" {
		task.Status = TaskStatusRunning
	}
	if task.ErrorCode == 0 {
		task.ErrorCode = 20000000
	}
	if task.ErrorMessage == "" {
		task.ErrorMessage = TaskStatusRunning
	}
	return db.Create(task).Error
}

// GetAsyncTTSTask 按任务ID查询
func GetAsyncTTSTask(db *gorm.DB, taskID string) (*AsyncTTSTask, error) {
	var task AsyncTTSTask
	if err := db.Where("task_id = ?", taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// AsyncTTSTaskUpdate 状态流转携带的结果字段
type AsyncTTSTaskUpdate struct {
	AudioAddress string
	Sentences    string
	ErrorCode    int
	ErrorMessage string
}

// UpdateAsyncTTSTaskStatus 更新任务状态。
// 终态只写一次：已处于SUCCESS/FAILED的行不会被再次更新。
func UpdateAsyncTTSTaskStatus(db *gorm.DB, taskID, status string, update *AsyncTTSTaskUpdate) error {
	values := map[string]any{
		"status": status,
	}
	if update != nil {
		if update.AudioAddress != "" {
			values["audio_address"] = update.AudioAddress
		}
		if update.Sentences != "" {
			values["sentences"] = update.Sentences
		}
		if update.ErrorCode != 0 {
			values["error_code"] = update.ErrorCode
		}
		if update.ErrorMessage != "" {
			values["error_message"] = update.ErrorMessage
		}
	}
	if status == TaskStatusSuccess || status == TaskStatusFailed {
		now := time.Now()
		values["completed_at"] = &now
	}
	return db.Model(&AsyncTTSTask{}).
		Where("task_id = ? AND status NOT IN ?", taskID,
			[]string{TaskStatusSuccess, TaskStatusFailed}).
		Updates(values).Error
}

// GetPendingAsyncTTSTasks 取待处理任务，按提交先后排序
func GetPendingAsyncTTSTasks(db *gorm.DB, limit int) ([]AsyncTTSTask, error) {
	var tasks []AsyncTTSTask
	err := db.Where("status = ?", TaskStatusRunning).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// CleanupOldAsyncTTSTasks 删除超过保留期的终态任务，返回删除行数
func CleanupOldAsyncTTSTasks(db *gorm.DB) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -TaskRetentionDays)
	result := db.Where("status IN ? AND created_at < ?",
		[]string{TaskStatusSuccess, TaskStatusFailed}, cutoff).
		Delete(&AsyncTTSTask{})
	return result.RowsAffected, result.Error
}

// CountAsyncTTSTasksByStatus 各状态任务数统计
func CountAsyncTTSTasksByStatus(db *gorm.DB) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := db.Model(&AsyncTTSTask{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
