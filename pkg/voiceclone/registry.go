// Package voiceclone 管理音色目录：内置预置音色元数据，
// 从音色目录加载零样本克隆音色，支持运行中刷新。
package voiceclone

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/pkg/logger"
)

// Voice 音色条目
type Voice struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // preset或clone
	Language    string `json:"language"`
	Gender      string `json:"gender"`
	Description string `json:"description"`
}

// 预置音色固定随SFT模型发布
var presetVoices = []Voice{
	{Name: "中文女", Type: "preset", Language: "zh", Gender: "female", Description: "标准普通话女声"},
	{Name: "中文男", Type: "preset", Language: "zh", Gender: "male", Description: "标准普通话男声"},
	{Name: "日语男", Type: "preset", Language: "ja", Gender: "male", Description: "日语男声"},
	{Name: "粤语女", Type: "preset", Language: "yue", Gender: "female", Description: "粤语女声"},
	{Name: "英文女", Type: "preset", Language: "en", Gender: "female", Description: "英语女声"},
	{Name: "英文男", Type: "preset", Language: "en", Gender: "male", Description: "英语男声"},
	{Name: "韩语女", Type: "preset", Language: "ko", Gender: "female", Description: "韩语女声"},
}

// 克隆音色文件的扩展名
var cloneVoiceExts = map[string]bool{".pt": true, ".bin": true, ".npy": true}

const cloneCacheKey = "clone_voices"

// Registry 音色注册表
type Registry struct {
	voiceDir string
	cache    *gocache.Cache
	mu       sync.Mutex
}

// NewRegistry 创建注册表并做首次加载
func NewRegistry(voiceDir string) *Registry {
	r := &Registry{
		voiceDir: voiceDir,
		cache:    gocache.New(gocache.NoExpiration, 0),
	}
	r.Refresh()
	return r
}

// Refresh 重新扫描音色目录，返回当前克隆音色数
func (r *Registry) Refresh() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := scanCloneVoices(r.voiceDir)
	r.cache.Set(cloneCacheKey, names, gocache.NoExpiration)
	logger.Info("音色目录已刷新",
		zap.String("dir", r.voiceDir), zap.Int("clone_count", len(names)))
	return len(names)
}

func scanCloneVoices(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("读取音色目录失败", zap.String("dir", dir), zap.Error(err))
		}
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !cloneVoiceExts[ext] {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

func (r *Registry) cloneVoices() []string {
	if v, ok := r.cache.Get(cloneCacheKey); ok {
		if names, ok := v.([]string); ok {
			return names
		}
	}
	return nil
}

// IsClone 判断音色是否为克隆音色，决定合成走哪条链路
func (r *Registry) IsClone(name string) bool {
	for _, v := range r.cloneVoices() {
		if v == name {
			return true
		}
	}
	return false
}

// Exists 音色是否存在（预置或克隆）
func (r *Registry) Exists(name string) bool {
	for _, v := range presetVoices {
		if v.Name == name {
			return true
		}
	}
	return r.IsClone(name)
}

// List 列出全部音色，预置在前
func (r *Registry) List() []Voice {
	voices := make([]Voice, 0, len(presetVoices))
	voices = append(voices, presetVoices...)
	for _, name := range r.cloneVoices() {
		voices = append(voices, Voice{
			Name:        name,
			Type:        "clone",
			Language:    "zh",
			Gender:      "unknown",
			Description: "零样本克隆音色",
		})
	}
	return voices
}

// Names 全部音色名
func (r *Registry) Names() []string {
	voices := r.List()
	names := make([]string, len(voices))
	for i, v := range voices {
		names[i] = v.Name
	}
	return names
}

// Counts 返回预置和克隆音色数量
func (r *Registry) Counts() (preset, clone int) {
	return len(presetVoices), len(r.cloneVoices())
}
