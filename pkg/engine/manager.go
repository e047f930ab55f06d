package engine

import "sync"

// Manager 持有ASR和TTS引擎池，按设备数各建一个实例
type Manager struct {
	asrPool *Pool[ASREngine]
	ttsPool *Pool[TTSEngine]
}

var (
	globalManager *Manager
	managerMu     sync.RWMutex
)

// NewManager 创建引擎管理器
func NewManager(asrEngines []ASREngine, ttsEngines []TTSEngine) *Manager {
	return &Manager{
		asrPool: NewPool(asrEngines),
		ttsPool: NewPool(ttsEngines),
	}
}

// SetGlobal 设置全局管理器，启动时调用一次
func SetGlobal(m *Manager) {
	managerMu.Lock()
	defer managerMu.Unlock()
	globalManager = m
}

// GetGlobal 获取全局管理器
func GetGlobal() *Manager {
	managerMu.RLock()
	defer managerMu.RUnlock()
	return globalManager
}

// SelectASR 取一个ASR引擎，用完调用ReleaseASR归还
func (m *Manager) SelectASR() (ASREngine, int) {
	return m.asrPool.Select()
}

func (m *Manager) ReleaseASR(index int) {
	m.asrPool.Release(index)
}

// SelectTTS 取一个TTS引擎，用完调用ReleaseTTS归还
func (m *Manager) SelectTTS() (TTSEngine, int) {
	return m.ttsPool.Select()
}

func (m *Manager) ReleaseTTS(index int) {
	m.ttsPool.Release(index)
}

// ASRCount ASR引擎实例数
func (m *Manager) ASRCount() int {
	return m.asrPool.Size()
}

// TTSCount TTS引擎实例数
func (m *Manager) TTSCount() int {
	return m.ttsPool.Size()
}

// ASRActive 各ASR实例活跃会话数
func (m *Manager) ASRActive() []int {
	return m.asrPool.ActiveCounts()
}

// TTSActive 各TTS实例活跃会话数
func (m *Manager) TTSActive() []int {
	return m.ttsPool.ActiveCounts()
}
