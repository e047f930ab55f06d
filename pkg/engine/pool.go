package engine

import "sync"

// Pool 引擎实例池，多卡部署时按活跃会话数做最少连接调度
type Pool[T any] struct {
	mu      sync.Mutex
	engines []T
	active  []int
}

// NewPool 创建引擎池
func NewPool[T any](engines []T) *Pool[T] {
	return &Pool[T]{
		engines: engines,
		active:  make([]int, len(engines)),
	}
}

// Select 选取活跃数最少的实例并加一，相同取下标最小者。
// 空池返回零值和-1。
func (p *Pool[T]) Select() (T, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.engines) == 0 {
		var zero T
		return zero, -1
	}

	best := 0
	for i := 1; i < len(p.active); i++ {
		if p.active[i] < p.active[best] {
			best = i
		}
	}
	p.active[best]++
	return p.engines[best], best
}

// Release 归还实例，计数减一，不会降到负数
func (p *Pool[T]) Release(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.active) {
		return
	}
	if p.active[index] > 0 {
		p.active[index]--
	}
}

// Size 池内实例数
func (p *Pool[T]) Size() int {
	return len(p.engines)
}

// ActiveCounts 各实例当前活跃数快照
func (p *Pool[T]) ActiveCounts() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make([]int, len(p.active))
	copy(counts, p.active)
	return counts
}
