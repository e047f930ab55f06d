package executor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/code-100-precent/SpeechGate/pkg/logger"
)

// ErrShutdown 执行器已关闭后提交任务返回的错误
var ErrShutdown = errors.New("executor: already shut down")

// Executor 有界推理执行器，控制并发推理数量避免GPU过载
type Executor struct {
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	shutdown bool
}

var (
	globalExecutor *Executor
	executorOnce   sync.Once
)

// GetGlobal 获取全局执行器实例
func GetGlobal(capacity int) *Executor {
	executorOnce.Do(func() {
		globalExecutor = New(capacity)
	})
	return globalExecutor
}

// New 创建指定并发容量的执行器
func New(capacity int) *Executor {
	if capacity < 1 {
		capacity = 1
	}
	return &Executor{
		sem: make(chan struct{}, capacity),
	}
}

// RunSync 在执行器内同步执行fn，并发超限时阻塞等待空位
func (e *Executor) RunSync(ctx context.Context, fn func() error) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()
	return fn()
}

// StreamItem 流式任务产出项，音频块与错误二选一
type StreamItem struct {
	Data []byte
	Err  error
}

// RunStream 在执行器内运行流式任务，返回有界结果通道。
// 生产者通过emit产出数据块，emit在消费者取消后返回false，
// 生产者应在下一次产出时退出。通道在生产者结束后关闭。
func (e *Executor) RunStream(ctx context.Context, fn func(emit func([]byte) bool) error) <-chan StreamItem {
	out := make(chan StreamItem, 8)
	if err := e.acquire(ctx); err != nil {
		out <- StreamItem{Err: err}
		close(out)
		return out
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release()
		defer close(out)

		emit := func(data []byte) bool {
			select {
			case out <- StreamItem{Data: data}:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if err := fn(emit); err != nil {
			select {
			case out <- StreamItem{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

// Shutdown 停止接收新任务，wait为true时等待在途任务完成
func (e *Executor) Shutdown(wait bool) {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return
	}
	e.shutdown = true
	e.mu.Unlock()

	if wait {
		e.wg.Wait()
	}
	logger.Info("推理执行器已关闭", zap.Bool("wait", wait))
}

func (e *Executor) acquire(ctx context.Context) error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return ErrShutdown
	}
	e.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) release() {
	<-e.sem
}
