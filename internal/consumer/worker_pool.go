package consumer

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"wisefido-anxiety/internal/models"

	"go.uber.org/zap"
)

// ErrPoolStopped worker pool 已停止
var ErrPoolStopped = errors.New("worker pool stopped")

// HandleFunc 单条读数处理函数
type HandleFunc func(ctx context.Context, r models.Reading)

// WorkerPool 按 device_id 分片的 worker pool
// 同一设备的读数总是进入同一个 worker，保证单写者、按到达顺序处理；不同设备并行
type WorkerPool struct {
	shards  []chan models.Reading
	handle  HandleFunc
	logger  *zap.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool 创建 worker pool
func NewWorkerPool(workers, queueSize int, handle HandleFunc, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &WorkerPool{
		shards: make([]chan models.Reading, workers),
		handle: handle,
		logger: logger,
	}
	for i := range p.shards {
		p.shards[i] = make(chan models.Reading, queueSize)
	}
	return p
}

// Start 启动 worker
func (p *WorkerPool) Start(ctx context.Context) {
	for i, ch := range p.shards {
		p.wg.Add(1)
		go p.run(ctx, i, ch)
	}
	p.logger.Info("Worker pool started", zap.Int("workers", len(p.shards)))
}

func (p *WorkerPool) run(ctx context.Context, id int, ch <-chan models.Reading) {
	defer p.wg.Done()
	for r := range ch {
		p.handle(ctx, r)
	}
	p.logger.Debug("Worker stopped", zap.Int("worker_id", id))
}

// Submit 投递读数，队列满时阻塞直到 ctx 结束
func (p *WorkerPool) Submit(ctx context.Context, r models.Reading) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.shards[p.shardFor(r.DeviceID)] <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止接收并等待队列中的读数处理完
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) shardFor(deviceID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return int(h.Sum32() % uint32(len(p.shards)))
}
