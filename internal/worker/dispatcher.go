package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/pkg/logger"
)

// Job 一次不关心结果的写操作（如浏览计数、删除同步）
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type queued struct {
	job   Job
	enqAt time.Time
}

// Dispatcher 本地异步执行器：有界队列，满了直接丢弃并记日志，不重试
type Dispatcher struct {
	ch        chan queued
	timeout   time.Duration
	metricsCh chan time.Duration

	mu   sync.Mutex
	stop func(context.Context) error
	wg   sync.WaitGroup
}

func NewDispatcher(queueSize int, timeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{ch: make(chan queued, queueSize), timeout: timeout, metricsCh: make(chan time.Duration, 4096)}
}

// Start launches workers and returns the stop func. Stop waits a short
// while for the queue to drain. Calling Start again before stop returns the
// same stop func without launching more workers.
func (d *Dispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 2
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return d.stop
	}

	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case q := <-d.ch:
					d.run(q)
				case <-stopCh:
					return
				}
			}
		}()
	}
	var once sync.Once
	d.stop = func(ctx context.Context) error {
		once.Do(func() {
			// 等待队列自然排空一小段时间
			timeout := time.After(2 * time.Second)
		drain:
			for len(d.ch) > 0 {
				select {
				case <-ctx.Done():
					break drain
				case <-timeout:
					break drain
				case <-time.After(10 * time.Millisecond):
				}
			}
			close(stopCh)
			d.wg.Wait()
			d.mu.Lock()
			d.stop = nil
			d.mu.Unlock()
		})
		return nil
	}
	return d.stop
}

func (d *Dispatcher) run(q queued) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := q.job.Run(ctx); err != nil {
		logger.Warn("dispatch job failed", zap.String("job", q.job.Name), zap.Error(err))
	}
	select {
	case d.metricsCh <- time.Since(q.enqAt):
	default:
	}
}

// Enqueue never blocks. It reports false when the job was dropped.
func (d *Dispatcher) Enqueue(job Job) bool {
	select {
	case d.ch <- queued{job: job, enqAt: time.Now()}:
		return true
	default:
		logger.Warn("dispatch queue full, drop", zap.String("job", job.Name))
		return false
	}
}

// Metrics 返回任务入队到执行完成耗时的只读通道
func (d *Dispatcher) Metrics() <-chan time.Duration { return d.metricsCh }

// QueueLen 当前队列长度（采样值）
func (d *Dispatcher) QueueLen() int { return len(d.ch) }
