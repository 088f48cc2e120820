package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/livesync/internal/repository"
	"github.com/d60-Lab/livesync/pkg/logger"
)

// Deliverer pushes one event to a room and reports how many connections got it.
type Deliverer interface {
	Deliver(room, event string, data json.RawMessage) int
}

// FanoutWorker 从 outbox 按 Seq 顺序拉取事件并推送到 websocket 房间。
// 单 worker，保证同一房间内的事件按写入顺序到达。
type FanoutWorker struct {
	outbox       repository.OutboxRepository
	hub          Deliverer
	batchSize    int
	pollInterval time.Duration
	metricsCh    chan time.Duration // outbox->delivered latency
	log          *zap.Logger
}

func NewFanoutWorker(db *gorm.DB, hub Deliverer, batchSize int, pollInterval time.Duration) *FanoutWorker {
	if batchSize <= 0 {
		batchSize = 128
	}
	if pollInterval <= 0 {
		pollInterval = 20 * time.Millisecond
	}
	return &FanoutWorker{
		outbox:       repository.NewOutboxRepository(db),
		hub:          hub,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		metricsCh:    make(chan time.Duration, 65536),
		log:          logger.Named("fanout"),
	}
}

func (w *FanoutWorker) Metrics() <-chan time.Duration { return w.metricsCh }

// Start 启动轮询；返回停止函数
func (w *FanoutWorker) Start() func(context.Context) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	var once sync.Once
	go func() {
		defer close(done)
		w.loop(stop)
	}()
	return func(ctx context.Context) error {
		once.Do(func() { close(stop) })
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *FanoutWorker) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(context.Background()); err != nil {
				w.log.Warn("fanout", zap.Error(err))
			}
		}
	}
}

// ProcessOnce delivers one batch of pending events and returns how many
// outbox rows it handled.
func (w *FanoutWorker) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := w.outbox.Pending(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for _, ob := range batch {
		n := w.hub.Deliver(ob.Room, ob.Event, json.RawMessage(ob.Payload))
		if err := w.outbox.MarkDone(ctx, ob.Seq, int64(n)); err != nil {
			return 0, err
		}
		if !ob.CreatedAt.IsZero() {
			select {
			case w.metricsCh <- time.Since(ob.CreatedAt):
			default:
			}
		}
	}
	return len(batch), nil
}
