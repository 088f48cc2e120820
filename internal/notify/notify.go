// Package notify fans a "state changed" signal out to read-model consumers.
package notify

import "sync"

// Broadcaster 合并通知：消费者只知道"有变化"，随后自行读取最新快照
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func New() *Broadcaster {
	return &Broadcaster{subs: make(map[chan struct{}]struct{})}
}

// Watch returns a channel that receives at least one value after each
// change, and a cancel func. Bursts collapse into one pending signal.
func (b *Broadcaster) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
}

func (b *Broadcaster) Notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
