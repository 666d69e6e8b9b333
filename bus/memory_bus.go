package bus

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/sat8bit/kizuna/message"
)

// ErrClosed は、閉じたバスに配送しようとしたときに返されます。
var ErrClosed = errors.New("bus is closed")

// DefaultBuffer は、購読者ごとのチャネルバッファの大きさです。
const DefaultBuffer = 64

// MemoryBus は Bus のインメモリ実装です。
// 購読者のチャネルバッファが一杯のとき、その購読者へのメッセージはドロップされます。
type MemoryBus struct {
	subscribers []chan *message.Message
	buffer      int
	dropped     int

	mu       sync.RWMutex
	dropMu   sync.Mutex
	isClosed bool
}

// NewMemoryBus は新しい MemoryBus を生成します。
func NewMemoryBus() *MemoryBus {
	return NewMemoryBusWithBuffer(DefaultBuffer)
}

// NewMemoryBusWithBuffer は、購読者ごとのバッファ長を指定して MemoryBus を生成します。
func NewMemoryBusWithBuffer(buffer int) *MemoryBus {
	if buffer < 1 {
		buffer = 1
	}
	return &MemoryBus{
		subscribers: make([]chan *message.Message, 0),
		buffer:      buffer,
	}
}

// Broadcast はメッセージをすべての購読者に送ります。ブロックしません。
func (b *MemoryBus) Broadcast(m *message.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.isClosed {
		return ErrClosed
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- m:
		default:
			b.dropMu.Lock()
			b.dropped++
			b.dropMu.Unlock()
			// ここで Warn 以上を出すと buslog 経由で自分に戻ってくる。
			slog.Debug("bus subscriber is full, message dropped", "kind", m.Kind, "cha", m.ChaId)
		}
	}

	return nil
}

// Subscribe は新しい購読者を追加します。閉じたバスからは閉じたチャネルが返ります。
func (b *MemoryBus) Subscribe() <-chan *message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *message.Message, b.buffer)
	if b.isClosed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Dropped は、これまでにドロップしたメッセージの数です。
func (b *MemoryBus) Dropped() int {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	return b.dropped
}

// Close はバスを閉じ、すべての購読者チャネルを閉じます。2回目以降は何もしません。
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed {
		return
	}
	b.isClosed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}

var _ Bus = (*MemoryBus)(nil)
