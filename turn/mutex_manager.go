package turn

import (
	"context"
	"fmt"
)

// MutexManager は turn.Manager の実装です。
// バッファサイズ1のチャネルをセマフォとして使い、同時に1つのゴルーチンだけがターンを保持できます。
// sync.Mutex と違い、待機中に context でキャンセルできます。
type MutexManager struct {
	turnCh chan struct{}
}

// NewMutexManager は新しい MutexManager を生成します。
func NewMutexManager() *MutexManager {
	return &MutexManager{turnCh: make(chan struct{}, 1)}
}

// Acquire はターンを取得します。
// 他の誰かがターンを保持している場合、解放されるかコンテキストが終了するまでブロックします。
func (m *MutexManager) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to acquire turn: %w", ctx.Err())
	case m.turnCh <- struct{}{}:
		return nil
	}
}

// Release は保持しているターンを解放します。保持していない場合は何もしません。
func (m *MutexManager) Release() {
	select {
	case <-m.turnCh:
	default:
	}
}

// Busy は、現在ターンが保持されているかどうかを返します。
func (m *MutexManager) Busy() bool {
	return len(m.turnCh) == 1
}

var _ Manager = (*MutexManager)(nil)
