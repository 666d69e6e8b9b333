package turn

import (
	"context"
)

// Manager は、1キャラクターの状態に対する書き込み権（ターン）を管理します。
// ターンを保持している間だけ、そのキャラクターの状態を更新できます。
type Manager interface {
	Acquire(ctx context.Context) error
	Release()
}

// AcquireAll は、与えられた順番ですべてのターンを取得します。
// 途中で失敗した場合は、取得済みのターンを解放してからエラーを返します。
// 呼び出し側は、デッドロックを避けるため常に同じ順番で渡す必要があります。
func AcquireAll(ctx context.Context, managers ...Manager) (release func(), err error) {
	held := make([]Manager, 0, len(managers))
	release = func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release()
		}
	}
	for _, m := range managers {
		if err := m.Acquire(ctx); err != nil {
			release()
			return func() {}, err
		}
		held = append(held, m)
	}
	return release, nil
}
