package renderer

import (
	"sync"

	"github.com/sat8bit/kizuna/bus"
	"github.com/sat8bit/kizuna/cha"
)

// Renderer は、バスに流れる会話の結果を表示・記録するコンポーネントです。
type Renderer interface {
	// Render は、バスを購読して表示を始めます。バスが閉じると wg が完了します。
	Render(bus bus.Bus, wg *sync.WaitGroup) error

	// Finalize は、会話がすべて終わった後に、キャラクターの最終的な状態をまとめます。
	Finalize(chars []*cha.Cha) error
}
