package bus

import (
	"github.com/sat8bit/kizuna/message"
)

// Bus はターンの結果や警告を購読者に配送します。
type Bus interface {
	Broadcast(m *message.Message) error
	Subscribe() <-chan *message.Message
	Close()
}
