package turn

// TurnProvider は、完了したターン数を提供します。
// 具体的な実装（Supervisor）を知らなくても、進行状況にアクセスできます。
type TurnProvider interface {
	GetCurrentTurn() int
}
