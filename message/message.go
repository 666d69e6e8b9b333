package message

import (
	"time"

	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/relationship"
	"github.com/sat8bit/kizuna/sentiment"
)

type Kind string

const (
	KindSystem    Kind = "system"
	KindPlayer    Kind = "player"
	KindCha       Kind = "cha"
	KindTurn      Kind = "turn"
	KindEvolution Kind = "evolution"
	KindWarning   Kind = "warning"
	KindLog       Kind = "log"
	KindEnd       Kind = "end"
)

// TurnMeta は、1ターンで関係がどう動いたかを表します。
type TurnMeta struct {
	Delta     int
	Score     relationship.Score
	Level     relationship.Level
	Sentiment sentiment.Result
	Category  sentiment.Category
	Feedback  string
	Arc       evolution.Arc
}

type Message struct {
	ChaId string
	From  string
	Text  string
	At    time.Time
	Kind  Kind

	// Turn は KindTurn のときだけ設定されます。
	Turn *TurnMeta
	// Event は KindEvolution のときだけ設定されます。
	Event *evolution.Event
}
