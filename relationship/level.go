package relationship

// Level は、スコアの大まかな段階です。
type Level string

const (
	LevelStranger     Level = "stranger"
	LevelAcquaintance Level = "acquaintance"
	LevelFriend       Level = "friend"
	LevelCloseFriend  Level = "close_friend"
	LevelBestFriend   Level = "best_friend"
)

// LevelOf は、スコアの段階を返します。
func LevelOf(s Score) Level {
	switch {
	case s >= 81:
		return LevelBestFriend
	case s >= 61:
		return LevelCloseFriend
	case s >= 41:
		return LevelFriend
	case s >= 21:
		return LevelAcquaintance
	default:
		return LevelStranger
	}
}

// Mood は、関係の雰囲気を表す短い説明と絵文字です。
func (l Level) Mood() (emoji, text string) {
	switch l {
	case LevelBestFriend:
		return "💚", "Very close and comfortable"
	case LevelCloseFriend:
		return "💙", "Close and trusting"
	case LevelFriend:
		return "💛", "Friendly but casual"
	case LevelAcquaintance:
		return "🧡", "Acquaintances, somewhat distant"
	default:
		return "💔", "Relationship is strained"
	}
}
