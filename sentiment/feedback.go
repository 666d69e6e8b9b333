package sentiment

import "strings"

// Category は、Compound を5段階に分類したものです。
type Category string

const (
	CategoryVeryPositive Category = "very_positive"
	CategoryPositive     Category = "positive"
	CategoryNeutral      Category = "neutral"
	CategoryNegative     Category = "negative"
	CategoryVeryNegative Category = "very_negative"
)

// neutralBand 以下の |compound| は中立とみなします。
const neutralBand = 0.05

// Categorize は、Compound の分類と、人間向けの短い説明を返します。
func Categorize(compound float64) (Category, string) {
	switch {
	case compound >= 0.8:
		return CategoryVeryPositive, "extremely warm and loving"
	case compound >= 0.5:
		return CategoryVeryPositive, "very positive and supportive"
	case compound >= 0.3:
		return CategoryPositive, "genuinely friendly and caring"
	case compound > neutralBand:
		return CategoryPositive, "friendly and positive"
	case compound <= -0.8:
		return CategoryVeryNegative, "deeply hurtful and hostile"
	case compound <= -0.5:
		return CategoryVeryNegative, "hostile or very negative"
	case compound <= -0.3:
		return CategoryNegative, "quite negative and dismissive"
	case compound < -neutralBand:
		return CategoryNegative, "slightly negative or dismissive"
	default:
		return CategoryNeutral, "neutral and conversational"
	}
}

// Emoji は、Compound を表す絵文字を返します。
func Emoji(compound float64) string {
	switch {
	case compound >= 0.5:
		return "😊"
	case compound > neutralBand:
		return "🙂"
	case compound >= -neutralBand:
		return "😐"
	case compound > -0.5:
		return "😕"
	default:
		return "😠"
	}
}

var questionWords = map[string]struct{}{
	"who": {}, "what": {}, "when": {}, "where": {}, "why": {}, "how": {},
	"is": {}, "are": {}, "do": {}, "does": {}, "can": {}, "could": {}, "would": {}, "should": {},
}

// IsQuestion は、text が質問かどうかを判定します。
func IsQuestion(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if strings.Contains(text, "?") {
		return true
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	_, ok := questionWords[fields[0]]
	return ok
}
