// Package sentiment は、プレイヤーの発話を有界な感情シグナルに変換します。
package sentiment

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/jonreiter/govader"
)

// MaxRunes は、スコアリング対象とする発話の最大文字数です。
const MaxRunes = 4000

// Result は、1発話の感情スコアです。
// Compound は [-1,1]、Pos / Neg / Neu は [0,1] に収まります。
type Result struct {
	Compound float64 `json:"compound" yaml:"compound"`
	Pos      float64 `json:"pos" yaml:"pos"`
	Neg      float64 `json:"neg" yaml:"neg"`
	Neu      float64 `json:"neu" yaml:"neu"`
}

// Neutral は、空入力に対して返す中立のスコアです。
var Neutral = Result{Compound: 0, Pos: 0, Neg: 0, Neu: 1}

// InputError は、空または長すぎる発話を表します。
// 呼び出し側に返されることはなく、中立化・切り詰めされた上でログにだけ残ります。
type InputError struct {
	Reason string
	Runes  int
}

func (e *InputError) Error() string {
	return fmt.Sprintf("sentiment input rejected: %s (%d runes)", e.Reason, e.Runes)
}

// Scorer は、VADER による感情スコアラーです。
// 同じテキストには常に同じ結果を返し、副作用を持ちません。
type Scorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewScorer は、辞書を読み込んだ Scorer を生成します。
func NewScorer() *Scorer {
	return &Scorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Score は、text の感情スコアを返します。失敗することはありません。
func (s *Scorer) Score(text string) Result {
	text, err := Sanitize(text)
	if err != nil {
		slog.Debug("sentiment input coerced", "error", err)
	}
	if text == "" {
		return Neutral
	}
	v := s.analyzer.PolarityScores(text)
	return Result{
		Compound: clamp(v.Compound, -1, 1),
		Pos:      clamp(v.Positive, 0, 1),
		Neg:      clamp(v.Negative, 0, 1),
		Neu:      clamp(v.Neutral, 0, 1),
	}
}

// Sanitize は、発話をスコアリング可能な形に整えます。
// 空白のみの入力は空文字列に、MaxRunes を超える入力は切り詰めて、それぞれ *InputError を返します。
func Sanitize(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &InputError{Reason: "empty utterance"}
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxRunes {
		return string([]rune(trimmed)[:MaxRunes]), &InputError{Reason: "utterance too long", Runes: n}
	}
	return trimmed, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
