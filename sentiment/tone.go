package sentiment

import (
	"math"
	"strings"
)

// Trend は、会話の感情の推移です。
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// ToneSummary は、複数の発話から求めた会話全体のトーンです。
type ToneSummary struct {
	Average float64
	Tone    string
	Trend   Trend
}

// Tone は、発話列の平均感情、トーン、推移を返します。
// 推移は前半と後半の平均の差で判定し、4発話未満では stable とします。
func (s *Scorer) Tone(texts []string) ToneSummary {
	scores := make([]float64, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		scores = append(scores, s.Score(t).Compound)
	}
	if len(scores) == 0 {
		return ToneSummary{Average: 0, Tone: "neutral", Trend: TrendStable}
	}

	avg := mean(scores)
	out := ToneSummary{Average: math.Round(avg*100) / 100, Trend: TrendStable}
	switch {
	case avg >= 0.3:
		out.Tone = "very positive"
	case avg >= 0.1:
		out.Tone = "positive"
	case avg >= -0.1:
		out.Tone = "neutral"
	case avg >= -0.3:
		out.Tone = "negative"
	default:
		out.Tone = "very negative"
	}

	if len(scores) >= 4 {
		mid := len(scores) / 2
		diff := mean(scores[mid:]) - mean(scores[:mid])
		if diff > 0.1 {
			out.Trend = TrendImproving
		} else if diff < -0.1 {
			out.Trend = TrendDeclining
		}
	}
	return out
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
