package evolution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// WordingRequest は、変化の文言を生成するための入力です。
type WordingRequest struct {
	CharacterName string
	Personality   string
	Significance  Significance
	Trigger       string
	Arc           Arc
	Score         int
	Positive      int
	Negative      int
	Previous      []Event
}

// Narrator は、変化の文言を生成する外部の協調者です。
// 分類は常にローカルで決まり、文言だけを委ねます。
type Narrator interface {
	WordEvent(ctx context.Context, req WordingRequest) (string, error)
}

// Input は、1ターン分の入力です。
type Input struct {
	// Delta は、実際に動いたスコアの量です。ポイントはこれで数えます。
	Delta int
	// Pressure は、範囲に収める前の変化量です。正負のカウンタと推移に使います。
	// 0 の場合は Delta と同じとみなします。
	Pressure      int
	Compound      float64
	Day           int
	Score         int
	CharacterName string
	Personality   string
}

// Outcome は、OnTurn の結果です。Event は変化が確定したターンだけ設定されます。
type Outcome struct {
	State   State
	Event   *Event
	Warning error
}

// Engine は、進化の台帳の更新規則です。
type Engine struct {
	policy   Policy
	narrator Narrator
}

// NewEngine は、Engine を生成します。narrator が nil の場合は定型文を使います。
func NewEngine(policy Policy, narrator Narrator) *Engine {
	return &Engine{policy: policy, narrator: narrator}
}

// Accrue は、外部呼び出しを伴わない部分（ポイント、カウンタ、推移）を適用します。
func (e *Engine) Accrue(prev State, delta int, compound float64) State {
	return e.accrue(prev, delta, delta, compound)
}

func (in Input) pressure() int {
	if in.Pressure == 0 {
		return in.Delta
	}
	return in.Pressure
}

func (e *Engine) accrue(prev State, delta, pressure int, compound float64) State {
	p := e.policy
	next := prev.Clone()

	points := abs(delta)
	if math.Abs(compound) >= p.SwingAt {
		points += p.SwingBonus
	}
	next.EvolutionPoints += points
	next.ConversationsHad++
	switch {
	case pressure > 0:
		next.PositiveInteractions++
	case pressure < 0:
		next.NegativeInteractions++
	}

	next.RecentDeltas = append(next.RecentDeltas, pressure)
	if over := len(next.RecentDeltas) - p.TrendWindow; over > 0 {
		next.RecentDeltas = append([]int{}, next.RecentDeltas[over:]...)
	}
	next.CurrentArc, next.RecoveryStreak = nextArc(next, pressure, p)
	return next
}

// Due は、このターンで変化を確定させるべきかを返します。
// 5ターンごとの定期確認でも、ポイントが閾値に届いていなければ何も起きません。
func (e *Engine) Due(s State) bool {
	reached := s.EvolutionPoints >= s.NextThreshold
	if s.ConversationsHad%e.policy.CheckEvery != 0 && !reached {
		return false
	}
	return reached
}

// Classify は、前回の変化から蓄積したポイントで大きさを分類します。
func (e *Engine) Classify(points int) Significance {
	switch {
	case points > e.policy.MajorAbove:
		return SignificanceMajor
	case points >= e.policy.ModerateFrom:
		return SignificanceModerate
	default:
		return SignificanceMinor
	}
}

// OnTurn は、1ターン分の更新を行い、閾値に届いた場合は Event を確定させます。
func (e *Engine) OnTurn(ctx context.Context, prev State, in Input) Outcome {
	next := e.accrue(prev, in.Delta, in.pressure(), in.Compound)
	if !e.Due(next) {
		return Outcome{State: next}
	}

	sig := e.Classify(next.EvolutionPoints)
	trigger := fmt.Sprintf("%d evolution points after %d conversations (%d positive, %d negative)",
		next.EvolutionPoints, next.ConversationsHad, next.PositiveInteractions, next.NegativeInteractions)

	out := Outcome{}
	change := ""
	if e.narrator != nil {
		words, err := e.narrator.WordEvent(ctx, WordingRequest{
			CharacterName: in.CharacterName,
			Personality:   in.Personality,
			Significance:  sig,
			Trigger:       trigger,
			Arc:           next.CurrentArc,
			Score:         in.Score,
			Positive:      next.PositiveInteractions,
			Negative:      next.NegativeInteractions,
			Previous:      next.Summarize(3).RecentShifts,
		})
		if err != nil {
			slog.WarnContext(ctx, "evolution wording failed, using fallback",
				"character", in.CharacterName, "error", err)
			out.Warning = err
		}
		change = strings.TrimSpace(words)
	}
	if change == "" {
		change = fallbackChange(in.CharacterName, sig, next)
	}

	event := Event{Day: in.Day, Trigger: trigger, Change: change, Significance: sig}
	next.PersonalityShifts = append(next.PersonalityShifts, event)
	next.EvolutionPoints = 0
	next.NextThreshold += e.policy.ThresholdIncrement

	out.State = next
	out.Event = &event
	return out
}

func fallbackChange(name string, sig Significance, s State) string {
	if name == "" {
		name = "They"
	}
	warmer := s.PositiveInteractions >= s.NegativeInteractions
	switch {
	case warmer && sig == SignificanceMajor:
		return fmt.Sprintf("%s has come to rely on you in a way they did not before.", name)
	case warmer:
		return fmt.Sprintf("%s feels a little more at ease around you.", name)
	case sig == SignificanceMajor:
		return fmt.Sprintf("%s has become guarded and keeps more to themselves.", name)
	default:
		return fmt.Sprintf("%s has grown a little more cautious with you.", name)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
