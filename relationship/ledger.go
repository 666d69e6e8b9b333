// Package relationship は、0〜100 の関係性スコアを感情シグナルから更新します。
package relationship

import (
	"errors"
	"math"
)

// Score は、関係の強さを表す 0〜100 のスコアです。
type Score int

const (
	MinScore Score = 0
	MaxScore Score = 100
)

// Clamp は、スコアを [0,100] に収めます。
func Clamp(v int) Score {
	if v < int(MinScore) {
		return MinScore
	}
	if v > int(MaxScore) {
		return MaxScore
	}
	return Score(v)
}

// Valid は、スコアが値域内かどうかを返します。
func (s Score) Valid() bool {
	return s >= MinScore && s <= MaxScore
}

// Policy は、スコア更新の閾値と係数です。
type Policy struct {
	VeryNegativeAt float64 `yaml:"veryNegativeAt"`
	NegativeAt     float64 `yaml:"negativeAt"`
	PositiveAt     float64 `yaml:"positiveAt"`
	VeryPositiveAt float64 `yaml:"veryPositiveAt"`

	VeryNegativeDelta int `yaml:"veryNegativeDelta"`
	NegativeDelta     int `yaml:"negativeDelta"`
	NeutralDelta      int `yaml:"neutralDelta"`
	PositiveDelta     int `yaml:"positiveDelta"`
	VeryPositiveDelta int `yaml:"veryPositiveDelta"`

	// 強い絆は傷つきにくい
	ResilienceAbove  Score   `yaml:"resilienceAbove"`
	ResilienceFactor float64 `yaml:"resilienceFactor"`
	// 弱い絆は育ちやすい
	GrowthBelow  Score   `yaml:"growthBelow"`
	GrowthFactor float64 `yaml:"growthFactor"`
}

// DefaultPolicy は、既定の更新ポリシーを返します。
func DefaultPolicy() Policy {
	return Policy{
		VeryNegativeAt:    -0.5,
		NegativeAt:        -0.2,
		PositiveAt:        0.2,
		VeryPositiveAt:    0.5,
		VeryNegativeDelta: -15,
		NegativeDelta:     -8,
		NeutralDelta:      1,
		PositiveDelta:     3,
		VeryPositiveDelta: 5,
		ResilienceAbove:   70,
		ResilienceFactor:  0.6,
		GrowthBelow:       50,
		GrowthFactor:      1.3,
	}
}

// Validate は、ポリシーの整合性を検証します。
func (p Policy) Validate() error {
	if !(p.VeryNegativeAt <= p.NegativeAt && p.NegativeAt < p.PositiveAt && p.PositiveAt <= p.VeryPositiveAt) {
		return errors.New("relationship policy: bucket bounds must be ordered")
	}
	if p.VeryNegativeAt < -1 || p.VeryPositiveAt > 1 {
		return errors.New("relationship policy: bucket bounds must lie in [-1,1]")
	}
	if p.ResilienceFactor < 0 || p.ResilienceFactor > 1 {
		return errors.New("relationship policy: resilienceFactor must be in [0,1]")
	}
	if p.GrowthFactor < 1 {
		return errors.New("relationship policy: growthFactor must be >= 1")
	}
	if !p.ResilienceAbove.Valid() || !p.GrowthBelow.Valid() {
		return errors.New("relationship policy: modifier gates must be scores in [0,100]")
	}
	return nil
}

// Ledger は、関係性スコアの更新規則です。状態は持ちません。
// 同じキャラクターのスコアに対して並行に適用してはいけません。
type Ledger struct {
	policy Policy
}

// NewLedger は、Ledger を生成します。
func NewLedger(policy Policy) *Ledger {
	return &Ledger{policy: policy}
}

// BaseDelta は、修正前の変化量を返します。
// 中立な発話でも +1 です。
func (l *Ledger) BaseDelta(compound float64) int {
	p := l.policy
	switch {
	case compound <= p.VeryNegativeAt:
		return p.VeryNegativeDelta
	case compound <= p.NegativeAt:
		return p.NegativeDelta
	case compound < p.PositiveAt:
		return p.NeutralDelta
	case compound < p.VeryPositiveAt:
		return p.PositiveDelta
	default:
		return p.VeryPositiveDelta
	}
}

// ModifiedDelta は、修正を適用した後、範囲に収める前の変化量を返します。
// スコアが 0 や 100 に張り付いていても、発話の向きはこの値に残ります。
func (l *Ledger) ModifiedDelta(score Score, compound float64) int {
	score = Clamp(int(score))
	delta := l.BaseDelta(compound)

	switch {
	case delta < 0 && score > l.policy.ResilienceAbove:
		delta = truncate(float64(delta) * l.policy.ResilienceFactor)
	case delta > 0 && score < l.policy.GrowthBelow:
		delta = truncate(float64(delta) * l.policy.GrowthFactor)
	}
	return delta
}

// ApplyTurn は、スコアに1ターン分の変化を適用し、新しいスコアと実際の変化量を返します。
func (l *Ledger) ApplyTurn(score Score, compound float64) (Score, int) {
	score = Clamp(int(score))
	next := Clamp(int(score) + l.ModifiedDelta(score, compound))
	return next, int(next) - int(score)
}

// truncate は、0 方向に切り捨てます。
// 9.0 が 8.999999 になるような浮動小数点誤差は吸収します。
func truncate(v float64) int {
	const eps = 1e-9
	return int(math.Trunc(v + math.Copysign(eps, v)))
}
