// Package evolution は、長期的な関係の変化を蓄積し、閾値ごとに人格の変化を確定させます。
package evolution

import (
	"errors"
	"fmt"
)

// Significance は、変化の大きさです。
type Significance string

const (
	SignificanceMinor    Significance = "minor"
	SignificanceModerate Significance = "moderate"
	SignificanceMajor    Significance = "major"
)

// Arc は、関係の大まかな推移です。
type Arc string

const (
	ArcBeginning  Arc = "beginning"
	ArcGrowing    Arc = "growing"
	ArcStable     Arc = "stable"
	ArcDeclining  Arc = "declining"
	ArcRecovering Arc = "recovering"
)

// Event は、取り消せない人格の変化の記録です。
type Event struct {
	Day          int          `json:"day" yaml:"day" bson:"day"`
	Trigger      string       `json:"trigger" yaml:"trigger" bson:"trigger"`
	Change       string       `json:"change" yaml:"change" bson:"change"`
	Significance Significance `json:"significance" yaml:"significance" bson:"significance"`
}

// State は、キャラクターの進化の台帳です。
type State struct {
	StartingScore        int     `json:"startingScore" yaml:"startingScore" bson:"startingScore"`
	ConversationsHad     int     `json:"conversationsHad" yaml:"conversationsHad" bson:"conversationsHad"`
	PositiveInteractions int     `json:"positiveInteractions" yaml:"positiveInteractions" bson:"positiveInteractions"`
	NegativeInteractions int     `json:"negativeInteractions" yaml:"negativeInteractions" bson:"negativeInteractions"`
	EvolutionPoints      int     `json:"evolutionPoints" yaml:"evolutionPoints" bson:"evolutionPoints"`
	NextThreshold        int     `json:"nextThreshold" yaml:"nextThreshold" bson:"nextThreshold"`
	PersonalityShifts    []Event `json:"personalityShifts" yaml:"personalityShifts" bson:"personalityShifts"`
	CurrentArc           Arc     `json:"currentArc" yaml:"currentArc" bson:"currentArc"`

	// 推移の判定に使う直近の変化量（古い順）
	RecentDeltas []int `json:"recentDeltas" yaml:"recentDeltas" bson:"recentDeltas"`
	// recovering 中に連続した非負の変化の数
	RecoveryStreak int `json:"recoveryStreak" yaml:"recoveryStreak" bson:"recoveryStreak"`
}

// NewState は、初期スコアから State を生成します。
func NewState(startingScore int, policy Policy) (State, error) {
	s := State{
		StartingScore:     startingScore,
		NextThreshold:     policy.InitialThreshold,
		PersonalityShifts: []Event{},
		CurrentArc:        ArcBeginning,
		RecentDeltas:      []int{},
	}
	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

// Validate は、台帳の値域を検証します。
func (s State) Validate() error {
	if s.StartingScore < 0 || s.StartingScore > 100 {
		return fmt.Errorf("evolution state: startingScore %d out of range [0,100]", s.StartingScore)
	}
	if s.ConversationsHad < 0 || s.PositiveInteractions < 0 || s.NegativeInteractions < 0 {
		return errors.New("evolution state: counters must be >= 0")
	}
	if s.PositiveInteractions+s.NegativeInteractions > s.ConversationsHad {
		return errors.New("evolution state: interaction counters exceed conversations")
	}
	if s.EvolutionPoints < 0 {
		return errors.New("evolution state: evolutionPoints must be >= 0")
	}
	if s.NextThreshold <= 0 {
		return errors.New("evolution state: nextThreshold must be > 0")
	}
	if s.RecoveryStreak < 0 {
		return errors.New("evolution state: recoveryStreak must be >= 0")
	}
	switch s.CurrentArc {
	case ArcBeginning, ArcGrowing, ArcStable, ArcDeclining, ArcRecovering:
	default:
		return fmt.Errorf("evolution state: unknown arc %q", s.CurrentArc)
	}
	for i, e := range s.PersonalityShifts {
		switch e.Significance {
		case SignificanceMinor, SignificanceModerate, SignificanceMajor:
		default:
			return fmt.Errorf("evolution state: shift %d has unknown significance %q", i, e.Significance)
		}
	}
	return nil
}

// Normalize は、nil のリストを空リストに揃えます。
func (s *State) Normalize() {
	if s.PersonalityShifts == nil {
		s.PersonalityShifts = []Event{}
	}
	if s.RecentDeltas == nil {
		s.RecentDeltas = []int{}
	}
}

// Clone は、リストを共有しない複製を返します。
func (s State) Clone() State {
	s.PersonalityShifts = append([]Event{}, s.PersonalityShifts...)
	s.RecentDeltas = append([]int{}, s.RecentDeltas...)
	return s
}

// Trend は、直近の変化量の平均です。
func (s State) Trend() float64 {
	if len(s.RecentDeltas) == 0 {
		return 0
	}
	sum := 0
	for _, d := range s.RecentDeltas {
		sum += d
	}
	return float64(sum) / float64(len(s.RecentDeltas))
}

// Summary は、応答生成に渡す台帳の要約です。
type Summary struct {
	Arc              Arc
	ConversationsHad int
	Positive         int
	Negative         int
	RecentShifts     []Event
}

// Summarize は、直近 n 件の変化を含む要約を返します。
func (s State) Summarize(n int) Summary {
	shifts := s.PersonalityShifts
	if n >= 0 && len(shifts) > n {
		shifts = shifts[len(shifts)-n:]
	}
	return Summary{
		Arc:              s.CurrentArc,
		ConversationsHad: s.ConversationsHad,
		Positive:         s.PositiveInteractions,
		Negative:         s.NegativeInteractions,
		RecentShifts:     append([]Event{}, shifts...),
	}
}
