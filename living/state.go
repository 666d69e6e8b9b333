// Package living は、キャラクターの短期的な「いまの気持ち」を管理します。
package living

import (
	"errors"
	"fmt"
	"time"
)

// State は、ターンごとに更新される感情状態です。
type State struct {
	Mood           string    `json:"mood" yaml:"mood" bson:"mood"`
	MoodIntensity  float64   `json:"moodIntensity" yaml:"moodIntensity" bson:"moodIntensity"`
	WhyThisMood    string    `json:"whyThisMood" yaml:"whyThisMood" bson:"whyThisMood"`
	CurrentFeeling string    `json:"currentFeeling" yaml:"currentFeeling" bson:"currentFeeling"`
	Openness       float64   `json:"openness" yaml:"openness" bson:"openness"`
	Trust          float64   `json:"trust" yaml:"trust" bson:"trust"`
	RecentTopics   []string  `json:"recentTopics" yaml:"recentTopics" bson:"recentTopics"`
	Concerns       []string  `json:"concerns" yaml:"concerns" bson:"concerns"`
	WantsToAsk     []string  `json:"wantsToAsk" yaml:"wantsToAsk" bson:"wantsToAsk"`
	LastUpdated    time.Time `json:"lastUpdated" yaml:"lastUpdated" bson:"lastUpdated"`
	Version        int       `json:"version" yaml:"version" bson:"version"`
}

// Seed は、プロフィールの初期値です。
type Seed struct {
	Openness float64
	Trust    float64
	Now      time.Time
}

// Stamp は、時刻を保存形式と同じ精度（UTC、ミリ秒）に揃えます。
// 状態に入る時刻はすべてこれを通すので、保存して読み戻しても値が変わりません。
func Stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Millisecond)
}

// NewState は、初期値から State を生成します。値域外の初期値は拒否します。
func NewState(seed Seed) (State, error) {
	s := State{
		Mood:           "neutral",
		MoodIntensity:  0.5,
		CurrentFeeling: "calm",
		Openness:       seed.Openness,
		Trust:          seed.Trust,
		RecentTopics:   []string{},
		Concerns:       []string{},
		WantsToAsk:     []string{},
		LastUpdated:    Stamp(seed.Now),
	}
	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

// Validate は、比率と版数が値域内かを検証します。
func (s State) Validate() error {
	for name, v := range map[string]float64{
		"moodIntensity": s.MoodIntensity,
		"openness":      s.Openness,
		"trust":         s.Trust,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("living state: %s %v out of range [0,1]", name, v)
		}
	}
	if s.Version < 0 {
		return errors.New("living state: version must be >= 0")
	}
	if len(s.RecentTopics) > TopicCapacity {
		return fmt.Errorf("living state: %d recent topics exceeds capacity %d", len(s.RecentTopics), TopicCapacity)
	}
	return nil
}

// Normalize は、nil のリストを空リストに揃えます。デコード直後に呼びます。
func (s *State) Normalize() {
	if s.RecentTopics == nil {
		s.RecentTopics = []string{}
	}
	if s.Concerns == nil {
		s.Concerns = []string{}
	}
	if s.WantsToAsk == nil {
		s.WantsToAsk = []string{}
	}
}

// Clone は、リストを共有しない複製を返します。
func (s State) Clone() State {
	s.RecentTopics = append([]string{}, s.RecentTopics...)
	s.Concerns = append([]string{}, s.Concerns...)
	s.WantsToAsk = append([]string{}, s.WantsToAsk...)
	return s
}
