package living

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"
)

// Refresh は、外部のテキスト生成から受け取る定性的な状態です。
type Refresh struct {
	Mood           string   `json:"mood" jsonschema:"required"`
	WhyThisMood    string   `json:"why_this_mood" jsonschema:"required"`
	CurrentFeeling string   `json:"current_feeling" jsonschema:"required"`
	Concerns       []string `json:"concerns" jsonschema:"required"`
	WantsToAsk     []string `json:"wants_to_ask" jsonschema:"required"`
}

// RefreshRequest は、定性的な状態を問い合わせるための入力です。
// 数値の更新結果と、更新前の状態を含みます。
type RefreshRequest struct {
	CharacterName string
	Personality   string
	Previous      State
	Next          State
	OpennessDelta float64
	TrustDelta    float64
	Compound      float64
	Utterance     string
	History       []string
}

// Refresher は、定性的な状態を生成する外部の協調者です。
// 1回の Update で呼ばれるのは高々1回で、ここが唯一の待ち合わせ点になります。
type Refresher interface {
	RefreshState(ctx context.Context, req RefreshRequest) (Refresh, error)
}

// Input は、1ターン分の更新入力です。
type Input struct {
	Compound      float64
	Summary       string
	Utterance     string
	CharacterName string
	Personality   string
	History       []string
}

// Outcome は、Update の結果です。
// State は常に使用可能で、Warning は定性的な更新に失敗した場合だけ設定されます。
type Outcome struct {
	State   State
	Warning error
}

// Tracker は、LivingState の更新規則です。
type Tracker struct {
	policy    Policy
	refresher Refresher
	now       func() time.Time
}

// NewTracker は、Tracker を生成します。refresher が nil の場合、定性的な項目は更新しません。
func NewTracker(policy Policy, refresher Refresher, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{policy: policy, refresher: refresher, now: now}
}

// Step は、外部呼び出しに依存しない数値部分だけを適用します。
func (t *Tracker) Step(prev State, compound float64, summary string) State {
	next := prev.Clone()
	signal := signedMagnitude(compound)

	next.Openness = clamp01(prev.Openness + t.policy.OpennessStep*signal)
	next.Trust = clamp01(prev.Trust + t.policy.TrustStep*signal)
	next.MoodIntensity = clamp01(t.policy.IntensityCarry*prev.MoodIntensity + (1-t.policy.IntensityCarry)*math.Abs(signal))

	if topic := topicOf(summary, t.policy.TopicMaxRunes); topic != "" {
		next.RecentTopics = pushTopic(prev.RecentTopics, topic, t.policy.TopicCapacity)
	}
	next.Version = prev.Version + 1
	next.LastUpdated = Stamp(t.now())
	return next
}

// Update は、1ターン分の更新を行います。
// 数値の更新と Version の加算は、外部呼び出しの成否にかかわらず必ず行われます。
func (t *Tracker) Update(ctx context.Context, prev State, in Input) Outcome {
	next := t.Step(prev, in.Compound, in.Summary)
	if t.refresher == nil {
		return Outcome{State: next}
	}

	r, err := t.refresher.RefreshState(ctx, RefreshRequest{
		CharacterName: in.CharacterName,
		Personality:   in.Personality,
		Previous:      prev,
		Next:          next,
		OpennessDelta: next.Openness - prev.Openness,
		TrustDelta:    next.Trust - prev.Trust,
		Compound:      in.Compound,
		Utterance:     in.Utterance,
		History:       in.History,
	})
	if err != nil {
		slog.WarnContext(ctx, "living state refresh failed, keeping previous mood",
			"character", in.CharacterName, "error", err)
		return Outcome{State: next, Warning: err}
	}

	applyRefresh(&next, r)
	return Outcome{State: next}
}

const (
	maxListItems = 5
	maxItemRunes = 120
)

// applyRefresh は、外部から得た定性的な項目を上書きします。空の値は前の値を残します。
func applyRefresh(s *State, r Refresh) {
	if v := trimRunes(r.Mood, maxItemRunes); v != "" {
		s.Mood = v
	}
	if v := trimRunes(r.WhyThisMood, 2*maxItemRunes); v != "" {
		s.WhyThisMood = v
	}
	if v := trimRunes(r.CurrentFeeling, maxItemRunes); v != "" {
		s.CurrentFeeling = v
	}
	if r.Concerns != nil {
		s.Concerns = boundList(r.Concerns)
	}
	if r.WantsToAsk != nil {
		s.WantsToAsk = boundList(r.WantsToAsk)
	}
}

func boundList(items []string) []string {
	out := make([]string, 0, maxListItems)
	for _, it := range items {
		if len(out) == maxListItems {
			break
		}
		if v := trimRunes(it, maxItemRunes); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func topicOf(summary string, maxRunes int) string {
	return trimRunes(strings.Join(strings.Fields(summary), " "), maxRunes)
}

func trimRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n > 0 && len(r) > n {
		return strings.TrimSpace(string(r[:n]))
	}
	return s
}

// signedMagnitude は sign(c)·min(1,|c|) です。
func signedMagnitude(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(-1, math.Min(1, c))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
