package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sat8bit/kizuna/bus"
	"github.com/sat8bit/kizuna/cha"
	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
	"github.com/sat8bit/kizuna/llm"
	"github.com/sat8bit/kizuna/message"
	"github.com/sat8bit/kizuna/relationship"
	"github.com/sat8bit/kizuna/sentiment"
	"github.com/sat8bit/kizuna/topic"
)

const (
	// HistorySize は、応答生成に渡す直近の会話ログの件数です。
	HistorySize = 10
	// HookCount は、応答生成に添える話題の最大件数です。
	HookCount = 3
	// PlayerSpeaker は、会話ログ上のプレイヤーの名前です。
	PlayerSpeaker = "You"
	// DefaultHookTimeout は、話題の取得を待つ時間の既定値です。
	DefaultHookTimeout = 5 * time.Second
)

// Replier は、キャラクターの返事を生成する協調者です。
type Replier interface {
	Reply(ctx context.Context, input llm.GenerateInput) (string, error)
}

// Observer は、ターンが確定してターンが解放された後に呼ばれます。
type Observer interface {
	TurnCommitted(ctx context.Context, c *cha.Cha, r *Result)
}

// Deps は、Orchestrator が使う部品です。Topics と Bus は省略できます。
type Deps struct {
	Scorer  *sentiment.Scorer
	Ledger  *relationship.Ledger
	Tracker *living.Tracker
	Engine  *evolution.Engine
	Replier Replier
	Topics  topic.Fetcher
	Bus     bus.Bus
	Now     func() time.Time
	// HookTimeout は、話題の取得を待つ時間です。0 なら DefaultHookTimeout です。
	HookTimeout time.Duration
}

// Orchestrator は、1ターン分の更新を決まった順序で1回だけ行います。
type Orchestrator struct {
	scorer  *sentiment.Scorer
	ledger  *relationship.Ledger
	tracker *living.Tracker
	engine  *evolution.Engine
	replier Replier
	topics  topic.Fetcher
	bus     bus.Bus
	now     func() time.Time

	hookTimeout time.Duration

	mu        sync.RWMutex
	observers []Observer
}

func New(d Deps) *Orchestrator {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.HookTimeout <= 0 {
		d.HookTimeout = DefaultHookTimeout
	}
	return &Orchestrator{
		scorer:  d.Scorer,
		ledger:  d.Ledger,
		tracker: d.Tracker,
		engine:  d.Engine,
		replier: d.Replier,
		topics:  d.Topics,
		bus:     d.Bus,
		now:     d.Now,

		hookTimeout: d.HookTimeout,
	}
}

// Observe は、ターン確定の通知先を追加します。
func (o *Orchestrator) Observe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// Result は、1ターンの結果です。
type Result struct {
	ChaId     string
	Utterance string
	Sentiment sentiment.Result
	Category  sentiment.Category
	Feedback  string
	Delta     int
	Score     relationship.Score
	Level     relationship.Level
	Arc       evolution.Arc
	Event     *evolution.Event
	Reply     string
	// Input は、応答生成に渡したスナップショットです。
	Input    llm.GenerateInput
	Warnings []error
}

// Turn は、プレイヤーの発話1つを処理します。
// 同じキャラクターへのターンは順番に処理されます。
// 外部呼び出しの失敗は Result.Warnings に入り、エラーになるのはターン待ちの間に ctx が終わった場合だけです。
func (o *Orchestrator) Turn(ctx context.Context, c *cha.Cha, utterance string) (*Result, error) {
	// 話題の取得はターンを持つ前に済ませる
	hooks, hookErr := o.hooks(ctx, c.ChaId)

	if err := c.Turn().Acquire(ctx); err != nil {
		return nil, fmt.Errorf("conversation: waiting for %s: %w", c.ChaId, err)
	}
	r, err := o.run(ctx, c, utterance, hooks, hookErr)
	c.Turn().Release()
	if err != nil {
		return nil, err
	}

	o.publish(c, r)
	o.mu.RLock()
	observers := append([]Observer(nil), o.observers...)
	o.mu.RUnlock()
	for _, obs := range observers {
		obs.TurnCommitted(ctx, c, r)
	}
	return r, nil
}

func (o *Orchestrator) run(ctx context.Context, c *cha.Cha, utterance string, hooks []*topic.Topic, hookErr error) (*Result, error) {
	utterance, inputErr := sentiment.Sanitize(utterance)
	if inputErr != nil {
		slog.DebugContext(ctx, "utterance coerced", "cha", c.ChaId, "error", inputErr)
	}
	now := o.now()
	prev := c.State()
	name := c.Persona.DisplayName
	recent := c.Recent(HistorySize)

	s := o.scorer.Score(utterance)
	score, delta := o.ledger.ApplyTurn(prev.Score, s.Compound)
	pressure := o.ledger.ModifiedDelta(prev.Score, s.Compound)

	r := &Result{ChaId: c.ChaId, Utterance: utterance, Sentiment: s, Delta: delta, Score: score, Level: relationship.LevelOf(score)}
	var desc string
	r.Category, desc = sentiment.Categorize(s.Compound)
	r.Feedback = fmt.Sprintf("%s %+d (%s)", sentiment.Emoji(s.Compound), delta, desc)

	lo := o.tracker.Update(ctx, prev.Living, living.Input{
		Compound:      s.Compound,
		Summary:       utterance,
		Utterance:     utterance,
		CharacterName: name,
		Personality:   c.Persona.Personality,
		History:       historyText(recent),
	})
	r.warn(lo.Warning)

	eo := o.engine.OnTurn(ctx, prev.Evolution, evolution.Input{
		Delta:         delta,
		Pressure:      pressure,
		Compound:      s.Compound,
		Day:           c.Day(now),
		Score:         int(score),
		CharacterName: name,
		Personality:   c.Persona.Personality,
	})
	r.warn(eo.Warning)
	r.Event = eo.Event
	r.Arc = eo.State.CurrentArc

	r.Input = llm.GenerateInput{
		ChaId:          c.ChaId,
		Profile:        c.Persona.Excerpt(),
		Catchphrases:   c.Persona.Catchphrases,
		MaxChars:       c.Persona.DefaultMaxChars,
		Level:          r.Level,
		Score:          score,
		Living:         lo.State.Clone(),
		Evolution:      eo.State.Summarize(3),
		RecentMessages: historyLines(recent),
		Utterance:      utterance,
		Topics:         hooks,
	}
	r.warn(hookErr)

	reply := ""
	if o.replier != nil {
		text, err := o.replier.Reply(ctx, r.Input)
		if err != nil {
			slog.WarnContext(ctx, "reply generation failed, using fallback", "cha", c.ChaId, "error", err)
			r.warn(err)
		}
		reply = strings.TrimSpace(text)
	}
	if reply == "" {
		reply = cha.FallbackReply(r.Level)
	}
	r.Reply = reply

	next := cha.State{Score: score, Living: lo.State, Evolution: eo.State}
	if err := c.Commit(next,
		cha.Line{Speaker: PlayerSpeaker, Text: utterance, At: now},
		cha.Line{Speaker: name, Text: reply, At: o.now()},
	); err != nil {
		slog.ErrorContext(ctx, "turn discarded", "cha", c.ChaId, "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "turn committed",
		"cha", c.ChaId, "compound", s.Compound, "delta", delta, "score", int(score),
		"arc", r.Arc, "event", r.Event != nil, "warnings", len(r.Warnings))
	return r, nil
}

func (r *Result) warn(err error) {
	if err != nil {
		r.Warnings = append(r.Warnings, err)
	}
}

// hooks は、応答に添える話題を hookTimeout の範囲で取得します。
func (o *Orchestrator) hooks(ctx context.Context, chaId string) ([]*topic.Topic, error) {
	if o.topics == nil {
		return nil, nil
	}
	fctx, cancel := context.WithTimeout(ctx, o.hookTimeout)
	defer cancel()
	topics, err := o.topics.Fetch(fctx)
	if err != nil {
		slog.WarnContext(ctx, "conversation hooks unavailable", "cha", chaId, "error", err)
		return nil, fmt.Errorf("conversation hooks: %w", err)
	}
	if len(topics) > HookCount {
		topics = topics[:HookCount]
	}
	return topics, nil
}

func (o *Orchestrator) publish(c *cha.Cha, r *Result) {
	if o.bus == nil {
		return
	}
	at := o.now()
	msgs := []*message.Message{{
		ChaId: c.ChaId,
		From:  PlayerSpeaker,
		Text:  r.Feedback,
		At:    at,
		Kind:  message.KindTurn,
		Turn: &message.TurnMeta{
			Delta:     r.Delta,
			Score:     r.Score,
			Level:     r.Level,
			Sentiment: r.Sentiment,
			Category:  r.Category,
			Feedback:  r.Feedback,
			Arc:       r.Arc,
		},
	}, {
		ChaId: c.ChaId,
		From:  c.Persona.DisplayName,
		Text:  r.Reply,
		At:    at,
		Kind:  message.KindCha,
	}}
	if r.Event != nil {
		ev := *r.Event
		msgs = append(msgs, &message.Message{
			ChaId: c.ChaId,
			From:  c.Persona.DisplayName,
			Text:  ev.Change,
			At:    at,
			Kind:  message.KindEvolution,
			Event: &ev,
		})
	}
	for _, w := range r.Warnings {
		msgs = append(msgs, &message.Message{
			ChaId: c.ChaId,
			Text:  w.Error(),
			At:    at,
			Kind:  message.KindWarning,
		})
	}
	for _, m := range msgs {
		if err := o.bus.Broadcast(m); err != nil {
			slog.Debug("broadcast skipped", "kind", m.Kind, "error", err)
		}
	}
}

func historyLines(lines []cha.Line) []llm.Line {
	out := make([]llm.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, llm.Line{Speaker: l.Speaker, Text: l.Text, FromCha: l.Speaker != PlayerSpeaker})
	}
	return out
}

func historyText(lines []cha.Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Speaker+": "+l.Text)
	}
	return out
}
