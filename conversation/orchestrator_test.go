package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sat8bit/kizuna/bus"
	"github.com/sat8bit/kizuna/cha"
	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
	"github.com/sat8bit/kizuna/llm"
	"github.com/sat8bit/kizuna/message"
	"github.com/sat8bit/kizuna/persona"
	"github.com/sat8bit/kizuna/relationship"
	"github.com/sat8bit/kizuna/sentiment"
	"github.com/sat8bit/kizuna/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

type fakeLLM struct {
	mu         sync.Mutex
	replyErr   error
	refreshErr error
	wordErr    error
	inputs     []llm.GenerateInput
}

func (f *fakeLLM) Reply(ctx context.Context, in llm.GenerateInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.replyErr != nil {
		return "", f.replyErr
	}
	return fmt.Sprintf("reply #%d", len(f.inputs)), nil
}

func (f *fakeLLM) RefreshState(ctx context.Context, req living.RefreshRequest) (living.Refresh, error) {
	if f.refreshErr != nil {
		return living.Refresh{}, f.refreshErr
	}
	mood := "pleased"
	if req.Compound < 0 {
		mood = "hurt"
	}
	return living.Refresh{Mood: mood, WhyThisMood: "because of the last message", CurrentFeeling: "thinking", Concerns: []string{}, WantsToAsk: []string{}}, nil
}

func (f *fakeLLM) WordEvent(ctx context.Context, req evolution.WordingRequest) (string, error) {
	if f.wordErr != nil {
		return "", f.wordErr
	}
	return req.CharacterName + " is more careful now.", nil
}

func (f *fakeLLM) lastInput() llm.GenerateInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[len(f.inputs)-1]
}

func newOrchestrator(f *fakeLLM, b bus.Bus, topics topic.Fetcher) *Orchestrator {
	clock := func() time.Time { return epoch }
	return New(Deps{
		Scorer:  sentiment.NewScorer(),
		Ledger:  relationship.NewLedger(relationship.DefaultPolicy()),
		Tracker: living.NewTracker(living.DefaultPolicy(), f, clock),
		Engine:  evolution.NewEngine(evolution.DefaultPolicy(), f),
		Replier: f,
		Topics:  topics,
		Bus:     b,
		Now:     clock,
	})
}

func newCha(t *testing.T, id string, score int) *cha.Cha {
	t.Helper()
	p := &persona.Persona{
		PersonaId:        id,
		DisplayName:      "Mika",
		Personality:      "Warm and teasing.",
		BaselineScore:    score,
		BaselineOpenness: 0.5,
		BaselineTrust:    0.5,
	}
	c, err := cha.New(id, p, evolution.DefaultPolicy(), epoch)
	require.NoError(t, err)
	return c
}

func TestTurn_HostileMessage(t *testing.T) {
	f := &fakeLLM{}
	o := newOrchestrator(f, nil, nil)
	c := newCha(t, "mika", 50)

	r, err := o.Turn(context.Background(), c, "I hate you, you suck")
	require.NoError(t, err)

	assert.Equal(t, -15, r.Delta)
	assert.Equal(t, relationship.Score(35), r.Score)
	assert.Equal(t, relationship.LevelAcquaintance, r.Level)
	assert.Equal(t, sentiment.CategoryVeryNegative, r.Category)
	assert.Contains(t, r.Feedback, "-15")
	assert.Equal(t, "reply #1", r.Reply)
	assert.Empty(t, r.Warnings)

	s := c.State()
	assert.Equal(t, relationship.Score(35), s.Score)
	assert.Equal(t, 1, s.Living.Version)
	assert.Equal(t, "hurt", s.Living.Mood)
	assert.Less(t, s.Living.Trust, 0.5)
	assert.Equal(t, []string{"I hate you, you suck"}, s.Living.RecentTopics)
	assert.Equal(t, 1, s.Evolution.ConversationsHad)
	assert.Equal(t, 1, s.Evolution.NegativeInteractions)
	assert.Equal(t, 20, s.Evolution.EvolutionPoints)

	lines := c.Recent(10)
	require.Len(t, lines, 2)
	assert.Equal(t, PlayerSpeaker, lines[0].Speaker)
	assert.Equal(t, "Mika", lines[1].Speaker)
	assert.Equal(t, "reply #1", lines[1].Text)
}

func TestTurn_SnapshotForReply(t *testing.T) {
	f := &fakeLLM{}
	o := newOrchestrator(f, nil, topic.Static{{Title: "a"}, {Title: "b"}, {Title: "c"}, {Title: "d"}})
	c := newCha(t, "mika", 50)

	for i := 0; i < 6; i++ {
		_, err := o.Turn(context.Background(), c, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	in := f.lastInput()
	assert.Equal(t, "mika", in.ChaId)
	assert.Equal(t, "Mika", in.Profile.Name)
	assert.Equal(t, "message 5", in.Utterance)
	assert.Len(t, in.RecentMessages, HistorySize)
	assert.Equal(t, "message 0", in.RecentMessages[0].Text)
	assert.False(t, in.RecentMessages[0].FromCha)
	assert.True(t, in.RecentMessages[1].FromCha)
	assert.Len(t, in.Topics, HookCount)
	assert.Equal(t, 6, in.Living.Version)
	assert.Equal(t, 6, in.Evolution.ConversationsHad)
	assert.Len(t, c.Recent(cha.LogCapacity), 12)
}

func TestTurn_ReplyFailureFallsBack(t *testing.T) {
	f := &fakeLLM{replyErr: &llm.ExternalServiceError{Op: "reply", Attempts: 3, Err: errors.New("timeout")}}
	o := newOrchestrator(f, nil, nil)
	c := newCha(t, "mika", 50)

	r, err := o.Turn(context.Background(), c, "I hate you, you suck")
	require.NoError(t, err)

	assert.Equal(t, cha.FallbackReply(relationship.LevelAcquaintance), r.Reply)
	require.Len(t, r.Warnings, 1)
	var ese *llm.ExternalServiceError
	assert.True(t, errors.As(r.Warnings[0], &ese))

	s := c.State()
	assert.Equal(t, relationship.Score(35), s.Score)
	assert.Equal(t, 1, s.Living.Version)
}

func TestTurn_RefreshFailureKeepsMood(t *testing.T) {
	f := &fakeLLM{refreshErr: errors.New("unreachable")}
	o := newOrchestrator(f, nil, nil)
	c := newCha(t, "mika", 50)

	r, err := o.Turn(context.Background(), c, "You are wonderful, I love talking to you")
	require.NoError(t, err)
	require.Len(t, r.Warnings, 1)

	s := c.State()
	assert.Equal(t, "neutral", s.Living.Mood)
	assert.Equal(t, 1, s.Living.Version)
	assert.Greater(t, s.Living.Openness, 0.5)
	assert.Greater(t, int(s.Score), 50)
}

func TestTurn_EvolutionEventBroadcast(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()
	ch := b.Subscribe()

	f := &fakeLLM{}
	o := newOrchestrator(f, b, nil)
	c := newCha(t, "mika", 50)

	s := c.State()
	s.Evolution.EvolutionPoints = 95
	require.NoError(t, c.Restore(s, epoch))

	r, err := o.Turn(context.Background(), c, "I hate you, you suck")
	require.NoError(t, err)
	require.NotNil(t, r.Event)
	assert.Equal(t, evolution.SignificanceMajor, r.Event.Significance)
	assert.Equal(t, "Mika is more careful now.", r.Event.Change)
	assert.Equal(t, 1, r.Event.Day)

	after := c.State()
	assert.Equal(t, 0, after.Evolution.EvolutionPoints)
	assert.Equal(t, 150, after.Evolution.NextThreshold)
	assert.Len(t, after.Evolution.PersonalityShifts, 1)

	var kinds []message.Kind
	for i := 0; i < 3; i++ {
		m := <-ch
		kinds = append(kinds, m.Kind)
		if m.Kind == message.KindTurn {
			require.NotNil(t, m.Turn)
			assert.Equal(t, -15, m.Turn.Delta)
		}
		if m.Kind == message.KindEvolution {
			require.NotNil(t, m.Event)
			assert.Equal(t, evolution.SignificanceMajor, m.Event.Significance)
		}
	}
	assert.Equal(t, []message.Kind{message.KindTurn, message.KindCha, message.KindEvolution}, kinds)
}

func TestTurn_WarningsBroadcast(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()
	ch := b.Subscribe()

	f := &fakeLLM{replyErr: errors.New("down")}
	o := newOrchestrator(f, b, nil)
	c := newCha(t, "mika", 50)

	_, err := o.Turn(context.Background(), c, "hello")
	require.NoError(t, err)

	<-ch
	<-ch
	w := <-ch
	assert.Equal(t, message.KindWarning, w.Kind)
	assert.Contains(t, w.Text, "down")
}

func TestTurn_CancelledWhileWaiting(t *testing.T) {
	o := newOrchestrator(&fakeLLM{}, nil, nil)
	c := newCha(t, "mika", 50)

	require.NoError(t, c.Turn().Acquire(context.Background()))
	defer c.Turn().Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.Turn(ctx, c, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.State().Living.Version)
}

type acquiringObserver struct {
	mu    sync.Mutex
	count int
	err   error
}

func (a *acquiringObserver) TurnCommitted(ctx context.Context, c *cha.Cha, r *Result) {
	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	err := c.Turn().Acquire(tctx)
	if err == nil {
		c.Turn().Release()
	}
	a.mu.Lock()
	a.count++
	a.err = err
	a.mu.Unlock()
}

func TestTurn_ObserverRunsAfterRelease(t *testing.T) {
	o := newOrchestrator(&fakeLLM{}, nil, nil)
	obs := &acquiringObserver{}
	o.Observe(obs)
	c := newCha(t, "mika", 50)

	_, err := o.Turn(context.Background(), c, "hello")
	require.NoError(t, err)

	assert.Equal(t, 1, obs.count)
	assert.NoError(t, obs.err)
}

func TestTurnMany(t *testing.T) {
	f := &fakeLLM{}
	o := newOrchestrator(f, nil, nil)
	a := newCha(t, "mika", 50)
	b := newCha(t, "kenji", 50)

	var reqs []Request
	for i := 0; i < 5; i++ {
		reqs = append(reqs, Request{Cha: a, Utterance: "thanks, that was great"}, Request{Cha: b, Utterance: "whatever"})
	}

	results, err := o.TurnMany(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, r := range results {
		assert.Equal(t, reqs[i].Cha.ChaId, r.ChaId)
	}

	for _, c := range []*cha.Cha{a, b} {
		s := c.State()
		assert.Equal(t, 5, s.Living.Version)
		assert.Equal(t, 5, s.Evolution.ConversationsHad)
		assert.Len(t, c.Recent(cha.LogCapacity), 10)
	}
}

func TestOpeningGoodbyeSummary(t *testing.T) {
	o := newOrchestrator(&fakeLLM{}, nil, nil)
	c := newCha(t, "mika", 90)

	hello, err := o.Opening(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, c.Opening(), hello)

	for _, u := range []string{"I hate this", "this is awful", "ok that is nice", "I love this, wonderful"} {
		_, err := o.Turn(context.Background(), c, u)
		require.NoError(t, err)
	}

	bye, err := o.Goodbye(context.Background(), c)
	require.NoError(t, err)
	assert.NotEmpty(t, bye)

	lines := c.Recent(cha.LogCapacity)
	assert.Equal(t, hello, lines[0].Text)
	assert.Equal(t, bye, lines[len(lines)-1].Text)

	sum := o.Summary(c)
	assert.Equal(t, sentiment.TrendImproving, sum.Trend)
}

type blockingFetcher struct {
	once    sync.Once
	started chan struct{}
}

func (b *blockingFetcher) Fetch(ctx context.Context) ([]*topic.Topic, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTurn_SlowHooksDoNotHoldTheTurn(t *testing.T) {
	topics := &blockingFetcher{started: make(chan struct{})}
	o := newOrchestrator(&fakeLLM{}, nil, topics)
	o.hookTimeout = 300 * time.Millisecond
	c := newCha(t, "mika", 50)

	type outcome struct {
		r   *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := o.Turn(context.Background(), c, "hello")
		done <- outcome{r, err}
	}()

	<-topics.started
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Turn().Acquire(ctx), "turn must be free while hooks are fetched")
	c.Turn().Release()

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.Empty(t, got.r.Input.Topics)
		require.Len(t, got.r.Warnings, 1)
		assert.ErrorIs(t, got.r.Warnings[0], context.DeadlineExceeded)
		assert.Equal(t, 1, c.State().Living.Version)
	case <-time.After(3 * time.Second):
		t.Fatal("turn did not finish after the hook timeout")
	}
}

func TestTurn_HostilityAtTheFloorIsStillCounted(t *testing.T) {
	o := newOrchestrator(&fakeLLM{}, nil, nil)
	c := newCha(t, "mika", 0)

	for i := 0; i < 5; i++ {
		r, err := o.Turn(context.Background(), c, "I hate you, you suck")
		require.NoError(t, err)
		assert.Equal(t, 0, r.Delta)
		assert.Equal(t, relationship.Score(0), r.Score)
	}

	ev := c.State().Evolution
	assert.Equal(t, 5, ev.NegativeInteractions)
	assert.Equal(t, 0, ev.PositiveInteractions)
	assert.Equal(t, evolution.ArcDeclining, ev.CurrentArc)
}

func TestTurn_WarmthAtTheCeilingIsStillCounted(t *testing.T) {
	o := newOrchestrator(&fakeLLM{}, nil, nil)
	c := newCha(t, "mika", 100)

	for i := 0; i < 5; i++ {
		r, err := o.Turn(context.Background(), c, "I love you so much, you are wonderful and amazing!")
		require.NoError(t, err)
		assert.Equal(t, 0, r.Delta)
		assert.Equal(t, relationship.Score(100), r.Score)
	}

	ev := c.State().Evolution
	assert.Equal(t, 5, ev.PositiveInteractions)
	assert.Equal(t, 0, ev.NegativeInteractions)
	assert.Equal(t, evolution.ArcGrowing, ev.CurrentArc)
}

func TestTurn_OversizedUtteranceIsTruncated(t *testing.T) {
	f := &fakeLLM{}
	o := newOrchestrator(f, nil, nil)
	c := newCha(t, "mika", 50)

	r, err := o.Turn(context.Background(), c, strings.Repeat("a", 20000))
	require.NoError(t, err)
	assert.Empty(t, r.Warnings)

	assert.Equal(t, sentiment.MaxRunes, utf8.RuneCountInString(r.Utterance))
	assert.Equal(t, sentiment.MaxRunes, utf8.RuneCountInString(f.lastInput().Utterance))
	lines := c.Recent(2)
	require.Len(t, lines, 2)
	assert.Equal(t, sentiment.MaxRunes, utf8.RuneCountInString(lines[0].Text))
	for _, topic := range c.State().Living.RecentTopics {
		assert.LessOrEqual(t, utf8.RuneCountInString(topic), sentiment.MaxRunes)
	}
}
