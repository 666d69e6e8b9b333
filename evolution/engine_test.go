package evolution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNarrator struct {
	calls int
	text  string
	err   error
	last  WordingRequest
}

func (s *stubNarrator) WordEvent(_ context.Context, req WordingRequest) (string, error) {
	s.calls++
	s.last = req
	return s.text, s.err
}

func newState(t *testing.T) State {
	t.Helper()
	s, err := NewState(50, DefaultPolicy())
	require.NoError(t, err)
	return s
}

func TestAccruePoints(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := newState(t)

	s = e.Accrue(s, 5, 0.5)
	assert.Equal(t, 5, s.EvolutionPoints)
	assert.Equal(t, 1, s.PositiveInteractions)

	s = e.Accrue(s, -15, -0.8)
	assert.Equal(t, 25, s.EvolutionPoints, "large swings earn the bonus")
	assert.Equal(t, 1, s.NegativeInteractions)

	s = e.Accrue(s, 0, 0)
	assert.Equal(t, 25, s.EvolutionPoints)
	assert.Equal(t, 3, s.ConversationsHad)
	assert.Equal(t, 1, s.PositiveInteractions)
	assert.Equal(t, 1, s.NegativeInteractions)
}

func TestOnTurnCountsPressureWhenScoreIsPinned(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := newState(t)

	for i := 0; i < 3; i++ {
		s = e.OnTurn(context.Background(), s, Input{Delta: 0, Pressure: -15, Compound: -0.8}).State
	}
	assert.Equal(t, 3, s.NegativeInteractions)
	assert.Equal(t, []int{-15, -15, -15}, s.RecentDeltas)
	assert.Equal(t, ArcDeclining, s.CurrentArc)
	assert.Equal(t, 15, s.EvolutionPoints, "points follow the applied delta plus the swing bonus")

	up := newState(t)
	up = e.OnTurn(context.Background(), up, Input{Delta: 0, Pressure: 5, Compound: 0.7}).State
	assert.Equal(t, 1, up.PositiveInteractions)
}

func TestOnTurnExactlyAtThreshold(t *testing.T) {
	n := &stubNarrator{text: "Mika laughs more easily around you."}
	e := NewEngine(DefaultPolicy(), n)
	s := newState(t)
	s.EvolutionPoints = 95
	s.ConversationsHad = 7
	s.PositiveInteractions = 7

	out := e.OnTurn(context.Background(), s, Input{Delta: 5, Compound: 0.5, Day: 3, CharacterName: "Mika"})
	require.NotNil(t, out.Event)
	assert.NoError(t, out.Warning)
	assert.Equal(t, 0, out.State.EvolutionPoints)
	assert.Equal(t, 150, out.State.NextThreshold)
	require.Len(t, out.State.PersonalityShifts, 1)
	assert.Equal(t, SignificanceModerate, out.Event.Significance)
	assert.Equal(t, 3, out.Event.Day)
	assert.Equal(t, "Mika laughs more easily around you.", out.Event.Change)
	assert.Equal(t, 1, n.calls)
	assert.Equal(t, SignificanceModerate, n.last.Significance)
}

func TestOnTurnAccumulatesToOneEvent(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := newState(t)
	events := 0
	for i := 0; i < 20; i++ {
		out := e.OnTurn(context.Background(), s, Input{Delta: 5, Compound: 0.5})
		s = out.State
		if out.Event != nil {
			events++
			assert.Equal(t, 20, s.ConversationsHad)
		}
	}
	assert.Equal(t, 1, events)
	assert.Equal(t, 0, s.EvolutionPoints)
	assert.Equal(t, 150, s.NextThreshold)
}

func TestPeriodicCheckBelowThresholdEmitsNothing(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := newState(t)
	s.ConversationsHad = 4
	out := e.OnTurn(context.Background(), s, Input{Delta: 1})
	assert.Equal(t, 5, out.State.ConversationsHad)
	assert.Nil(t, out.Event)
	assert.Equal(t, 1, out.State.EvolutionPoints)
}

func TestThresholdStrictlyIncreases(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := newState(t)
	last := s.NextThreshold
	fired := 0
	for i := 0; i < 200; i++ {
		out := e.OnTurn(context.Background(), s, Input{Delta: -15, Compound: -0.9})
		if out.Event != nil {
			fired++
			require.Greater(t, out.State.NextThreshold, last)
			last = out.State.NextThreshold
		}
		s = out.State
		require.GreaterOrEqual(t, s.EvolutionPoints, 0)
	}
	assert.Greater(t, fired, 3)
	assert.Len(t, s.PersonalityShifts, fired)
}

func TestClassify(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	assert.Equal(t, SignificanceMinor, e.Classify(49))
	assert.Equal(t, SignificanceModerate, e.Classify(50))
	assert.Equal(t, SignificanceModerate, e.Classify(100))
	assert.Equal(t, SignificanceMajor, e.Classify(101))
}

func TestMinorEventsNeedAThresholdBelowModerate(t *testing.T) {
	// 既定の閾値では最初の変化がすでに moderate 以上になる
	e := NewEngine(DefaultPolicy(), nil)
	assert.NotEqual(t, SignificanceMinor, e.Classify(DefaultPolicy().InitialThreshold))

	policy := DefaultPolicy()
	policy.InitialThreshold = 30
	require.NoError(t, policy.Validate())
	e = NewEngine(policy, nil)
	s, err := NewState(50, policy)
	require.NoError(t, err)
	s.EvolutionPoints = 25

	out := e.OnTurn(context.Background(), s, Input{Delta: 5, Compound: 0.3, CharacterName: "Mika"})
	require.NotNil(t, out.Event)
	assert.Equal(t, SignificanceMinor, out.Event.Significance)
	assert.Equal(t, 80, out.State.NextThreshold)
}

func TestOnTurnNarratorFailureFallsBack(t *testing.T) {
	n := &stubNarrator{err: errors.New("unavailable")}
	e := NewEngine(DefaultPolicy(), n)
	s := newState(t)
	s.EvolutionPoints = 110
	s.ConversationsHad = 12
	s.PositiveInteractions = 12

	out := e.OnTurn(context.Background(), s, Input{Delta: 3, Compound: 0.3, CharacterName: "Kenji"})
	require.NotNil(t, out.Event)
	assert.Error(t, out.Warning)
	assert.Equal(t, SignificanceMajor, out.Event.Significance)
	assert.Contains(t, out.Event.Change, "Kenji")
	assert.Equal(t, 150, out.State.NextThreshold)
}

func TestOnTurnDoesNotMutatePrevious(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := newState(t)
	s.EvolutionPoints = 99
	before := s.Clone()
	_ = e.OnTurn(context.Background(), s, Input{Delta: 5, Compound: 0.9})
	assert.Equal(t, before, s)
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
	p := DefaultPolicy()
	p.EnterBand = 0.5
	assert.Error(t, p.Validate())
	p = DefaultPolicy()
	p.ThresholdIncrement = 0
	assert.Error(t, p.Validate())
}
