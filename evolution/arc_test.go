package evolution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, e *Engine, s State, deltas ...int) State {
	t.Helper()
	for _, d := range deltas {
		s = e.Accrue(s, d, 0)
		require.NoError(t, s.Validate())
	}
	return s
}

func TestArcStaysBeginningBeforeMinTurns(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := run(t, e, newState(t), 5, 5)
	assert.Equal(t, ArcBeginning, s.CurrentArc)

	s = run(t, e, s, 5)
	assert.Equal(t, ArcGrowing, s.CurrentArc)
}

func TestArcBeginningToStableAndDeclining(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := run(t, e, newState(t), 1, 0, -1)
	assert.Equal(t, ArcStable, s.CurrentArc)

	s = run(t, e, newState(t), -8, -8, -8)
	assert.Equal(t, ArcDeclining, s.CurrentArc)
}

func TestArcDeadZoneKeepsState(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	// 平均 1.0 は不感帯（0.75〜2.0）なので beginning のまま
	s := run(t, e, newState(t), 1, 1, 1)
	assert.Equal(t, ArcBeginning, s.CurrentArc)

	g := run(t, e, newState(t), 5, 5, 5)
	require.Equal(t, ArcGrowing, g.CurrentArc)
	// 平均が下がっても ExitBand を割るまでは growing
	g = run(t, e, g, 1, 1, 1)
	assert.Equal(t, ArcGrowing, g.CurrentArc)
}

func TestArcGrowingToStable(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := run(t, e, newState(t), 3, 3, 3)
	require.Equal(t, ArcGrowing, s.CurrentArc)
	s = run(t, e, s, -8, -3)
	assert.Equal(t, ArcStable, s.CurrentArc)
}

func TestArcRecoveryOnlyFromDeclining(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := run(t, e, newState(t), -8, -8, -8)
	require.Equal(t, ArcDeclining, s.CurrentArc)

	// 全体の平均が正になるまでは declining のまま
	s = run(t, e, s, 5, 5, 5, 5)
	assert.Equal(t, ArcDeclining, s.CurrentArc)
	s = run(t, e, s, 5)
	require.Equal(t, ArcRecovering, s.CurrentArc)
	assert.Equal(t, 1, s.RecoveryStreak)

	// 負の変化で連続数はリセットされる
	s = run(t, e, s, -1)
	assert.Equal(t, ArcRecovering, s.CurrentArc)
	assert.Equal(t, 0, s.RecoveryStreak)

	s = run(t, e, s, 1, 1)
	assert.Equal(t, ArcRecovering, s.CurrentArc)
	s = run(t, e, s, 1)
	assert.Contains(t, []Arc{ArcStable, ArcGrowing}, s.CurrentArc)
	assert.Equal(t, 0, s.RecoveryStreak)
}

func TestArcRecoveringRelapse(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := run(t, e, newState(t), -8, -8, -8, 5, 5, 5, 5, 5)
	require.Equal(t, ArcRecovering, s.CurrentArc)
	s = run(t, e, s, -15, -15, -15)
	assert.Equal(t, ArcDeclining, s.CurrentArc)
}

func TestArcNeverEntersRecoveringFromGrowthOrStable(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := newState(t)
	prev := s.CurrentArc
	for _, d := range []int{1, 0, 1, 5, 5, 5, -3, 1, 1, 0, 1, 3, 3, -1, 5} {
		s = e.Accrue(s, d, 0)
		if s.CurrentArc == ArcRecovering {
			require.Contains(t, []Arc{ArcDeclining, ArcRecovering}, prev)
		}
		prev = s.CurrentArc
	}
}

func TestTrendWindowIsBounded(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	s := newState(t)
	for i := 0; i < 25; i++ {
		s = e.Accrue(s, i, 0)
	}
	assert.Len(t, s.RecentDeltas, 10)
	assert.Equal(t, 15, s.RecentDeltas[0])
	assert.Equal(t, 24, s.RecentDeltas[9])
}
