package evolution

// nextArc は、直近の変化量の推移から次の Arc を決めます。
// ±EnterBand と ExitBand の間は不感帯で、ノイズで状態が行き来しないようにしています。
func nextArc(s State, delta int, p Policy) (Arc, int) {
	trend := s.Trend()
	streak := s.RecoveryStreak

	switch s.CurrentArc {
	case ArcBeginning:
		if s.ConversationsHad < p.MinTurnsForArc {
			return ArcBeginning, 0
		}
		switch {
		case trend >= p.EnterBand:
			return ArcGrowing, 0
		case trend <= -p.EnterBand:
			return ArcDeclining, 0
		case trend >= -p.ExitBand && trend <= p.ExitBand:
			return ArcStable, 0
		}
		return ArcBeginning, 0

	case ArcStable:
		switch {
		case trend >= p.EnterBand:
			return ArcGrowing, 0
		case trend <= -p.EnterBand:
			return ArcDeclining, 0
		}
		return ArcStable, 0

	case ArcGrowing:
		switch {
		case trend <= -p.EnterBand:
			return ArcDeclining, 0
		case trend <= p.ExitBand:
			return ArcStable, 0
		}
		return ArcGrowing, 0

	case ArcDeclining:
		// recovering に入れるのは declining からだけ
		if trend > 0 {
			return ArcRecovering, nonNegative(delta)
		}
		return ArcDeclining, 0

	case ArcRecovering:
		if trend <= -p.EnterBand {
			return ArcDeclining, 0
		}
		if delta < 0 {
			return ArcRecovering, 0
		}
		streak++
		if streak >= p.RecoveryTurns {
			if trend >= p.EnterBand {
				return ArcGrowing, 0
			}
			return ArcStable, 0
		}
		return ArcRecovering, streak
	}
	return s.CurrentArc, streak
}

func nonNegative(delta int) int {
	if delta >= 0 {
		return 1
	}
	return 0
}
