package evolution

import "errors"

// Policy は、進化ポイントと推移判定の係数です。
type Policy struct {
	InitialThreshold   int `yaml:"initialThreshold"`
	ThresholdIncrement int `yaml:"thresholdIncrement"`

	// |compound| がこれ以上の大きな感情の揺れには SwingBonus を加算する
	SwingAt    float64 `yaml:"swingAt"`
	SwingBonus int     `yaml:"swingBonus"`
	CheckEvery int     `yaml:"checkEvery"`

	ModerateFrom int `yaml:"moderateFrom"`
	MajorAbove   int `yaml:"majorAbove"`

	MinTurnsForArc int     `yaml:"minTurnsForArc"`
	TrendWindow    int     `yaml:"trendWindow"`
	EnterBand      float64 `yaml:"enterBand"`
	ExitBand       float64 `yaml:"exitBand"`
	RecoveryTurns  int     `yaml:"recoveryTurns"`
}

func DefaultPolicy() Policy {
	return Policy{
		InitialThreshold:   100,
		ThresholdIncrement: 50,
		SwingAt:            0.6,
		SwingBonus:         5,
		CheckEvery:         5,
		ModerateFrom:       50,
		MajorAbove:         100,
		MinTurnsForArc:     3,
		TrendWindow:        10,
		EnterBand:          2.0,
		ExitBand:           0.75,
		RecoveryTurns:      3,
	}
}

func (p Policy) Validate() error {
	if p.InitialThreshold <= 0 {
		return errors.New("evolution policy: initialThreshold must be > 0")
	}
	if p.ThresholdIncrement <= 0 {
		return errors.New("evolution policy: thresholdIncrement must be > 0")
	}
	if p.SwingAt < 0 || p.SwingAt > 1 || p.SwingBonus < 0 {
		return errors.New("evolution policy: invalid swing settings")
	}
	if p.CheckEvery <= 0 {
		return errors.New("evolution policy: checkEvery must be > 0")
	}
	if p.ModerateFrom < 0 || p.MajorAbove < p.ModerateFrom {
		return errors.New("evolution policy: significance bands must be ordered")
	}
	if p.MinTurnsForArc < 1 || p.TrendWindow < 1 || p.RecoveryTurns < 1 {
		return errors.New("evolution policy: arc windows must be >= 1")
	}
	if p.ExitBand < 0 || p.EnterBand <= p.ExitBand {
		return errors.New("evolution policy: enterBand must exceed exitBand")
	}
	return nil
}
