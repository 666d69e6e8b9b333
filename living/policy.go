package living

import "errors"

// Policy は、数値更新の係数です。
type Policy struct {
	OpennessStep   float64 `yaml:"opennessStep"`
	TrustStep      float64 `yaml:"trustStep"`
	IntensityCarry float64 `yaml:"intensityCarry"`
	TopicCapacity  int     `yaml:"topicCapacity"`
	TopicMaxRunes  int     `yaml:"topicMaxRunes"`
}

func DefaultPolicy() Policy {
	return Policy{
		OpennessStep:   0.05,
		TrustStep:      0.03,
		IntensityCarry: 0.7,
		TopicCapacity:  TopicCapacity,
		TopicMaxRunes:  80,
	}
}

func (p Policy) Validate() error {
	if p.OpennessStep < 0 || p.OpennessStep > 1 || p.TrustStep < 0 || p.TrustStep > 1 {
		return errors.New("living policy: steps must be in [0,1]")
	}
	if p.IntensityCarry < 0 || p.IntensityCarry > 1 {
		return errors.New("living policy: intensityCarry must be in [0,1]")
	}
	if p.TopicCapacity < 1 || p.TopicCapacity > TopicCapacity {
		return errors.New("living policy: topicCapacity must be in [1,5]")
	}
	if p.TopicMaxRunes < 1 {
		return errors.New("living policy: topicMaxRunes must be >= 1")
	}
	return nil
}
