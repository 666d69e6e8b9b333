package persona

import (
	"errors"
	"fmt"
	"strings"
)

// Persona は、キャラクターの不変の背景プロフィール（Deep Profile）です。
// 一度だけ生成され、会話中に書き換えられることはありません。
// この情報は、LLMに渡すプロンプトのベースと、状態の初期値になります。
type Persona struct {
	PersonaId           string   `yaml:"personaId"`
	DisplayName         string   `yaml:"displayName"`
	Personality         string   `yaml:"personality"`
	RelationshipHistory string   `yaml:"relationshipHistory"`
	MemoryThemes        []string `yaml:"memoryThemes"`
	CommunicationStyle  string   `yaml:"communicationStyle"`
	Interests           []string `yaml:"interests"`
	Catchphrases        []string `yaml:"catchphrases"`
	DefaultMaxChars     int      `yaml:"defaultMaxChars"`

	// 関係性の初期値
	BaselineScore    int     `yaml:"baselineScore"`
	BaselineOpenness float64 `yaml:"baselineOpenness"`
	BaselineTrust    float64 `yaml:"baselineTrust"`
}

// Validate は、必須フィールドと値域を検証します。
func (p *Persona) Validate() error {
	if p == nil {
		return errors.New("persona is nil")
	}
	if strings.TrimSpace(p.PersonaId) == "" {
		return errors.New("personaId is required")
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("persona %s: displayName is required", p.PersonaId)
	}
	if p.BaselineScore < 0 || p.BaselineScore > 100 {
		return fmt.Errorf("persona %s: baselineScore %d out of range [0,100]", p.PersonaId, p.BaselineScore)
	}
	if p.BaselineOpenness < 0 || p.BaselineOpenness > 1 {
		return fmt.Errorf("persona %s: baselineOpenness %v out of range [0,1]", p.PersonaId, p.BaselineOpenness)
	}
	if p.BaselineTrust < 0 || p.BaselineTrust > 1 {
		return fmt.Errorf("persona %s: baselineTrust %v out of range [0,1]", p.PersonaId, p.BaselineTrust)
	}
	if p.DefaultMaxChars < 0 {
		return fmt.Errorf("persona %s: defaultMaxChars must be >= 0", p.PersonaId)
	}
	return nil
}

// Excerpt は、応答生成に渡すプロフィールの抜粋です。
type Excerpt struct {
	Name                string
	Personality         string
	RelationshipHistory string
	MemoryThemes        []string
	CommunicationStyle  string
}

// Excerpt は、プロフィールから応答生成用の抜粋を作ります。
func (p *Persona) Excerpt() Excerpt {
	return Excerpt{
		Name:                p.DisplayName,
		Personality:         p.Personality,
		RelationshipHistory: p.RelationshipHistory,
		MemoryThemes:        append([]string(nil), p.MemoryThemes...),
		CommunicationStyle:  p.CommunicationStyle,
	}
}
