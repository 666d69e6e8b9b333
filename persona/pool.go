package persona

import (
	"fmt"
	"sort"

	"github.com/sat8bit/kizuna/configs"
	"gopkg.in/yaml.v3"
)

// NewPool は、埋め込まれた personas.yaml からプールを生成します。
func NewPool() (*Pool, error) {
	return ParsePool(configs.Personas)
}

// ParsePool は、YAML からプールを生成し、すべてのペルソナを検証します。
func ParsePool(data []byte) (*Pool, error) {
	var p Pool
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal personas: %w", err)
	}
	seen := make(map[string]struct{}, len(p.Personas))
	for _, persona := range p.Personas {
		if err := persona.Validate(); err != nil {
			return nil, fmt.Errorf("invalid persona: %w", err)
		}
		if _, dup := seen[persona.PersonaId]; dup {
			return nil, fmt.Errorf("duplicate personaId '%s'", persona.PersonaId)
		}
		seen[persona.PersonaId] = struct{}{}
	}
	return &p, nil
}

type Pool struct {
	// Personas は、読み込まれた Persona のスライスです。
	Personas []*Persona `yaml:"personas"`
}

func (p *Pool) GetAll() []*Persona {
	if p == nil {
		return nil
	}
	return p.Personas
}

func (p *Pool) GetByPersonaId(personaId string) (*Persona, error) {
	if p == nil {
		return nil, fmt.Errorf("persona with id '%s' not found", personaId)
	}
	for _, persona := range p.Personas {
		if persona.PersonaId == personaId {
			return persona, nil
		}
	}
	return nil, fmt.Errorf("persona with id '%s' not found", personaId)
}

// Ids は、プール内の personaId を昇順で返します。
func (p *Pool) Ids() []string {
	ids := make([]string, 0, len(p.GetAll()))
	for _, persona := range p.GetAll() {
		ids = append(ids, persona.PersonaId)
	}
	sort.Strings(ids)
	return ids
}
