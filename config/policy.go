package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/sat8bit/kizuna/configs"
	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
	"github.com/sat8bit/kizuna/relationship"
	"gopkg.in/yaml.v3"
)

// Policy は、エンジンの数値の調整値をまとめたものです。
type Policy struct {
	Relationship relationship.Policy `yaml:"relationship"`
	Living       living.Policy       `yaml:"living"`
	Evolution    evolution.Policy    `yaml:"evolution"`
}

// DefaultPolicy は、組み込みの policy.yaml を読み込みます。
func DefaultPolicy() (Policy, error) {
	return ParsePolicy(configs.Policy)
}

// LoadPolicy は、path が空なら組み込みの既定値を、そうでなければそのファイルを読み込みます。
// ファイルに書かれていない項目は既定値のままです。
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy は、各パッケージの既定値の上に data を重ねて検証します。
func ParsePolicy(data []byte) (Policy, error) {
	p := Policy{
		Relationship: relationship.DefaultPolicy(),
		Living:       living.DefaultPolicy(),
		Evolution:    evolution.DefaultPolicy(),
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to unmarshal policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	var errs []error
	if err := p.Relationship.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("relationship: %w", err))
	}
	if err := p.Living.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("living: %w", err))
	}
	if err := p.Evolution.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("evolution: %w", err))
	}
	return errors.Join(errs...)
}
