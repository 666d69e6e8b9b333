package cha

import (
	"fmt"
	"sync"
	"time"

	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
	"github.com/sat8bit/kizuna/persona"
	"github.com/sat8bit/kizuna/relationship"
	"github.com/sat8bit/kizuna/turn"
)

// LogCapacity は、会話ログに保持する最大件数です。
const LogCapacity = 20

// State は、キャラクターの可変状態の三つ組です。
type State struct {
	Score     relationship.Score
	Living    living.State
	Evolution evolution.State
}

// Clone は、リストを共有しない複製を返します。
func (s State) Clone() State {
	return State{
		Score:     s.Score,
		Living:    s.Living.Clone(),
		Evolution: s.Evolution.Clone(),
	}
}

// Validate は、三つ組のすべての値域を検証します。
func (s State) Validate() error {
	if !s.Score.Valid() {
		return fmt.Errorf("relationship score %d out of range [0,100]", s.Score)
	}
	if err := s.Living.Validate(); err != nil {
		return err
	}
	return s.Evolution.Validate()
}

// Line は、会話ログの1行です。
type Line struct {
	Speaker string
	Text    string
	At      time.Time
}

// Cha は、1人のキャラクターです。
// 不変のプロフィールへの参照と、ターンごとに更新される状態を持ちます。
// 状態の更新はターンを保持している書き手だけが行い、読み手には常に完了したターンの状態が見えます。
type Cha struct {
	ChaId     string
	Persona   *persona.Persona
	CreatedAt time.Time

	turn *turn.MutexManager

	mu    sync.RWMutex
	state State
	log   []Line
}

// New は、プロフィールの初期値から Cha を生成します。
func New(chaId string, p *persona.Persona, policy evolution.Policy, now time.Time) (*Cha, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("cha.New: %w", err)
	}
	lv, err := living.NewState(living.Seed{Openness: p.BaselineOpenness, Trust: p.BaselineTrust, Now: now})
	if err != nil {
		return nil, fmt.Errorf("cha.New: %w", err)
	}
	ev, err := evolution.NewState(p.BaselineScore, policy)
	if err != nil {
		return nil, fmt.Errorf("cha.New: %w", err)
	}
	return &Cha{
		ChaId:     chaId,
		Persona:   p,
		CreatedAt: living.Stamp(now),
		turn:      turn.NewMutexManager(),
		state: State{
			Score:     relationship.Clamp(p.BaselineScore),
			Living:    lv,
			Evolution: ev,
		},
		log: make([]Line, 0, LogCapacity),
	}, nil
}

// Turn は、このキャラクターの書き込み権を返します。
func (c *Cha) Turn() turn.Manager {
	return c.turn
}

// State は、最後に完了したターンの状態の複製を返します。
func (c *Cha) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Commit は、1ターン分の更新をまとめて反映します。
// 途中の状態が他から見えることはありません。ターンを保持した状態で呼びます。
func (c *Cha) Commit(next State, lines ...Line) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("cha %s: refusing to commit invalid state: %w", c.ChaId, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = next.Clone()
	c.log = append(c.log, lines...)
	if over := len(c.log) - LogCapacity; over > 0 {
		c.log = append(make([]Line, 0, LogCapacity), c.log[over:]...)
	}
	return nil
}

// Restore は、保存された状態で置き換えます。ログは空になります。
func (c *Cha) Restore(s State, createdAt time.Time) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("cha %s: invalid restored state: %w", c.ChaId, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s.Clone()
	c.log = c.log[:0]
	if !createdAt.IsZero() {
		c.CreatedAt = living.Stamp(createdAt)
	}
	return nil
}

// Recent は、直近 n 件の会話ログを古い順に返します。
func (c *Cha) Recent(n int) []Line {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lines := c.log
	if n >= 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return append([]Line(nil), lines...)
}

// Day は、キャラクターを選んだ日を1日目とした、now の日数です。
func (c *Cha) Day(now time.Time) int {
	if now.Before(c.CreatedAt) {
		return 1
	}
	return int(now.Sub(c.CreatedAt)/(24*time.Hour)) + 1
}

// Level は、現在の関係の段階を返します。
func (c *Cha) Level() relationship.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return relationship.LevelOf(c.state.Score)
}

// Describe は、"Close Friend (72/100)" のような関係の説明を返します。
func (c *Cha) Describe() string {
	s := c.State()
	return fmt.Sprintf("%s (%d/100)", titleLevel(relationship.LevelOf(s.Score)), s.Score)
}
