// Package checkpoint は、全キャラクターの状態を一貫した時点で保存・復元します。
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sat8bit/kizuna/cha"
	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
	"github.com/sat8bit/kizuna/relationship"
)

// SchemaVersion は、Snapshot の形式の版です。
const SchemaVersion = 1

// ErrNotFound は、指定したスロットにチェックポイントがないことを表します。
var ErrNotFound = errors.New("checkpoint not found")

// Snapshot は、1キャラクター分の完全な状態です。
type Snapshot struct {
	CharacterID       string             `json:"characterId" yaml:"characterId" bson:"characterId"`
	SchemaVersion     int                `json:"schemaVersion" yaml:"schemaVersion" bson:"schemaVersion"`
	CreatedAt         time.Time          `json:"createdAt" yaml:"createdAt" bson:"createdAt"`
	RelationshipScore relationship.Score `json:"relationshipScore" yaml:"relationshipScore" bson:"relationshipScore"`
	LivingState       living.State       `json:"livingState" yaml:"livingState" bson:"livingState"`
	EvolutionState    evolution.State    `json:"evolutionState" yaml:"evolutionState" bson:"evolutionState"`
}

// FromCha は、キャラクターの最後に完了したターンの状態を Snapshot にします。
// 時刻は UTC のミリ秒に揃えるので、どの保存先でも同じ値に戻ります。
func FromCha(c *cha.Cha) Snapshot {
	s := c.State()
	snap := Snapshot{
		CharacterID:       c.ChaId,
		SchemaVersion:     SchemaVersion,
		CreatedAt:         c.CreatedAt,
		RelationshipScore: s.Score,
		LivingState:       s.Living,
		EvolutionState:    s.Evolution,
	}
	snap.normalize()
	return snap
}

// State は、Snapshot を cha.State に戻します。
func (s Snapshot) State() cha.State {
	return cha.State{
		Score:     s.RelationshipScore,
		Living:    s.LivingState.Clone(),
		Evolution: s.EvolutionState.Clone(),
	}
}

// Validate は、形式の版と各状態の値域を検証します。
func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.CharacterID) == "" {
		return errors.New("snapshot: characterId is required")
	}
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("snapshot %s: unsupported schema version %d", s.CharacterID, s.SchemaVersion)
	}
	if err := s.State().Validate(); err != nil {
		return fmt.Errorf("snapshot %s: %w", s.CharacterID, err)
	}
	return nil
}

func (s *Snapshot) normalize() {
	s.CreatedAt = normalizeTime(s.CreatedAt)
	s.LivingState.LastUpdated = normalizeTime(s.LivingState.LastUpdated)
	s.LivingState.Normalize()
	s.EvolutionState.Normalize()
}

func normalizeTime(t time.Time) time.Time {
	return living.Stamp(t)
}

// Checkpoint は、名前付きのスロットに保存される、全キャラクターの Snapshot の集まりです。
type Checkpoint struct {
	ID        string     `json:"id" yaml:"id" bson:"id"`
	Slot      string     `json:"slot" yaml:"slot" bson:"_id"`
	SavedAt   time.Time  `json:"savedAt" yaml:"savedAt" bson:"savedAt"`
	Snapshots []Snapshot `json:"snapshots" yaml:"snapshots" bson:"snapshots"`
}

// Find は、キャラクターの Snapshot を探します。
func (c Checkpoint) Find(characterID string) (Snapshot, bool) {
	for _, s := range c.Snapshots {
		if s.CharacterID == characterID {
			return s, true
		}
	}
	return Snapshot{}, false
}

// Validate は、スロット名とすべての Snapshot を検証します。
func (c Checkpoint) Validate() error {
	if !ValidSlot(c.Slot) {
		return fmt.Errorf("checkpoint: invalid slot name %q", c.Slot)
	}
	seen := make(map[string]bool, len(c.Snapshots))
	for _, s := range c.Snapshots {
		if seen[s.CharacterID] {
			return fmt.Errorf("checkpoint %s: duplicate character %s", c.Slot, s.CharacterID)
		}
		seen[s.CharacterID] = true
		if err := s.Validate(); err != nil {
			return fmt.Errorf("checkpoint %s: %w", c.Slot, err)
		}
	}
	return nil
}

// normalize は、デコード直後の値を保存前と同じ形に揃えます。
func (c *Checkpoint) normalize() {
	c.SavedAt = normalizeTime(c.SavedAt)
	if c.Snapshots == nil {
		c.Snapshots = []Snapshot{}
	}
	for i := range c.Snapshots {
		c.Snapshots[i].normalize()
	}
	sort.Slice(c.Snapshots, func(i, j int) bool {
		return c.Snapshots[i].CharacterID < c.Snapshots[j].CharacterID
	})
}

// Info は、一覧表示用のチェックポイントの概要です。
type Info struct {
	Slot       string
	ID         string
	SavedAt    time.Time
	Characters int
}

func (c Checkpoint) Info() Info {
	return Info{Slot: c.Slot, ID: c.ID, SavedAt: c.SavedAt, Characters: len(c.Snapshots)}
}

// Store は、チェックポイントの保存先です。
// Save は同じスロットを丸ごと置き換え、途中の状態を残しません。
// List は新しい順に返します。
type Store interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, slot string) (Checkpoint, error)
	List(ctx context.Context) ([]Info, error)
	Delete(ctx context.Context, slot string) error
}

// PersistenceError は、保存先の操作に失敗したことを表します。
// メモリ上の状態はそのまま正です。
type PersistenceError struct {
	Op   string
	Slot string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Op == "save" {
		return fmt.Sprintf("checkpoint %q not saved, state unchanged: %v", e.Slot, e.Err)
	}
	return fmt.Sprintf("checkpoint %s %q: %v", e.Op, e.Slot, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

var slotPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidSlot は、スロット名としてそのまま使える名前かどうかを返します。
func ValidSlot(slot string) bool {
	return slotPattern.MatchString(slot)
}

var unsafeRunes = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeName は、任意の名前をスロット名やファイル名に使える形にします。
func SanitizeName(name string) string {
	s := strings.Trim(unsafeRunes.ReplaceAllString(strings.TrimSpace(name), "_"), "_-")
	if s == "" {
		s = "save"
	}
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

func sortInfos(infos []Info) {
	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].SavedAt.Equal(infos[j].SavedAt) {
			return infos[i].SavedAt.After(infos[j].SavedAt)
		}
		return infos[i].Slot < infos[j].Slot
	})
}

// New は、新しい ID を振った Checkpoint を作ります。
func New(slot string, snapshots []Snapshot, now time.Time) Checkpoint {
	cp := Checkpoint{
		ID:        uuid.NewString(),
		Slot:      slot,
		SavedAt:   now,
		Snapshots: append([]Snapshot{}, snapshots...),
	}
	cp.normalize()
	return cp
}
