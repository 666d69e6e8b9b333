package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sat8bit/kizuna/bus"
	"github.com/sat8bit/kizuna/cha"
	"github.com/sat8bit/kizuna/checkpoint"
	"github.com/sat8bit/kizuna/conversation"
	"github.com/sat8bit/kizuna/message"
	"github.com/sat8bit/kizuna/turn"
)

// AutosaveSlot は、自動保存に使うスロット名です。
const AutosaveSlot = "autosave"

// Options は、Supervisor の動作設定です。
type Options struct {
	// AutosaveEvery は、自動保存するターンの間隔です。0なら自動保存しません。
	AutosaveEvery int
	// SaveRetries は、保存に失敗したときに追加で試す回数です。
	SaveRetries int
	// RetryInterval は、最初の再試行までの待ち時間です。
	RetryInterval time.Duration
	Bus           bus.Bus
	Now           func() time.Time
}

// Supervisor は、全キャラクターを見渡して、ターンの途中を含まないチェックポイントを取ります。
type Supervisor struct {
	chars []*cha.Cha
	store checkpoint.Store
	opts  Options

	mu        sync.Mutex
	turnCount int
}

// NewSupervisor は、新しい Supervisor を生成します。キャラクターは ID 順に扱います。
func NewSupervisor(store checkpoint.Store, chars []*cha.Cha, opts Options) *Supervisor {
	sorted := append([]*cha.Cha(nil), chars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChaId < sorted[j].ChaId })
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 200 * time.Millisecond
	}
	if opts.SaveRetries < 0 {
		opts.SaveRetries = 0
	}
	return &Supervisor{chars: sorted, store: store, opts: opts}
}

// Chars は、管理しているキャラクターを ID 順に返します。
func (s *Supervisor) Chars() []*cha.Cha {
	return append([]*cha.Cha(nil), s.chars...)
}

// Get は、ID でキャラクターを探します。
func (s *Supervisor) Get(chaId string) (*cha.Cha, bool) {
	for _, c := range s.chars {
		if c.ChaId == chaId {
			return c, true
		}
	}
	return nil, false
}

func (s *Supervisor) managers() []turn.Manager {
	ms := make([]turn.Manager, 0, len(s.chars))
	for _, c := range s.chars {
		ms = append(ms, c.Turn())
	}
	return ms
}

// Capture は、すべてのキャラクターのターンを ID 順に取得してから Snapshot を取ります。
// 進行中のターンがあれば、それが終わるまで待ちます。
func (s *Supervisor) Capture(ctx context.Context) ([]checkpoint.Snapshot, error) {
	release, err := turn.AcquireAll(ctx, s.managers()...)
	if err != nil {
		return nil, fmt.Errorf("supervisor: quiescing characters: %w", err)
	}
	defer release()

	snaps := make([]checkpoint.Snapshot, 0, len(s.chars))
	for _, c := range s.chars {
		snaps = append(snaps, checkpoint.FromCha(c))
	}
	return snaps, nil
}

// Checkpoint は、一貫した Snapshot を slot に保存します。
// 保存は一時的な失敗に備えて再試行します。失敗してもメモリ上の状態は変わりません。
func (s *Supervisor) Checkpoint(ctx context.Context, slot string) (checkpoint.Checkpoint, error) {
	if !checkpoint.ValidSlot(slot) {
		return checkpoint.Checkpoint{}, &checkpoint.PersistenceError{Op: "save", Slot: slot, Err: errors.New("invalid slot name")}
	}
	snaps, err := s.Capture(ctx)
	if err != nil {
		return checkpoint.Checkpoint{}, &checkpoint.PersistenceError{Op: "save", Slot: slot, Err: err}
	}
	cp := checkpoint.New(slot, snaps, s.opts.Now())

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInterval
	attempts := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := s.store.Save(ctx, cp)
		if err != nil {
			slog.WarnContext(ctx, "checkpoint save attempt failed", "slot", slot, "attempt", attempts, "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.opts.SaveRetries+1)))
	if err != nil {
		var pe *checkpoint.PersistenceError
		if !errors.As(err, &pe) {
			err = &checkpoint.PersistenceError{Op: "save", Slot: slot, Err: err}
		}
		return checkpoint.Checkpoint{}, err
	}

	slog.InfoContext(ctx, "checkpoint saved", "slot", slot, "id", cp.ID, "characters", len(cp.Snapshots))
	return cp, nil
}

// Restore は、slot のチェックポイントで全キャラクターの状態を置き換えます。
// すべての Snapshot を検証してから適用するので、一部だけが戻ることはありません。
// チェックポイントにないキャラクターはそのままです。
func (s *Supervisor) Restore(ctx context.Context, slot string) (checkpoint.Checkpoint, error) {
	cp, err := s.store.Load(ctx, slot)
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}

	type pending struct {
		c    *cha.Cha
		snap checkpoint.Snapshot
	}
	var apply []pending
	for _, c := range s.chars {
		snap, ok := cp.Find(c.ChaId)
		if !ok {
			slog.WarnContext(ctx, "checkpoint has no state for character, keeping current", "slot", slot, "cha", c.ChaId)
			continue
		}
		if err := snap.Validate(); err != nil {
			return checkpoint.Checkpoint{}, &checkpoint.PersistenceError{Op: "load", Slot: slot, Err: err}
		}
		apply = append(apply, pending{c: c, snap: snap})
	}
	for _, snap := range cp.Snapshots {
		if _, ok := s.Get(snap.CharacterID); !ok {
			slog.WarnContext(ctx, "checkpoint has unknown character, skipping", "slot", slot, "cha", snap.CharacterID)
		}
	}

	release, err := turn.AcquireAll(ctx, s.managers()...)
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("supervisor: quiescing characters: %w", err)
	}
	defer release()
	for _, p := range apply {
		if err := p.c.Restore(p.snap.State(), p.snap.CreatedAt); err != nil {
			// 検証済みなのでここには来ない。
			return checkpoint.Checkpoint{}, err
		}
	}
	slog.InfoContext(ctx, "checkpoint restored", "slot", slot, "characters", len(apply))
	return cp, nil
}

// TurnCommitted は、確定したターンを数え、AutosaveEvery ごとに自動保存します。
// 自動保存の失敗は警告として流し、会話は止めません。
func (s *Supervisor) TurnCommitted(ctx context.Context, c *cha.Cha, r *conversation.Result) {
	s.mu.Lock()
	s.turnCount++
	due := s.opts.AutosaveEvery > 0 && s.turnCount%s.opts.AutosaveEvery == 0
	s.mu.Unlock()

	if !due {
		return
	}
	if _, err := s.Checkpoint(ctx, AutosaveSlot); err != nil {
		slog.WarnContext(ctx, "autosave failed", "error", err)
		if s.opts.Bus != nil {
			_ = s.opts.Bus.Broadcast(&message.Message{
				Text: err.Error(),
				At:   s.opts.Now(),
				Kind: message.KindWarning,
			})
		}
	}
}

// GetCurrentTurn は、これまでに確定したターン数を返します。
func (s *Supervisor) GetCurrentTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

var (
	_ turn.TurnProvider     = (*Supervisor)(nil)
	_ conversation.Observer = (*Supervisor)(nil)
)
