package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
)

// scripted は、決めた回数だけ失敗してから成功する LLM です。
type scripted struct {
	mu       sync.Mutex
	failures int
	calls    int
	block    bool
}

var errUnavailable = errors.New("503 service unavailable")

func (s *scripted) attempt(ctx context.Context) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errUnavailable
	}
	return nil
}

func (s *scripted) Reply(ctx context.Context, input GenerateInput) (string, error) {
	if err := s.attempt(ctx); err != nil {
		return "", err
	}
	return "hey " + input.Utterance, nil
}

func (s *scripted) RefreshState(ctx context.Context, req living.RefreshRequest) (living.Refresh, error) {
	if err := s.attempt(ctx); err != nil {
		return living.Refresh{}, err
	}
	return living.Refresh{Mood: "calm"}, nil
}

func (s *scripted) WordEvent(ctx context.Context, req evolution.WordingRequest) (string, error) {
	if err := s.attempt(ctx); err != nil {
		return "", err
	}
	return "opens up a little", nil
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
