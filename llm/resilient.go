package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
)

const (
	DefaultTimeout         = 10 * time.Second
	DefaultRetries         = 2
	DefaultInitialInterval = 500 * time.Millisecond
)

// ExternalServiceError は、リトライを使い切ってもテキスト生成が失敗したことを表します。
// ターンはこのエラーで失敗せず、警告として扱われます。
type ExternalServiceError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("llm %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Resilient は、試行ごとのタイムアウトと指数バックオフ付きのリトライで LLM を包みます。
type Resilient struct {
	next            LLM
	timeout         time.Duration
	retries         int
	initialInterval time.Duration
}

// NewResilient は Resilient を生成します。0以下の値は既定値になります。
func NewResilient(next LLM, timeout time.Duration, retries int) *Resilient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if retries < 0 {
		retries = DefaultRetries
	}
	return &Resilient{next: next, timeout: timeout, retries: retries, initialInterval: DefaultInitialInterval}
}

// WithInitialInterval は、最初のリトライまでの待ち時間を変えた複製を返します。
func (r *Resilient) WithInitialInterval(d time.Duration) *Resilient {
	cp := *r
	cp.initialInterval = d
	return &cp
}

func (r *Resilient) Reply(ctx context.Context, input GenerateInput) (string, error) {
	return call(ctx, r, "reply", func(ctx context.Context) (string, error) {
		return r.next.Reply(ctx, input)
	})
}

func (r *Resilient) RefreshState(ctx context.Context, req living.RefreshRequest) (living.Refresh, error) {
	return call(ctx, r, "refresh_state", func(ctx context.Context) (living.Refresh, error) {
		return r.next.RefreshState(ctx, req)
	})
}

func (r *Resilient) WordEvent(ctx context.Context, req evolution.WordingRequest) (string, error) {
	return call(ctx, r, "word_event", func(ctx context.Context) (string, error) {
		return r.next.WordEvent(ctx, req)
	})
}

func call[T any](ctx context.Context, r *Resilient, op string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval

	attempts := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		actx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		v, err := fn(actx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return v, backoff.Permanent(ctx.Err())
		}
		slog.DebugContext(ctx, "llm attempt failed", "op", op, "attempt", attempts, "error", err)
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(r.retries+1)))
	if err != nil {
		var zero T
		return zero, &ExternalServiceError{Op: op, Attempts: attempts, Err: err}
	}
	return v, nil
}

var _ LLM = (*Resilient)(nil)
