package fetcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sat8bit/kizuna/topic"
	"golang.org/x/sync/errgroup"
)

// MultiFetcher は、複数の Fetcher から並行して取得し、タイトルで重複を除いてまとめます。
// 失敗したソースは警告を出して読み飛ばします。結果は ttl の間キャッシュされます。
type MultiFetcher struct {
	fetchers []topic.Fetcher
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	cached    []*topic.Topic
	fetchedAt time.Time
}

// NewMultiFetcher は MultiFetcher を生成します。ttl が0の場合はキャッシュしません。
func NewMultiFetcher(ttl time.Duration, fetchers ...topic.Fetcher) *MultiFetcher {
	return &MultiFetcher{fetchers: fetchers, ttl: ttl, now: time.Now}
}

// Fetch は、すべてのソースの話題をソースの順に返します。
func (m *MultiFetcher) Fetch(ctx context.Context) ([]*topic.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ttl > 0 && !m.fetchedAt.IsZero() && m.now().Sub(m.fetchedAt) < m.ttl {
		return append([]*topic.Topic(nil), m.cached...), nil
	}

	results := make([][]*topic.Topic, len(m.fetchers))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range m.fetchers {
		g.Go(func() error {
			topics, err := f.Fetch(gctx)
			if err != nil {
				slog.WarnContext(ctx, "topic source failed", "index", i, "error", err)
				return nil
			}
			results[i] = topics
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var merged []*topic.Topic
	for _, topics := range results {
		for _, t := range topics {
			if t == nil || seen[t.Title] {
				continue
			}
			seen[t.Title] = true
			merged = append(merged, t)
		}
	}

	m.cached = merged
	m.fetchedAt = m.now()
	return append([]*topic.Topic(nil), merged...), nil
}

var _ topic.Fetcher = (*MultiFetcher)(nil)
