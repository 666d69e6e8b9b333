package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sat8bit/kizuna/topic"
)

// SummaryMaxRunes は、話題の要約の最大文字数です。
const SummaryMaxRunes = 200

// DefaultTimeout は、1回のフィード取得にかける時間の上限です。
const DefaultTimeout = 10 * time.Second

// RSSFetcher は topic.Fetcher の RSS 実装です。
type RSSFetcher struct {
	url    string
	limit  int
	client *http.Client
}

// NewRSSFetcher は新しい RSSFetcher を生成します。
// limit は取得する記事の上限数で、0以下の場合は無制限です。
func NewRSSFetcher(url string, limit int) *RSSFetcher {
	return &RSSFetcher{
		url:    url,
		limit:  limit,
		client: &http.Client{Timeout: DefaultTimeout},
	}
}

// Fetch はフィードを取得し、新しい順に話題へ変換します。
func (f *RSSFetcher) Fetch(ctx context.Context) ([]*topic.Topic, error) {
	parser := gofeed.NewParser()
	parser.Client = f.client
	feed, err := parser.ParseURLWithContext(f.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed from %s: %w", f.url, err)
	}
	return toTopics(feed, f.limit), nil
}

func toTopics(feed *gofeed.Feed, limit int) []*topic.Topic {
	items := append([]*gofeed.Item(nil), feed.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		it, jt := items[i].PublishedParsed, items[j].PublishedParsed
		if it == nil || jt == nil {
			return false
		}
		return it.After(*jt)
	})

	topics := make([]*topic.Topic, 0, len(items))
	for _, item := range items {
		if limit > 0 && len(topics) >= limit {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		topics = append(topics, &topic.Topic{
			Title:     title,
			Summary:   truncateString(strings.TrimSpace(stripHTML(item.Description)), SummaryMaxRunes),
			SourceURL: item.Link,
		})
	}
	return topics
}

var htmlRegex = regexp.MustCompile("<[^>]*>")

func stripHTML(s string) string {
	return htmlRegex.ReplaceAllString(s, "")
}

func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return s
}

var _ topic.Fetcher = (*RSSFetcher)(nil)
