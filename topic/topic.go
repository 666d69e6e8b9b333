package topic

import "strings"

// Topic は、会話のきっかけとなる外部の話題です。
// 出所（RSS など）に依存しない形式で、応答生成に添えられます。
type Topic struct {
	Title     string
	Summary   string
	SourceURL string
}

// Hook は、応答生成に渡す1行の説明です。
func (t *Topic) Hook() string {
	title := strings.TrimSpace(t.Title)
	summary := strings.TrimSpace(t.Summary)
	switch {
	case title == "":
		return summary
	case summary == "":
		return title
	default:
		return title + ": " + summary
	}
}
