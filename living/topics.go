package living

import "strings"

// TopicCapacity は、最近の話題を保持する最大数です。
const TopicCapacity = 5

// pushTopic は、話題を先頭に追加します。同じ話題は先頭に移動し、容量を超えた古いものは捨てます。
func pushTopic(topics []string, topic string, capacity int) []string {
	if capacity <= 0 || capacity > TopicCapacity {
		capacity = TopicCapacity
	}
	out := make([]string, 0, capacity)
	out = append(out, topic)
	for _, t := range topics {
		if len(out) == capacity {
			break
		}
		if strings.EqualFold(t, topic) {
			continue
		}
		out = append(out, t)
	}
	return out
}
