package cha

import (
	"strings"

	"github.com/sat8bit/kizuna/relationship"
)

func titleLevel(l relationship.Level) string {
	words := strings.Split(string(l), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

var openings = map[relationship.Level][]string{
	relationship.LevelBestFriend:   {"Hey! So good to see you!", "What's up! How have you been?", "Hey you! I was just thinking about you!"},
	relationship.LevelCloseFriend:  {"Hey! How's it going?", "Hi! What's new with you?", "Hey there! How have you been?"},
	relationship.LevelFriend:       {"Hey! How are you?", "Hi! Good to see you.", "Hey, what's up?"},
	relationship.LevelAcquaintance: {"Hi! How's it going?", "Hey, how are you?", "Hi there!"},
	relationship.LevelStranger:     {"Hi, how are you?", "Hello!", "Hey!"},
}

var goodbyes = map[relationship.Level][]string{
	relationship.LevelBestFriend:  {"Talk to you soon! Miss you already!", "Alright, catch you later!", "See you soon! Take care!"},
	relationship.LevelCloseFriend: {"Talk soon! Take care!", "Alright, see you later!", "Catch you later!"},
	relationship.LevelFriend:      {"See you later!", "Talk to you soon!", "Bye!"},
}

var defaultGoodbyes = []string{"See you around!", "Bye!", "Take care!"}

// fallbacks は、応答生成に失敗したときの汎用の返事です。
var fallbacks = map[relationship.Level]string{
	relationship.LevelBestFriend:   "Sorry, my head is all over the place right now. Tell me more?",
	relationship.LevelCloseFriend:  "Hm, give me a sec to think about that.",
	relationship.LevelFriend:       "That's interesting... let me think about that.",
	relationship.LevelAcquaintance: "Oh, okay. Interesting.",
	relationship.LevelStranger:     "Okay.",
}

// Opening は、関係の段階に応じた最初のひとことです。同じキャラクターには同じ言葉を返します。
func (c *Cha) Opening() string {
	return pick(openings[c.Level()], c.ChaId)
}

// Goodbye は、関係の段階に応じた別れのひとことです。
func (c *Cha) Goodbye() string {
	lines, ok := goodbyes[c.Level()]
	if !ok {
		lines = defaultGoodbyes
	}
	return pick(lines, c.ChaId)
}

// FallbackReply は、応答を生成できなかったときの、関係の段階に応じた返事です。
func FallbackReply(l relationship.Level) string {
	if s, ok := fallbacks[l]; ok {
		return s
	}
	return fallbacks[relationship.LevelStranger]
}

func pick(lines []string, key string) string {
	if len(lines) == 0 {
		return ""
	}
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return lines[int(h%uint32(len(lines)))]
}
