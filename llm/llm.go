package llm

import (
	"context"

	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
	"github.com/sat8bit/kizuna/persona"
	"github.com/sat8bit/kizuna/relationship"
	"github.com/sat8bit/kizuna/topic"
)

// LLM は、エンジンが使うテキスト生成のすべてです。
// 応答の生成、LivingState の定性的な更新、変化イベントの文言の3つを提供します。
type LLM interface {
	// Reply は、キャラクターとしての1回分の返事を生成します。
	Reply(ctx context.Context, input GenerateInput) (string, error)
	living.Refresher
	evolution.Narrator
}

// Line は、会話履歴の1行です。
type Line struct {
	Speaker string
	Text    string
	FromCha bool
}

// GenerateInput は、応答生成のために組み立てられたスナップショットです。
type GenerateInput struct {
	ChaId          string
	Profile        persona.Excerpt
	Catchphrases   []string
	MaxChars       int
	Level          relationship.Level
	Score          relationship.Score
	Living         living.State
	Evolution      evolution.Summary
	RecentMessages []Line // 直近のメッセージ（最大10件）
	Utterance      string
	Topics         []*topic.Topic
}
