package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
	"google.golang.org/genai"
)

// GeminiConfig は、Gemini クライアントの接続設定です。
// APIKey があれば Gemini API を、なければ Vertex AI を使います。
type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	cc := &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	}
	if cfg.APIKey != "" {
		cc = &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("llm.NewGemini: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

type Gemini struct {
	client *genai.Client
	model  string
}

func (g *Gemini) Reply(ctx context.Context, input GenerateInput) (string, error) {
	contents := make([]*genai.Content, 0, len(input.RecentMessages)+1)
	for _, msg := range input.RecentMessages {
		role := genai.RoleUser
		if msg.FromCha {
			role = genai.RoleModel // 自分の発話はモデルの役割として渡す
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Text}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: input.Utterance}},
	})

	var temp float32 = 0.8
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: 300, // 文字数ではなくトークン。返却後にruneで切る
		SystemInstruction: &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: replyInstructions(input)}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("llm.Gemini.Reply: %w", err)
	}
	txt := oneLine(extractText(resp))
	if txt == "" {
		return "", errors.New("llm.Gemini.Reply: empty response")
	}
	return trimRunes(txt, maxChars(input)), nil
}

// refreshSchema は、living.Refresh の JSON 形です。
var refreshSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"mood":            {Type: genai.TypeString},
		"why_this_mood":   {Type: genai.TypeString},
		"current_feeling": {Type: genai.TypeString},
		"concerns":        {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"wants_to_ask":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"mood", "why_this_mood", "current_feeling", "concerns", "wants_to_ask"},
}

func (g *Gemini) RefreshState(ctx context.Context, req living.RefreshRequest) (living.Refresh, error) {
	var temp float32 = 0.4
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temp,
		MaxOutputTokens:  400,
		ResponseMIMEType: "application/json",
		ResponseSchema:   refreshSchema,
		SystemInstruction: &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: refreshInstructions}},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(refreshPrompt(req)), cfg)
	if err != nil {
		return living.Refresh{}, fmt.Errorf("llm.Gemini.RefreshState: %w", err)
	}
	var out living.Refresh
	if err := decodeModelJSON(extractText(resp), &out); err != nil {
		return living.Refresh{}, fmt.Errorf("llm.Gemini.RefreshState: %w", err)
	}
	return out, nil
}

func (g *Gemini) WordEvent(ctx context.Context, req evolution.WordingRequest) (string, error) {
	var temp float32 = 0.7
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: 100,
		SystemInstruction: &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: wordingInstructions}},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(wordingPrompt(req)), cfg)
	if err != nil {
		return "", fmt.Errorf("llm.Gemini.WordEvent: %w", err)
	}
	txt := oneLine(extractText(resp))
	if txt == "" {
		return "", errors.New("llm.Gemini.WordEvent: empty response")
	}
	return txt, nil
}

func extractText(res *genai.GenerateContentResponse) string {
	if res == nil {
		return ""
	}
	for _, c := range res.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if p != nil && !p.Thought {
				sb.WriteString(p.Text)
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

var _ LLM = (*Gemini)(nil)
