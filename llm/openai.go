package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
)

var refreshJSONSchema = GenerateSchema[living.Refresh]()

// OpenAI は、Responses API を使う LLM の実装です。
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("llm.NewOpenAI: api key is empty")
	}
	if model == "" {
		return nil, errors.New("llm.NewOpenAI: model is empty")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{client: &client, model: model}, nil
}

func (o *OpenAI) Reply(ctx context.Context, input GenerateInput) (string, error) {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(input.RecentMessages)+1)
	for _, msg := range input.RecentMessages {
		role := responses.EasyInputMessageRoleUser
		if msg.FromCha {
			role = responses.EasyInputMessageRoleAssistant
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(msg.Text, role))
	}
	items = append(items, responses.ResponseInputItemParamOfMessage(input.Utterance, responses.EasyInputMessageRoleUser))

	resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(300),
		Instructions:    openai.String(replyInstructions(input)),
		Input:           responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	})
	if err != nil {
		return "", fmt.Errorf("llm.OpenAI.Reply: %w", err)
	}
	txt := oneLine(resp.OutputText())
	if txt == "" {
		return "", errors.New("llm.OpenAI.Reply: empty response")
	}
	return trimRunes(txt, maxChars(input)), nil
}

func (o *OpenAI) RefreshState(ctx context.Context, req living.RefreshRequest) (living.Refresh, error) {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "LivingState",
			Schema:      refreshJSONSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Character inner state JSON"),
			Type:        "json_schema",
		},
	}
	resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(600),
		Instructions:    openai.String(refreshInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(refreshPrompt(req), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{Format: format},
	})
	if err != nil {
		return living.Refresh{}, fmt.Errorf("llm.OpenAI.RefreshState: %w", err)
	}
	var out living.Refresh
	if err := decodeModelJSON(resp.OutputText(), &out); err != nil {
		return living.Refresh{}, fmt.Errorf("llm.OpenAI.RefreshState: %w", err)
	}
	return out, nil
}

func (o *OpenAI) WordEvent(ctx context.Context, req evolution.WordingRequest) (string, error) {
	resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(120),
		Instructions:    openai.String(wordingInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(wordingPrompt(req), responses.EasyInputMessageRoleUser),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm.OpenAI.WordEvent: %w", err)
	}
	txt := oneLine(resp.OutputText())
	if txt == "" {
		return "", errors.New("llm.OpenAI.WordEvent: empty response")
	}
	return txt, nil
}

var _ LLM = (*OpenAI)(nil)
