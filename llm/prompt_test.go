package llm

import (
	"testing"

	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
	"github.com/sat8bit/kizuna/persona"
	"github.com/sat8bit/kizuna/relationship"
	"github.com/sat8bit/kizuna/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyInstructions(t *testing.T) {
	in := GenerateInput{
		Profile: persona.Excerpt{
			Name:         "Mika",
			Personality:  "Warm and teasing.",
			MemoryThemes: []string{"karaoke nights"},
		},
		Catchphrases: []string{"no way!"},
		Level:        relationship.LevelCloseFriend,
		Score:        72,
		Living: living.State{
			Mood:          "cheerful",
			MoodIntensity: 0.4,
			Openness:      0.7,
			Trust:         0.6,
			Concerns:      []string{"work deadline"},
		},
		Evolution: evolution.Summary{
			Arc:              evolution.ArcGrowing,
			ConversationsHad: 12,
			RecentShifts:     []evolution.Event{{Day: 3, Change: "Mika jokes more freely."}},
		},
		Topics: []*topic.Topic{{Title: "Cherry blossoms", Summary: "Peak bloom this week"}},
	}

	got := replyInstructions(in)
	for _, want := range []string{
		`"Mika"`,
		"Warm and teasing.",
		"karaoke nights",
		"no way!",
		"close_friend (72/100)",
		"cheerful",
		"work deadline",
		"growing",
		"Day 3",
		"Cherry blossoms: Peak bloom this week",
		"240 characters",
	} {
		assert.Contains(t, got, want)
	}
}

func TestDecodeModelJSON(t *testing.T) {
	var out living.Refresh
	require.NoError(t, decodeModelJSON("```json\n{\"mood\":\"calm\",\"concerns\":[\"rent\"]}\n```", &out))
	assert.Equal(t, "calm", out.Mood)
	assert.Equal(t, []string{"rent"}, out.Concerns)

	assert.Error(t, decodeModelJSON("   ", &out))
	assert.Error(t, decodeModelJSON("no json here", &out))
}

func TestOneLineAndTrim(t *testing.T) {
	assert.Equal(t, "a b c", oneLine(" a\n b  c "))
	assert.Equal(t, "あい", trimRunes("あいう", 2))
	assert.Equal(t, "abc", trimRunes("abc", 0))
}

func TestGenerateSchema_Refresh(t *testing.T) {
	s := GenerateSchema[living.Refresh]()

	assert.Equal(t, "object", s["type"])
	assert.Equal(t, false, s["additionalProperties"])
	assert.Equal(t, []string{"concerns", "current_feeling", "mood", "wants_to_ask", "why_this_mood"}, s["required"])

	props, ok := s["properties"].(map[string]any)
	require.True(t, ok)
	concerns, ok := props["concerns"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "array", concerns["type"])
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "", extractText(nil))
}
