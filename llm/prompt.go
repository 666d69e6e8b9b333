package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/living"
)

// DefaultMaxChars は、プロフィールに指定がないときの返事の最大文字数です。
const DefaultMaxChars = 240

// PlayerName は、プロンプトの中でプレイヤーを指す名前です。
const PlayerName = "the player"

func replyInstructions(in GenerateInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %q, texting with %s.\nAct strictly as this character.\n\n", in.Profile.Name, PlayerName)

	fmt.Fprintf(&sb, "WHO YOU ARE:\n%s\n\n", in.Profile.Personality)
	if in.Profile.RelationshipHistory != "" {
		fmt.Fprintf(&sb, "YOUR HISTORY TOGETHER:\n%s\n\n", in.Profile.RelationshipHistory)
	}
	if len(in.Profile.MemoryThemes) > 0 {
		fmt.Fprintf(&sb, "Memories you share: %s\n", strings.Join(in.Profile.MemoryThemes, ", "))
	}
	if in.Profile.CommunicationStyle != "" {
		fmt.Fprintf(&sb, "How you text: %s\n", in.Profile.CommunicationStyle)
	}
	if len(in.Catchphrases) > 0 {
		fmt.Fprintf(&sb, "Catchphrases (use occasionally, not every turn): %s\n", strings.Join(in.Catchphrases, ", "))
	}

	fmt.Fprintf(&sb, "\nRIGHT NOW:\nRelationship: %s (%d/100)\n", in.Level, in.Score)
	lv := in.Living
	fmt.Fprintf(&sb, "Mood: %s (intensity %.2f)", lv.Mood, lv.MoodIntensity)
	if lv.WhyThisMood != "" {
		fmt.Fprintf(&sb, " because %s", lv.WhyThisMood)
	}
	sb.WriteString("\n")
	if lv.CurrentFeeling != "" {
		fmt.Fprintf(&sb, "Feeling: %s\n", lv.CurrentFeeling)
	}
	fmt.Fprintf(&sb, "Openness %.2f, trust %.2f\n", lv.Openness, lv.Trust)
	if len(lv.Concerns) > 0 {
		fmt.Fprintf(&sb, "On your mind: %s\n", strings.Join(lv.Concerns, "; "))
	}
	if len(lv.WantsToAsk) > 0 {
		fmt.Fprintf(&sb, "You want to ask about: %s\n", strings.Join(lv.WantsToAsk, "; "))
	}

	ev := in.Evolution
	fmt.Fprintf(&sb, "Lately the relationship is %s (%d talks, %d good, %d bad).\n", ev.Arc, ev.ConversationsHad, ev.Positive, ev.Negative)
	for _, e := range ev.RecentShifts {
		fmt.Fprintf(&sb, "- Day %d, you changed: %s\n", e.Day, e.Change)
	}

	if len(in.Topics) > 0 {
		sb.WriteString("\nThings in the news you could bring up if it fits:\n")
		for _, t := range in.Topics {
			fmt.Fprintf(&sb, "- %s\n", t.Hook())
		}
	}

	fmt.Fprintf(&sb, `
STRICT OUTPUT RULES:
- Reply in the language the player uses.
- Output the message TEXT ONLY. No names, labels or stage directions.
- Exactly ONE message, about %d characters or fewer.
- Don't invent shared events that are not listed above.`, maxChars(in))
	return sb.String()
}

func maxChars(in GenerateInput) int {
	if in.MaxChars > 0 {
		return in.MaxChars
	}
	return DefaultMaxChars
}

const refreshInstructions = `You maintain the inner state of a character in a texting game.
Given the character, how the last message landed, and the numeric state change,
describe the character's mood now. Answer with JSON only:
mood (one or two words), why_this_mood (one sentence), current_feeling (one sentence),
concerns (at most 5 short items), wants_to_ask (at most 5 short questions).`

func refreshPrompt(req living.RefreshRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Character: %s\nPersonality: %s\n\n", req.CharacterName, req.Personality)
	fmt.Fprintf(&sb, "Previous mood: %s (%s)\n", req.Previous.Mood, req.Previous.WhyThisMood)
	fmt.Fprintf(&sb, "Previous feeling: %s\n", req.Previous.CurrentFeeling)
	fmt.Fprintf(&sb, "Sentiment of the last message: %.2f (-1 hostile .. +1 warm)\n", req.Compound)
	fmt.Fprintf(&sb, "Openness %.2f -> %.2f, trust %.2f -> %.2f\n", req.Previous.Openness, req.Next.Openness, req.Previous.Trust, req.Next.Trust)
	if len(req.Next.RecentTopics) > 0 {
		fmt.Fprintf(&sb, "Recent topics: %s\n", strings.Join(req.Next.RecentTopics, "; "))
	}
	if len(req.History) > 0 {
		sb.WriteString("\nRecent conversation:\n")
		for _, h := range req.History {
			fmt.Fprintf(&sb, "%s\n", h)
		}
	}
	fmt.Fprintf(&sb, "\nThe player just said: %q\n", req.Utterance)
	return sb.String()
}

const wordingInstructions = `You write one sentence describing how a character's personality shifted
because of how the player has been treating them. Write in the third person,
present tense, with no preamble. Keep it under 25 words.`

func wordingPrompt(req evolution.WordingRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Character: %s\nPersonality: %s\n", req.CharacterName, req.Personality)
	fmt.Fprintf(&sb, "Significance: %s\nWhat happened: %s\n", req.Significance, req.Trigger)
	fmt.Fprintf(&sb, "Relationship arc: %s, score %d/100, %d positive and %d negative interactions\n", req.Arc, req.Score, req.Positive, req.Negative)
	if len(req.Previous) > 0 {
		sb.WriteString("Earlier shifts:\n")
		for _, e := range req.Previous {
			fmt.Fprintf(&sb, "- %s\n", e.Change)
		}
	}
	return sb.String()
}

func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimRunes(s string, n int) string {
	r := []rune(s)
	if n > 0 && len(r) > n {
		return string(r[:n])
	}
	return s
}
