package renderer

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sat8bit/kizuna/bus"
	"github.com/sat8bit/kizuna/cha"
	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/message"
	"github.com/sat8bit/kizuna/persona"
	"github.com/sat8bit/kizuna/relationship"
	"github.com/sat8bit/kizuna/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newCha(t *testing.T) *cha.Cha {
	t.Helper()
	p := &persona.Persona{PersonaId: "mika", DisplayName: "Mika", BaselineScore: 50, BaselineOpenness: 0.5, BaselineTrust: 0.5}
	c, err := cha.New("mika", p, evolution.DefaultPolicy(), epoch)
	require.NoError(t, err)
	return c
}

func session() []*message.Message {
	return []*message.Message{
		{Kind: message.KindSystem, Text: "Mika joined."},
		{Kind: message.KindPlayer, From: "You", Text: "I love this!"},
		{Kind: message.KindTurn, ChaId: "mika", Turn: &message.TurnMeta{Delta: 5, Score: 55, Level: relationship.LevelFriend, Feedback: "😊 Very positive (+5)"}},
		{Kind: message.KindCha, ChaId: "mika", From: "Mika", Text: "Me too!"},
		{Kind: message.KindEvolution, ChaId: "mika", Event: &evolution.Event{Day: 2, Change: "Opens up more easily.", Significance: evolution.SignificanceMinor}},
		{Kind: message.KindWarning, Text: "reply generation degraded"},
	}
}

func play(t *testing.T, r Renderer, msgs []*message.Message) {
	t.Helper()
	b := bus.NewMemoryBus()
	var wg sync.WaitGroup
	require.NoError(t, r.Render(b, &wg))
	for _, m := range msgs {
		require.NoError(t, b.Broadcast(m))
	}
	b.Close()
	wg.Wait()
}

func TestConsoleRenderer(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleRendererTo(&out)
	play(t, r, session())

	got := out.String()
	assert.Contains(t, got, "[System] Mika joined.")
	assert.NotContains(t, got, "I love this!")
	assert.Contains(t, got, "😊 Very positive (+5)")
	assert.Contains(t, got, "55/100 friend")
	assert.Contains(t, got, "Mika: Me too!\n")
	assert.Contains(t, got, "✨ [minor] Opens up more easily. (day 2)")
	assert.Contains(t, got, "[!] reply generation degraded")

	out.Reset()
	require.NoError(t, r.Finalize([]*cha.Cha{newCha(t)}))
	assert.Contains(t, out.String(), "Mika:")
	assert.Contains(t, out.String(), "Friend (50/100)")
	assert.Contains(t, out.String(), "(beginning)")
}

func TestMarkdownRenderer(t *testing.T) {
	dir := t.TempDir()
	topics := []*topic.Topic{{Title: "Cherry blossoms", SourceURL: "https://example.com/sakura"}}
	r := NewMarkdownRenderer(dir, topics)
	r.now = func() time.Time { return epoch }

	play(t, r, session())
	require.Equal(t, filepath.Join(dir, "20260301-090000.md"), r.FilePath())
	require.NoError(t, r.Finalize([]*cha.Cha{newCha(t)}))

	data, err := os.ReadFile(r.FilePath())
	require.NoError(t, err)
	got := string(data)
	assert.Contains(t, got, `title = "Cherry blossoms"`)
	assert.Contains(t, got, `tags = ["Mika"]`)
	assert.Contains(t, got, "**You**: I love this!")
	assert.Contains(t, got, "**Mika**: Me too!")
	assert.Contains(t, got, "**minor change** (day 2): Opens up more easily.")
	assert.Contains(t, got, "- [Cherry blossoms](https://example.com/sakura)")
	assert.Contains(t, got, "### Mika")
	assert.Contains(t, got, "(no personality shifts yet)")
}

func TestMarkdownRenderer_DoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	first := NewMarkdownRenderer(dir, nil)
	first.now = func() time.Time { return epoch }
	second := NewMarkdownRenderer(dir, nil)
	second.now = func() time.Time { return epoch }

	play(t, first, session())
	play(t, second, session())

	assert.Equal(t, filepath.Join(dir, "20260301-090000.md"), first.FilePath())
	assert.Equal(t, filepath.Join(dir, "20260301-090000-1.md"), second.FilePath())
}

func TestMarkdownRenderer_SkipsEmptySession(t *testing.T) {
	dir := t.TempDir()
	r := NewMarkdownRenderer(dir, nil)
	play(t, r, []*message.Message{{Kind: message.KindSystem, Text: "hello"}})

	assert.Empty(t, r.FilePath())
	require.NoError(t, r.Finalize(nil))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
