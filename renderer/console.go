package renderer

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sat8bit/kizuna/bus"
	"github.com/sat8bit/kizuna/cha"
	"github.com/sat8bit/kizuna/message"
	"github.com/sat8bit/kizuna/relationship"
)

func NewConsoleRenderer() *ConsoleRenderer {
	return &ConsoleRenderer{out: os.Stdout, delay: 20 * time.Millisecond}
}

// NewConsoleRendererTo は、out に1文字ずつの演出なしで書き出す ConsoleRenderer を生成します。
func NewConsoleRendererTo(out io.Writer) *ConsoleRenderer {
	return &ConsoleRenderer{out: out}
}

type ConsoleRenderer struct {
	out   io.Writer
	delay time.Duration
	mu    sync.Mutex
}

func (c *ConsoleRenderer) Render(bus bus.Bus, wg *sync.WaitGroup) error {
	ch := bus.Subscribe()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for m := range ch {
			c.print(m)
		}
	}()
	return nil
}

func (c *ConsoleRenderer) print(m *message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m.Kind {
	case message.KindSystem:
		fmt.Fprintf(c.out, "[System] %s\n", m.Text)
	case message.KindPlayer, message.KindEnd:
	case message.KindTurn:
		if m.Turn == nil {
			return
		}
		emoji, _ := m.Turn.Level.Mood()
		fmt.Fprintf(c.out, "  %s  %s %d/100 %s\n", m.Turn.Feedback, emoji, m.Turn.Score, m.Turn.Level)
	case message.KindCha:
		fmt.Fprintf(c.out, "%s: ", m.From)
		for _, r := range m.Text {
			fmt.Fprint(c.out, string(r))
			if c.delay > 0 {
				time.Sleep(c.delay) // 1文字ずつ表示する
			}
		}
		fmt.Fprintln(c.out)
	case message.KindEvolution:
		if m.Event != nil {
			fmt.Fprintf(c.out, "  ✨ [%s] %s (day %d)\n", m.Event.Significance, m.Event.Change, m.Event.Day)
		}
	case message.KindWarning, message.KindLog:
		fmt.Fprintf(c.out, "  [!] %s\n", m.Text)
	default:
		fmt.Fprintf(c.out, "%s\n", m.Text)
	}
}

// Finalize は、各キャラクターとの関係を1行ずつ表示します。
func (c *ConsoleRenderer) Finalize(chars []*cha.Cha) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range chars {
		s := ch.State()
		emoji, text := relationship.LevelOf(s.Score).Mood()
		fmt.Fprintf(c.out, "%s %s: %s, %s (%s)\n", emoji, ch.Persona.DisplayName, ch.Describe(), text, s.Evolution.CurrentArc)
	}
	return nil
}

var _ Renderer = (*ConsoleRenderer)(nil)
