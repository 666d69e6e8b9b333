package renderer

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/sat8bit/kizuna/bus"
	"github.com/sat8bit/kizuna/cha"
	"github.com/sat8bit/kizuna/message"
	"github.com/sat8bit/kizuna/topic"
)

const markdownTemplate = `+++
title = {{ .Title }}
date = {{ .Date }}
tags = {{ .Tags }}
+++

{{ .Body }}
`

// MarkdownRenderer は、セッションの会話を日誌として Markdown ファイルに書き出します。
type MarkdownRenderer struct {
	outputDir string
	topics    []*topic.Topic
	now       func() time.Time

	mu       sync.Mutex
	filePath string
}

func NewMarkdownRenderer(outputDir string, topics []*topic.Topic) *MarkdownRenderer {
	return &MarkdownRenderer{outputDir: outputDir, topics: topics, now: time.Now}
}

// FilePath は、書き出したファイルのパスです。まだ書き出していなければ空です。
func (r *MarkdownRenderer) FilePath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filePath
}

func (r *MarkdownRenderer) Render(bus bus.Bus, wg *sync.WaitGroup) error {
	messageCh := bus.Subscribe()

	wg.Add(1)
	go func() {
		defer wg.Done()
		var inbox []*message.Message
		for msg := range messageCh {
			inbox = append(inbox, msg)
		}

		turns := 0
		for _, msg := range inbox {
			if msg.Kind == message.KindTurn {
				turns++
			}
		}
		if turns == 0 {
			slog.Info("no turns were played, skipping journal")
			return
		}
		if err := r.render(inbox); err != nil {
			slog.Error("failed to render markdown", "error", err)
		}
	}()
	return nil
}

func (r *MarkdownRenderer) render(inbox []*message.Message) error {
	now := r.now()

	title := "Kizuna Journal"
	if len(r.topics) > 0 {
		title = r.topics[0].Title
	}

	names := make(map[string]bool)
	var log strings.Builder
	for _, msg := range inbox {
		switch msg.Kind {
		case message.KindCha:
			names[msg.From] = true
			fmt.Fprintf(&log, "**%s**: %s\n\n", msg.From, msg.Text)
		case message.KindPlayer:
			fmt.Fprintf(&log, "**You**: %s\n\n", msg.Text)
		case message.KindTurn:
			if msg.Turn != nil {
				fmt.Fprintf(&log, "> %s, now %d/100\n\n", msg.Turn.Feedback, msg.Turn.Score)
			}
		case message.KindEvolution:
			if msg.Event != nil {
				fmt.Fprintf(&log, "> ✨ **%s change** (day %d): %s\n\n", msg.Event.Significance, msg.Event.Day, msg.Event.Change)
			}
		case message.KindSystem:
			fmt.Fprintf(&log, "> %s\n\n", msg.Text)
		}
	}

	participants := make([]string, 0, len(names))
	for n := range names {
		participants = append(participants, n)
	}
	sort.Strings(participants)

	var body strings.Builder
	body.WriteString("## Conversation\n\n")
	body.WriteString(log.String())
	if len(r.topics) > 0 {
		body.WriteString("---\n\n## In the news\n\n")
		for _, t := range r.topics {
			fmt.Fprintf(&body, "- [%s](%s)\n", t.Title, t.SourceURL)
		}
		body.WriteString("\n")
	}

	tags := make([]string, 0, len(participants))
	for _, p := range participants {
		tags = append(tags, fmt.Sprintf("%q", p))
	}

	tmpl, err := template.New("markdown").Parse(markdownTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse markdown template: %w", err)
	}
	data := struct {
		Date  string
		Title string
		Tags  string
		Body  string
	}{
		Date:  fmt.Sprintf("%q", now.Format(time.RFC3339)),
		Title: fmt.Sprintf("%q", title),
		Tags:  fmt.Sprintf("[%s]", strings.Join(tags, ", ")),
		Body:  body.String(),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path, err := createUnique(r.outputDir, now.Format("20060102-150405"), ".md", buf.Bytes())
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.filePath = path
	r.mu.Unlock()
	slog.Info("markdown journal written", "path", path)
	return nil
}

// createUnique は、同名のファイルがあれば -1, -2 と番号を付けて新しく作ります。
func createUnique(dir, base, ext string, data []byte) (string, error) {
	for i := 0; i < 100; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create markdown file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write markdown file: %w", err)
		}
		return path, f.Close()
	}
	return "", fmt.Errorf("too many journal files named %s in %s", base, dir)
}

// Finalize は、キャラクターごとの最終的な関係と人格の変化を日誌の末尾に追記します。
func (r *MarkdownRenderer) Finalize(chars []*cha.Cha) error {
	path := r.FilePath()
	if path == "" {
		slog.Info("markdown journal not written, skipping epilogue")
		return nil
	}

	sorted := append([]*cha.Cha(nil), chars...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Persona.DisplayName < sorted[j].Persona.DisplayName
	})

	var epilogue strings.Builder
	epilogue.WriteString("\n---\n\n## Where things stand\n\n")
	for _, c := range sorted {
		s := c.State()
		fmt.Fprintf(&epilogue, "### %s\n", c.Persona.DisplayName)
		fmt.Fprintf(&epilogue, "- **Relationship:** %s, arc `%s`\n", c.Describe(), s.Evolution.CurrentArc)
		fmt.Fprintf(&epilogue, "- **Mood:** %s (openness %.2f, trust %.2f)\n", s.Living.Mood, s.Living.Openness, s.Living.Trust)
		if len(s.Evolution.PersonalityShifts) == 0 {
			epilogue.WriteString("- (no personality shifts yet)\n")
		}
		for _, e := range s.Evolution.PersonalityShifts {
			fmt.Fprintf(&epilogue, "- Day %d, %s: %s\n", e.Day, e.Significance, e.Change)
		}
		epilogue.WriteString("\n")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open markdown file for appending: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(epilogue.String()); err != nil {
		return fmt.Errorf("failed to append epilogue to markdown file: %w", err)
	}
	return nil
}

var _ Renderer = (*MarkdownRenderer)(nil)
