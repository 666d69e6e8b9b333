package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	buspkg "github.com/sat8bit/kizuna/bus"
	"github.com/sat8bit/kizuna/checkpoint"
	"github.com/sat8bit/kizuna/conversation"
	"github.com/sat8bit/kizuna/message"
	"github.com/sat8bit/kizuna/persona"
	"github.com/sat8bit/kizuna/renderer"
	"github.com/sat8bit/kizuna/supervisor"
	"github.com/sat8bit/kizuna/topic"
	"github.com/spf13/cobra"
)

var (
	withIds     []string
	restoreSlot string
	exportDir   string
)

var rootCmd = &cobra.Command{
	Use:   "kizuna",
	Short: "kizuna - characters that remember how you treat them",
	Long: `kizuna keeps a relationship score, a living mood and a personality
ledger for each character, and updates them every time you talk.

Run "kizuna chat" to start talking.`,
	SilenceUsage: true,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk with one or more characters",
	Long: `Starts an interactive conversation.

Plain lines are sent to every character at once; "@id text" talks to one.
Commands:
  /save <slot>   save every character
  /load <slot>   restore every character
  /saves         list saved checkpoints
  /status        show relationships
  /quit          say goodbye and exit`,
	RunE: runChat,
}

var savesCmd = &cobra.Command{
	Use:   "saves",
	Short: "Manage saved checkpoints",
}

var savesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved checkpoints, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(a *app) error {
			return printSaves(cmd.Context(), cmd.OutOrStdout(), a.store)
		})
	},
}

var savesDeleteCmd = &cobra.Command{
	Use:   "delete [slot]",
	Short: "Delete a saved checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(a *app) error {
			if err := a.store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}

var savesExportCmd = &cobra.Command{
	Use:   "export [slot]",
	Short: "Export a saved checkpoint as a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(a *app) error {
			cp, err := a.store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(exportDir, 0o755); err != nil {
				return fmt.Errorf("failed to create export directory: %w", err)
			}
			path, err := checkpoint.NewYAMLStore(a.cfg.DataDir).Export(cp, exportDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", args[0], path)
			return nil
		})
	},
}

func init() {
	chatCmd.Flags().StringSliceVar(&withIds, "with", nil, "personaIds to talk with (default: all)")
	chatCmd.Flags().StringVar(&restoreSlot, "restore", "", "checkpoint slot to restore before starting")
	savesExportCmd.Flags().StringVar(&exportDir, "dir", "exports", "directory to write the export into")

	savesCmd.AddCommand(savesListCmd, savesDeleteCmd, savesExportCmd)
	rootCmd.AddCommand(chatCmd, savesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func withStore(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}()
	return fn(a)
}

func printSaves(ctx context.Context, out io.Writer, store checkpoint.Store) error {
	infos, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "no saves yet")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tSAVED AT\tCHARACTERS")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%d\n", info.Slot, info.SavedAt.Local().Format(time.DateTime), info.Characters)
	}
	return w.Flush()
}

func selectPersonas(pool *persona.Pool, ids []string) ([]*persona.Persona, error) {
	if len(ids) == 0 {
		return pool.GetAll(), nil
	}
	var out []*persona.Persona
	for _, id := range ids {
		p, err := pool.GetByPersonaId(strings.TrimSpace(id))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	bus := buspkg.NewMemoryBus()
	return withStore(ctx, func(a *app) error {
		if err := setupLogger(bus, a.cfg.LogLevel); err != nil {
			return err
		}

		pool, err := loadPersonas(a.cfg)
		if err != nil {
			return fmt.Errorf("failed to load persona pool: %w", err)
		}
		personas, err := selectPersonas(pool, withIds)
		if err != nil {
			return err
		}
		client, err := newLLM(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("failed to create llm client: %w", err)
		}

		topics := newFetcher(a.cfg)
		var headlines []*topic.Topic
		if topics != nil {
			if headlines, err = topics.Fetch(ctx); err != nil {
				slog.Warn("no headlines for this session", "error", err)
			}
		}

		s, err := a.newSession(personas, client, topics, bus)
		if err != nil {
			return err
		}
		if restoreSlot != "" {
			if _, err := s.sup.Restore(ctx, restoreSlot); err != nil {
				return err
			}
		}

		// --- レンダラーを初期化 ---
		var wg sync.WaitGroup
		renderers := []renderer.Renderer{
			renderer.NewConsoleRenderer(),
			renderer.NewMarkdownRenderer(a.cfg.JournalDir, headlines),
		}
		for _, r := range renderers {
			if err := r.Render(bus, &wg); err != nil {
				return fmt.Errorf("failed to initialize renderer: %w", err)
			}
		}

		names := make([]string, 0, len(s.chars))
		for _, c := range s.chars {
			names = append(names, fmt.Sprintf("%s (@%s)", c.Persona.DisplayName, c.ChaId))
		}
		_ = bus.Broadcast(&message.Message{
			Text: fmt.Sprintf("Talking with %s. Type /quit to leave.", strings.Join(names, ", ")),
			At:   time.Now(),
			Kind: message.KindSystem,
		})
		for _, c := range s.chars {
			if _, err := s.orch.Opening(ctx, c); err != nil {
				return err
			}
		}

		loopErr := s.loop(ctx, bufio.NewReader(cmd.InOrStdin()), out)

		// 中断されていても別れの挨拶と保存は済ませる
		endCtx := context.WithoutCancel(ctx)
		for _, c := range s.chars {
			if _, err := s.orch.Goodbye(endCtx, c); err != nil {
				slog.Warn("goodbye failed", "cha", c.ChaId, "error", err)
			}
			tone := s.orch.Summary(c)
			_ = bus.Broadcast(&message.Message{
				ChaId: c.ChaId,
				Text:  fmt.Sprintf("%s: conversation felt %s (%s, avg %.2f)", c.Persona.DisplayName, tone.Tone, tone.Trend, tone.Average),
				At:    time.Now(),
				Kind:  message.KindSystem,
			})
		}
		if _, err := s.sup.Checkpoint(endCtx, supervisor.AutosaveSlot); err != nil {
			slog.Warn("final autosave failed", "error", err)
		}

		_ = bus.Broadcast(&message.Message{Kind: message.KindEnd, At: time.Now()})
		bus.Close()
		wg.Wait()
		for _, r := range renderers {
			if err := r.Finalize(s.chars); err != nil {
				slog.Error("failed to finalize renderer", "error", err)
			}
		}
		if errors.Is(loopErr, context.Canceled) {
			fmt.Fprintln(out, "\nShutting down...")
			return nil
		}
		return loopErr
	})
}

// loop は、/quit か入力の終わりまで1行ずつ処理します。
func (s *session) loop(ctx context.Context, in *bufio.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := in.ReadString('\n')
			if line = strings.TrimSpace(line); line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		cmd, arg, isCmd := parseCommand(line)
		if !isCmd {
			if err := s.talk(ctx, line); err != nil {
				return err
			}
			continue
		}
		switch cmd {
		case "/quit":
			return nil
		case "/status":
			fmt.Fprintf(out, "turns so far: %d\n", s.turns.GetCurrentTurn())
			for _, c := range s.chars {
				fmt.Fprintf(out, "%s: %s, feeling %s\n", c.Persona.DisplayName, c.Describe(), c.State().Living.Mood)
			}
		case "/saves":
			if err := printSaves(ctx, out, s.store); err != nil {
				fmt.Fprintf(out, "could not list saves: %v\n", err)
			}
		case "/save":
			s.save(ctx, arg, lines, out)
		case "/load":
			if _, err := s.sup.Restore(ctx, arg); err != nil {
				fmt.Fprintf(out, "could not load %q: %v\n", arg, err)
				continue
			}
			fmt.Fprintf(out, "loaded %q\n", arg)
		default:
			fmt.Fprintf(out, "unknown command %s\n", cmd)
		}
	}
}

// parseCommand は、"/" で始まる行をコマンド名と引数に分けます。
// コマンド名は最初の語と完全に一致する必要があります。
func parseCommand(line string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	fields := strings.Fields(line)
	return fields[0], strings.Join(fields[1:], " "), true
}

// talk は、"@id text" なら1人に、そうでなければ全員に同時に話しかけます。
func (s *session) talk(ctx context.Context, line string) error {
	if strings.HasPrefix(line, "@") {
		id, text, _ := strings.Cut(strings.TrimPrefix(line, "@"), " ")
		c, ok := s.sup.Get(id)
		if !ok {
			slog.Warn("no such character", "cha", id)
			return nil
		}
		_, err := s.orch.Turn(ctx, c, text)
		return err
	}

	reqs := make([]conversation.Request, 0, len(s.chars))
	for _, c := range s.chars {
		reqs = append(reqs, conversation.Request{Cha: c, Utterance: line})
	}
	_, err := s.orch.TurnMany(ctx, reqs)
	return err
}

// save は、保存に失敗したら再試行するかを尋ねます。メモリ上の状態は失敗しても変わりません。
func (s *session) save(ctx context.Context, slot string, lines <-chan string, out io.Writer) {
	for {
		cp, err := s.sup.Checkpoint(ctx, slot)
		if err == nil {
			fmt.Fprintf(out, "saved %q (%d characters)\n", cp.Slot, len(cp.Snapshots))
			return
		}
		fmt.Fprintf(out, "%v\n", err)

		var perr *checkpoint.PersistenceError
		if !errors.As(err, &perr) {
			return
		}
		fmt.Fprint(out, "retry? [y/N] ")
		select {
		case <-ctx.Done():
			return
		case answer, ok := <-lines:
			if !ok || !strings.EqualFold(answer, "y") {
				return
			}
		}
	}
}
