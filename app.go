package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sat8bit/kizuna/bus"
	"github.com/sat8bit/kizuna/buslog"
	"github.com/sat8bit/kizuna/cha"
	"github.com/sat8bit/kizuna/checkpoint"
	"github.com/sat8bit/kizuna/config"
	"github.com/sat8bit/kizuna/conversation"
	"github.com/sat8bit/kizuna/evolution"
	"github.com/sat8bit/kizuna/fetcher"
	"github.com/sat8bit/kizuna/living"
	"github.com/sat8bit/kizuna/llm"
	"github.com/sat8bit/kizuna/persona"
	"github.com/sat8bit/kizuna/relationship"
	"github.com/sat8bit/kizuna/sentiment"
	"github.com/sat8bit/kizuna/supervisor"
	"github.com/sat8bit/kizuna/topic"
	"github.com/sat8bit/kizuna/turn"
)

// app は、1回の実行で使う部品をまとめたものです。
type app struct {
	cfg    config.Config
	policy config.Policy
	store  checkpoint.Store
	close  func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, policy: policy, store: store, close: closeFn}, nil
}

func openStore(ctx context.Context, cfg config.Config) (checkpoint.Store, func() error, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := checkpoint.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreMongo:
		s, err := checkpoint.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return checkpoint.NewYAMLStore(cfg.DataDir), func() error { return nil }, nil
	}
}

// newLLM は、設定に応じたクライアントを返します。ProviderNone なら nil です。
func newLLM(ctx context.Context, cfg config.Config) (llm.LLM, error) {
	var client llm.LLM
	switch cfg.Provider {
	case config.ProviderGemini:
		g, err := llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey:   cfg.GeminiAPIKey,
			Project:  cfg.GeminiProject,
			Location: cfg.GeminiLocation,
			Model:    cfg.GeminiModel,
		})
		if err != nil {
			return nil, err
		}
		client = g
	case config.ProviderOpenAI:
		o, err := llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		client = o
	default:
		return nil, nil
	}
	return llm.NewResilient(client, cfg.LLMTimeout, cfg.LLMRetries), nil
}

func loadPersonas(cfg config.Config) (*persona.Pool, error) {
	if cfg.PersonaFile == "" {
		return persona.NewPool()
	}
	data, err := os.ReadFile(cfg.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}
	return persona.ParsePool(data)
}

func newFetcher(cfg config.Config) topic.Fetcher {
	if len(cfg.FeedURLs) == 0 {
		return nil
	}
	fetchers := make([]topic.Fetcher, 0, len(cfg.FeedURLs))
	for _, url := range cfg.FeedURLs {
		if url = strings.TrimSpace(url); url != "" {
			fetchers = append(fetchers, fetcher.NewRSSFetcher(url, cfg.FeedLimit))
		}
	}
	return fetcher.NewMultiFetcher(cfg.FeedTTL, fetchers...)
}

// setupLogger は、警告以上のログをバスにも流す既定のロガーを設定します。
func setupLogger(b bus.Bus, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	text := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(buslog.NewBusHandler(b, text, slog.LevelWarn)))
	return nil
}

// session は、チャット1回分のキャラクターと会話の部品です。
type session struct {
	chars []*cha.Cha
	orch  *conversation.Orchestrator
	sup   *supervisor.Supervisor
	store checkpoint.Store
	turns turn.TurnProvider
}

func (a *app) newSession(personas []*persona.Persona, client llm.LLM, topics topic.Fetcher, b bus.Bus) (*session, error) {
	now := time.Now()
	chars := make([]*cha.Cha, 0, len(personas))
	for _, p := range personas {
		c, err := cha.New(p.PersonaId, p, a.policy.Evolution, now)
		if err != nil {
			return nil, fmt.Errorf("failed to create character %s: %w", p.PersonaId, err)
		}
		chars = append(chars, c)
	}

	deps := conversation.Deps{
		Scorer:      sentiment.NewScorer(),
		Ledger:      relationship.NewLedger(a.policy.Relationship),
		Topics:      topics,
		Bus:         b,
		HookTimeout: a.cfg.LLMTimeout,
	}
	var (
		refresher living.Refresher
		narrator  evolution.Narrator
	)
	if client != nil {
		deps.Replier = client
		refresher = client
		narrator = client
	}
	deps.Tracker = living.NewTracker(a.policy.Living, refresher, time.Now)
	deps.Engine = evolution.NewEngine(a.policy.Evolution, narrator)
	orch := conversation.New(deps)

	sup := supervisor.NewSupervisor(a.store, chars, supervisor.Options{
		AutosaveEvery: a.cfg.AutosaveEvery,
		SaveRetries:   a.cfg.SaveRetries,
		Bus:           b,
	})
	orch.Observe(sup)

	return &session{chars: sup.Chars(), orch: orch, sup: sup, store: a.store, turns: sup}, nil
}
