package conversation

import (
	"context"
	"fmt"

	"github.com/sat8bit/kizuna/cha"
	"github.com/sat8bit/kizuna/message"
	"github.com/sat8bit/kizuna/sentiment"
	"golang.org/x/sync/errgroup"
)

// Request は、TurnMany に渡す1件の発話です。
type Request struct {
	Cha       *cha.Cha
	Utterance string
}

// TurnMany は、複数のキャラクターへのターンを並行して処理します。
// 結果は reqs と同じ順番で返ります。同じキャラクターへの要求は順番に処理されます。
func (o *Orchestrator) TurnMany(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			r, err := o.Turn(gctx, req.Cha, req.Utterance)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Opening は、会話の最初のひとことを会話ログに残して返します。
func (o *Orchestrator) Opening(ctx context.Context, c *cha.Cha) (string, error) {
	return o.say(ctx, c, c.Opening())
}

// Goodbye は、別れのひとことを会話ログに残して返します。
func (o *Orchestrator) Goodbye(ctx context.Context, c *cha.Cha) (string, error) {
	return o.say(ctx, c, c.Goodbye())
}

func (o *Orchestrator) say(ctx context.Context, c *cha.Cha, text string) (string, error) {
	if err := c.Turn().Acquire(ctx); err != nil {
		return "", fmt.Errorf("conversation: waiting for %s: %w", c.ChaId, err)
	}
	err := c.Commit(c.State(), cha.Line{Speaker: c.Persona.DisplayName, Text: text, At: o.now()})
	c.Turn().Release()
	if err != nil {
		return "", err
	}

	if o.bus != nil {
		_ = o.bus.Broadcast(&message.Message{
			ChaId: c.ChaId,
			From:  c.Persona.DisplayName,
			Text:  text,
			At:    o.now(),
			Kind:  message.KindCha,
		})
	}
	return text, nil
}

// Summary は、会話ログに残っているプレイヤーの発話の調子をまとめます。
func (o *Orchestrator) Summary(c *cha.Cha) sentiment.ToneSummary {
	var texts []string
	for _, l := range c.Recent(cha.LogCapacity) {
		if l.Speaker == PlayerSpeaker {
			texts = append(texts, l.Text)
		}
	}
	return o.scorer.Tone(texts)
}
