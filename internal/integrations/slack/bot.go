package slackbot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"incidentrag/internal/config"
	"incidentrag/internal/index"
	"incidentrag/internal/ingest"
	"incidentrag/internal/integrations/llm"
	"incidentrag/internal/logger"
	"incidentrag/internal/query"
)

type Asker interface {
	Ask(ctx context.Context, sessionID, question string) (query.Response, error)
	Analyze(ctx context.Context, incidentID string) (string, llm.Usage, error)
}

type Ingester interface {
	IngestFile(ctx context.Context, path string) (ingest.Result, error)
}

type Stats interface {
	Count(ctx context.Context) (int, error)
	CategoryCounts(ctx context.Context) ([]index.CategoryCount, error)
	Teams(ctx context.Context) ([]string, error)
}

type Forgetter interface {
	Clear(ctx context.Context, sessionID string) error
}

// Deps are the services behind the slash commands.
type Deps struct {
	Asker      Asker
	Ingester   Ingester
	Stats      Stats
	Memory     Forgetter
	SourcePath string
	Timeout    time.Duration
}

type Bot struct {
	cfg  config.SlackConfig
	deps Deps
	log  *logger.Logger

	reindexing atomic.Bool

	// reply and post are swapped out in tests.
	reply func(channelID, userID, text string)
	post  func(channelID, text string)
}

func New(cfg config.SlackConfig, api *slack.Client, deps Deps, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.Nop()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 2 * time.Minute
	}
	b := &Bot{cfg: cfg, deps: deps, log: log.With("component", "slack")}
	b.reply = func(channelID, userID, text string) {
		if _, err := api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false)); err != nil {
			b.log.Error("posting ephemeral failed", "channel", channelID, "user", userID, "error", err)
		}
	}
	b.post = func(channelID, text string) {
		if _, _, err := api.PostMessage(channelID, slack.MsgOptionText(text, false)); err != nil {
			b.log.Error("posting message failed", "channel", channelID, "error", err)
		}
	}
	return b
}

// Run connects over Socket Mode and serves slash commands until ctx ends.
func (b *Bot) Run(ctx context.Context, api *slack.Client) error {
	client := socketmode.New(api)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-client.Events:
				if !ok {
					return
				}
				switch evt.Type {
				case socketmode.EventTypeConnected:
					b.log.Info("slack bot connected via socket mode")
				case socketmode.EventTypeSlashCommand:
					client.Ack(*evt.Request)
					cmd, ok := evt.Data.(slack.SlashCommand)
					if !ok {
						continue
					}
					b.log.Info("slash command received", "command", cmd.Command, "user", cmd.UserID, "channel", cmd.ChannelID)
					go b.handle(ctx, cmd)
				}
			}
		}
	}()

	if err := client.RunContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Notify posts a message to the configured channel, if any.
func (b *Bot) Notify(text string) {
	if b.cfg.ChannelID == "" {
		return
	}
	b.post(b.cfg.ChannelID, text)
}

func (b *Bot) handle(ctx context.Context, cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/ask":
		b.handleAsk(ctx, cmd)
	case "/analyze":
		b.handleAnalyze(ctx, cmd)
	case "/forget":
		b.handleForget(ctx, cmd)
	case "/reindex":
		b.handleReindex(ctx, cmd)
	case "/kb-stats":
		b.handleStats(ctx, cmd)
	case "/help":
		b.handleHelp(cmd)
	}
}

func (b *Bot) replyTo(cmd slack.SlashCommand, text string) {
	b.reply(cmd.ChannelID, cmd.UserID, text)
}

// sessionID scopes conversation memory to one user in one channel.
func sessionID(cmd slack.SlashCommand) string {
	return "slack-" + cmd.ChannelID + "-" + cmd.UserID
}
