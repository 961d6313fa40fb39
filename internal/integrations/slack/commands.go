package slackbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"incidentrag/internal/domain"
	"incidentrag/internal/ingest"
)

func (b *Bot) handleAsk(ctx context.Context, cmd slack.SlashCommand) {
	question := strings.TrimSpace(cmd.Text)
	if question == "" {
		b.replyTo(cmd, "Usage: /ask <question>\nExample: /ask What caused the VPN outages in March 2024?")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.deps.Timeout)
	defer cancel()
	resp, err := b.deps.Asker.Ask(ctx, sessionID(cmd), question)
	if err != nil {
		b.log.Error("ask failed", "user", cmd.UserID, "error", err)
		b.replyTo(cmd, userFacingError(err))
		return
	}
	b.replyTo(cmd, formatAnswer(resp))
	b.log.Info("ask answered", "user", cmd.UserID, "query_type", resp.Type, "documents", len(resp.IncidentIDs))
}

func (b *Bot) handleAnalyze(ctx context.Context, cmd slack.SlashCommand) {
	id := strings.ToUpper(strings.TrimSpace(cmd.Text))
	if id == "" || strings.ContainsAny(id, " \t\n") {
		b.replyTo(cmd, "Usage: /analyze <incident number>\nExample: /analyze INC0012345")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.deps.Timeout)
	defer cancel()
	text, usage, err := b.deps.Asker.Analyze(ctx, id)
	if err != nil {
		b.log.Error("analyze failed", "user", cmd.UserID, "incident_id", id, "error", err)
		if errors.Is(err, domain.ErrNotFound) {
			b.replyTo(cmd, fmt.Sprintf("Incident %s is not in the knowledge base.", id))
			return
		}
		b.replyTo(cmd, userFacingError(err))
		return
	}
	b.replyTo(cmd, fmt.Sprintf("*Analysis of %s*\n\n%s\n\n_Tokens: %s_", id, text, formatTokenCount(usage.TotalTokens())))
}

func (b *Bot) handleForget(ctx context.Context, cmd slack.SlashCommand) {
	if err := b.deps.Memory.Clear(ctx, sessionID(cmd)); err != nil {
		b.log.Error("clearing conversation failed", "user", cmd.UserID, "error", err)
		b.replyTo(cmd, "Could not clear the conversation, try again later.")
		return
	}
	b.replyTo(cmd, "Conversation cleared. The next /ask starts fresh.")
}

func (b *Bot) handleReindex(ctx context.Context, cmd slack.SlashCommand) {
	if !b.cfg.IsAdmin(cmd.UserID) {
		b.replyTo(cmd, "Sorry, only knowledge base admins can use this command.")
		b.log.Warn("reindex denied", "user", cmd.UserID)
		return
	}
	path := strings.TrimSpace(cmd.Text)
	if path == "" {
		path = b.deps.SourcePath
	}
	if path == "" {
		b.replyTo(cmd, "No source file configured. Usage: /reindex <path to .csv or .xlsx>")
		return
	}
	if !b.reindexing.CompareAndSwap(false, true) {
		b.replyTo(cmd, "A reindex is already running.")
		return
	}
	defer b.reindexing.Store(false)

	b.replyTo(cmd, fmt.Sprintf("Reindexing from %s...", path))
	result, err := b.deps.Ingester.IngestFile(ctx, path)
	if err != nil {
		b.log.Error("reindex failed", "path", path, "error", err)
		b.replyTo(cmd, fmt.Sprintf("Reindex failed: %v", err))
		return
	}
	b.replyTo(cmd, ingest.FormatSummary(result))
}

func (b *Bot) handleStats(ctx context.Context, cmd slack.SlashCommand) {
	total, err := b.deps.Stats.Count(ctx)
	if err != nil {
		b.log.Error("kb-stats count failed", "error", err)
		b.replyTo(cmd, fmt.Sprintf("Error loading stats: %v", err))
		return
	}
	categories, err := b.deps.Stats.CategoryCounts(ctx)
	if err != nil {
		b.log.Warn("kb-stats categories failed (non-fatal)", "error", err)
	}
	teams, err := b.deps.Stats.Teams(ctx)
	if err != nil {
		b.log.Warn("kb-stats teams failed (non-fatal)", "error", err)
	}
	b.replyTo(cmd, formatStats(total, categories, teams))
}

func (b *Bot) handleHelp(cmd slack.SlashCommand) {
	lines := []string{
		"*Incident Knowledge Base*",
		"",
		"`/ask <question>` - Ask about past incidents. Follow-up questions keep context.",
		">*Example:* `/ask Show critical network incidents from March 2024`",
		"`/analyze <incident number>` - Root cause analysis for one incident.",
		"`/forget` - Clear your conversation history in this channel.",
		"`/kb-stats` - Show what the knowledge base contains.",
		"`/help` - Show this help.",
	}
	if b.cfg.IsAdmin(cmd.UserID) {
		lines = append(lines,
			"",
			"*Admin Commands*",
			"",
			"`/reindex [path]` - Re-ingest the incident export.",
		)
	}
	b.replyTo(cmd, strings.Join(lines, "\n"))
}

func userFacingError(err error) string {
	switch {
	case errors.Is(err, domain.ErrPIIDetectorUnavailable):
		return "PII scanning is unavailable, so your question was not processed. Please try again shortly."
	case errors.Is(err, domain.ErrEmbeddingUnavailable), errors.Is(err, domain.ErrIndexUnavailable):
		return "The incident search service is unavailable. Please try again shortly."
	case errors.Is(err, domain.ErrGenerationUnavailable):
		return "The answer service is unavailable. Please try again shortly."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return "That took too long. Try a narrower question."
	}
	return "Something went wrong while answering. Please try again."
}
