package memory

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"

	"incidentrag/internal/domain"
)

// Window bounds a read of conversation history. Zero means no bound.
type Window struct {
	MaxTurns    int
	TokenBudget int
}

// Store is an append-only, per-session turn log. Appends within a session
// are serialized and the turns of one Append call stay adjacent; sessions
// never share state.
type Store interface {
	Append(ctx context.Context, sessionID string, turns ...domain.ConversationTurn) error
	Recent(ctx context.Context, sessionID string, w Window) ([]domain.ConversationTurn, error)
	Clear(ctx context.Context, sessionID string) error
}

func NewSessionID() string {
	return uuid.NewString()
}

// EstimateTokens approximates model tokens as one per four characters.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// applyWindow keeps the newest turns that fit both bounds, oldest first.
func applyWindow(turns []domain.ConversationTurn, w Window) []domain.ConversationTurn {
	start := len(turns)
	tokens := 0
	for i := len(turns) - 1; i >= 0; i-- {
		if w.MaxTurns > 0 && len(turns)-i > w.MaxTurns {
			break
		}
		cost := EstimateTokens(turns[i].Text)
		if w.TokenBudget > 0 && tokens+cost > w.TokenBudget {
			break
		}
		tokens += cost
		start = i
	}
	out := make([]domain.ConversationTurn, len(turns)-start)
	copy(out, turns[start:])
	return out
}
