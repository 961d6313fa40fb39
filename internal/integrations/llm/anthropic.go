package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"incidentrag/internal/config"
	"incidentrag/internal/domain"
	"incidentrag/internal/httpx"
	"incidentrag/internal/index"
	"incidentrag/internal/logger"
	"incidentrag/internal/metrics"
)

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

type Generator interface {
	Answer(ctx context.Context, question string, matches []index.Match, history []domain.ConversationTurn) (string, Usage, error)
	AnalyzeIncident(ctx context.Context, chunk domain.TextChunk) (string, Usage, error)
}

type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	log         *logger.Logger
}

// NewAnthropic builds a generator on the Messages API. Extra options are
// appended after the defaults, so tests can point it at a local server.
func NewAnthropic(cfg config.LLMConfig, httpClient *http.Client, log *logger.Logger, opts ...option.RequestOption) *Anthropic {
	if log == nil {
		log = logger.Nop()
	}
	base := []option.RequestOption{option.WithAPIKey(cfg.AnthropicAPIKey)}
	if httpClient != nil {
		base = append(base, option.WithHTTPClient(httpClient))
	}
	return &Anthropic{
		client:      anthropic.NewClient(append(base, opts...)...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		log:         log.With("component", "llm"),
	}
}

func (a *Anthropic) Answer(ctx context.Context, question string, matches []index.Match, history []domain.ConversationTurn) (string, Usage, error) {
	return a.call(ctx, "llm_answer", BuildAnswerPrompt(question, matches, history))
}

func (a *Anthropic) AnalyzeIncident(ctx context.Context, chunk domain.TextChunk) (string, Usage, error) {
	return a.call(ctx, "llm_analyze", BuildAnalysisPrompt(chunk))
}

func (a *Anthropic) call(ctx context.Context, op, userPrompt string) (text string, usage Usage, err error) {
	done := metrics.ObserveExternal(op)
	defer func() { done(err) }()

	ctx, cancel := httpx.CallContext(ctx, a.timeout)
	defer cancel()

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		a.log.Error("anthropic call failed", "op", op, "error", err)
		timeout := errors.Is(err, context.DeadlineExceeded)
		return "", Usage{}, domain.NewExternalError(op, domain.KindGeneration, 1, timeout, err)
	}
	usage = Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			a.log.Info("anthropic response",
				"op", op,
				"size", len(block.Text),
				"tokens_in", usage.InputTokens,
				"tokens_out", usage.OutputTokens,
				"cache_create", usage.CacheCreationInputTokens,
				"cache_read", usage.CacheReadInputTokens,
			)
			return block.Text, usage, nil
		}
	}
	return "", usage, domain.NewExternalError(op, domain.KindGeneration, 1, false, fmt.Errorf("no text content in Anthropic response"))
}
