package query

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"incidentrag/internal/classify"
	"incidentrag/internal/domain"
	"incidentrag/internal/index"
	"incidentrag/internal/integrations/llm"
	"incidentrag/internal/logger"
	"incidentrag/internal/memory"
	"incidentrag/internal/metrics"
	"incidentrag/internal/pii"
	"incidentrag/internal/retrieval"
)

const noMatches = "No matching incidents were found in the knowledge base."

// Metrics mirrors what the chat front end shows under each answer.
type Metrics struct {
	ResponseTime     time.Duration
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

type Response struct {
	SessionID   string
	Question    string // as stored, after redaction
	Type        domain.QueryType
	K           int
	FellBack    bool
	IncidentIDs []string
	Answer      string
	Metrics     Metrics
	Turns       []domain.ConversationTurn
}

type Service struct {
	anon       *pii.Anonymizer
	classifier atomic.Pointer[classify.Classifier]
	planner    *retrieval.Planner
	gen        llm.Generator
	idx        index.Index
	mem        memory.Store
	window     memory.Window
	log        *logger.Logger
	now        func() time.Time
}

func NewService(anon *pii.Anonymizer, classifier *classify.Classifier, planner *retrieval.Planner, gen llm.Generator, idx index.Index, mem memory.Store, window memory.Window, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		anon:    anon,
		planner: planner,
		gen:     gen,
		idx:     idx,
		mem:     mem,
		window:  window,
		log:     log.With("component", "query"),
		now:     time.Now,
	}
	s.classifier.Store(classifier)
	return s
}

// SetClassifier swaps the classifier used by later questions, typically
// after a re-ingest changed the known team names.
func (s *Service) SetClassifier(c *classify.Classifier) {
	s.classifier.Store(c)
}

func (s *Service) Classifier() *classify.Classifier {
	return s.classifier.Load()
}

// Ask answers one question in a session. The question is redacted before
// anything else sees it; a detector outage rejects the question. Any
// collaborator failure returns an error and leaves memory untouched.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (Response, error) {
	start := s.now()
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, fmt.Errorf("question is empty")
	}
	if sessionID == "" {
		sessionID = memory.NewSessionID()
	}

	redacted, err := s.anon.AnonymizeQuery(ctx, sessionID, question)
	if err != nil {
		return Response{}, err
	}
	q := redacted.Text

	cls := s.classifier.Load().Classify(q)
	metrics.RecordQuery(string(cls.Type))
	s.log.Info("query classified", "session_id", sessionID, "query_type", cls.Type, "k", cls.K)

	plan, err := s.planner.Plan(ctx, q, cls)
	if err != nil {
		return Response{}, fmt.Errorf("retrieving incidents: %w", err)
	}

	history, err := s.mem.Recent(ctx, sessionID, s.window)
	if err != nil {
		return Response{}, fmt.Errorf("reading conversation: %w", err)
	}

	var (
		answer string
		usage  llm.Usage
	)
	if len(plan.Chunks) == 0 {
		answer = noMatches
	} else {
		answer, usage, err = s.gen.Answer(ctx, q, plan.Chunks, history)
		if err != nil {
			return Response{}, fmt.Errorf("generating answer: %w", err)
		}
	}

	turns := []domain.ConversationTurn{
		{Role: domain.RoleUser, Text: q, At: start.UTC()},
		{Role: domain.RoleAssistant, Text: answer, At: s.now().UTC()},
	}
	if err := s.mem.Append(ctx, sessionID, turns...); err != nil {
		return Response{}, fmt.Errorf("saving conversation: %w", err)
	}

	resp := Response{
		SessionID:   sessionID,
		Question:    q,
		Type:        cls.Type,
		K:           cls.K,
		FellBack:    plan.FellBack,
		IncidentIDs: plan.IncidentIDs(),
		Answer:      answer,
		Metrics: Metrics{
			ResponseTime:     s.now().Sub(start),
			PromptTokens:     usage.InputTokens,
			CompletionTokens: usage.OutputTokens,
			TotalTokens:      usage.TotalTokens(),
		},
		Turns: turns,
	}
	s.log.Info("query answered",
		"session_id", sessionID,
		"query_type", resp.Type,
		"documents", len(resp.IncidentIDs),
		"fell_back", resp.FellBack,
		"response_time", resp.Metrics.ResponseTime.String(),
		"total_tokens", resp.Metrics.TotalTokens,
	)
	return resp, nil
}

// Analyze produces a root cause write-up for one indexed incident. The
// stored chunk is already redacted.
func (s *Service) Analyze(ctx context.Context, incidentID string) (string, llm.Usage, error) {
	id := strings.ToUpper(strings.TrimSpace(incidentID))
	chunk, err := s.idx.Get(ctx, id)
	if err != nil {
		return "", llm.Usage{}, err
	}
	text, usage, err := s.gen.AnalyzeIncident(ctx, chunk)
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("analyzing %s: %w", id, err)
	}
	s.log.Info("incident analyzed", "incident_id", id, "total_tokens", usage.TotalTokens())
	return text, usage, nil
}
