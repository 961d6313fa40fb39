package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"incidentrag/internal/audit"
	"incidentrag/internal/classify"
	"incidentrag/internal/config"
	"incidentrag/internal/embedding"
	"incidentrag/internal/httpx"
	"incidentrag/internal/incident"
	"incidentrag/internal/index"
	"incidentrag/internal/ingest"
	"incidentrag/internal/integrations/llm"
	"incidentrag/internal/logger"
	"incidentrag/internal/memory"
	"incidentrag/internal/pii"
	"incidentrag/internal/query"
	"incidentrag/internal/retrieval"
	"incidentrag/internal/retry"
)

func Main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "incidentrag",
		Short: "Question answering over historical IT incidents",
		Long: `incidentrag ingests an incident export into a PII-redacted vector
knowledge base and answers questions about it, from the command line or
from Slack.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				return os.Setenv("CONFIG_PATH", configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $CONFIG_PATH or ./config.yaml)")

	root.AddCommand(
		newIngestCommand(),
		newAskCommand(),
		newSearchCommand(),
		newAnalyzeCommand(),
		newServeCommand(),
	)
	return root
}

// runtime holds the components shared by every command. Close releases
// them in reverse order.
type runtime struct {
	cfg    config.Config
	log    *logger.Logger
	client *http.Client
	idx    *index.SQLiteIndex
	sink   audit.Sink
	anon   *pii.Anonymizer
	names  *pii.NameDetector
	emb    embedding.Embedder

	closers []func() error
}

func setup() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	rt := &runtime{cfg: cfg, log: log}
	rt.closers = append(rt.closers, func() error { log.Sync(); return nil })

	applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeout(), cfg.PIITimeout(), cfg.EmbeddingTimeout(), cfg.LLMTimeout())
	rt.client = httpx.ExternalHTTPClient()
	log.Info("config loaded",
		"db_path", cfg.DBPath,
		"timezone", cfg.Timezone,
		"pii_enabled", cfg.PII.IsEnabled(),
		"pii_fail_open", cfg.PII.FailOpen,
		"embedding_provider", cfg.Embedding.Provider,
		"embedding_dimensions", cfg.Embedding.Dimensions,
		"external_http_timeout", applied.String(),
	)

	if err := rt.open(); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) open() error {
	cfg := rt.cfg

	idx, err := index.Open(cfg.DBPath, cfg.Embedding.Dimensions)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	rt.idx = idx
	rt.closers = append(rt.closers, idx.Close)

	fileSink, err := audit.NewFileSink(cfg.Audit.Path)
	if err != nil {
		return err
	}
	sinks := []audit.Sink{fileSink}
	if len(cfg.Audit.KafkaBrokers) > 0 {
		sinks = append(sinks, audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic))
		rt.log.Info("pii audit mirrored to kafka", "topic", cfg.Audit.KafkaTopic, "brokers", len(cfg.Audit.KafkaBrokers))
	}
	rt.sink = audit.Multi(sinks...)
	rt.closers = append(rt.closers, rt.sink.Close)

	rt.anon, rt.names, err = pii.Build(cfg.PII, rt.client, rt.sink, rt.log)
	if err != nil {
		return fmt.Errorf("pii: %w", err)
	}

	rt.emb, err = embedding.FromConfig(cfg.Embedding, rt.client)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	return nil
}

func (rt *runtime) Close() {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		rt.log.Warn("shutdown", "error", err)
	}
}

func (rt *runtime) pipeline() *ingest.Pipeline {
	norm := incident.NewNormalizer(rt.log, rt.cfg.Location)
	return ingest.New(norm, rt.anon, rt.names, rt.emb, rt.idx, rt.cfg.Ingest.Concurrency, rt.log)
}

func (rt *runtime) planner() *retrieval.Planner {
	policy := retry.Policy{
		MaxAttempts: rt.cfg.Retrieval.MaxAttempts,
		Timeout:     rt.cfg.RetrievalTimeout(),
	}
	return retrieval.NewPlanner(rt.emb, rt.idx, policy, rt.log)
}

func (rt *runtime) classifier(ctx context.Context) (*classify.Classifier, error) {
	table := classify.DefaultTable()
	if path := rt.cfg.ClassifierTablePath; path != "" {
		t, err := classify.LoadTable(path)
		if err != nil {
			return nil, err
		}
		table = t
	}
	teams, err := rt.idx.Teams(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading teams: %w", err)
	}
	rt.log.Info("classifier ready", "table_version", table.Version, "rules", len(table.Rules), "teams", len(teams))
	return classify.New(table, teams).WithLocation(rt.cfg.Location), nil
}

func (rt *runtime) memoryStore() (memory.Store, error) {
	mc := rt.cfg.Memory
	if mc.RedisAddr == "" {
		return memory.NewInMemoryStore(mc.MaxTurns, rt.cfg.MemoryTTL()), nil
	}
	store, err := memory.NewRedisStore(mc.RedisAddr, mc.RedisKeyPrefix, mc.MaxTurns, rt.cfg.MemoryTTL(), rt.log)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)
	return store, nil
}

// service builds the question answering path. It needs an LLM key, which
// ingest and search do not.
func (rt *runtime) service(ctx context.Context) (*query.Service, memory.Store, error) {
	if rt.cfg.LLM.AnthropicAPIKey == "" {
		return nil, nil, errors.New("llm.anthropic_api_key (ANTHROPIC_API_KEY) is required to answer questions")
	}
	cls, err := rt.classifier(ctx)
	if err != nil {
		return nil, nil, err
	}
	mem, err := rt.memoryStore()
	if err != nil {
		return nil, nil, err
	}
	gen := llm.NewAnthropic(rt.cfg.LLM, rt.client, rt.log)
	window := memory.Window{MaxTurns: rt.cfg.Memory.ContextTurns, TokenBudget: rt.cfg.Memory.TokenBudget}
	return query.NewService(rt.anon, cls, rt.planner(), gen, rt.idx, mem, window, rt.log), mem, nil
}
