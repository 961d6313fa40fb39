package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	slackbot "incidentrag/internal/integrations/slack"
	"incidentrag/internal/ingest"
	"incidentrag/internal/metrics"
	"incidentrag/internal/query"
	"incidentrag/internal/retrieval"
	"incidentrag/internal/scheduler"
)

func newIngestCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index an incident export (.csv or .xlsx)",
		Example: `  incidentrag ingest --file incidents.xlsx
  incidentrag ingest   # uses ingest.source_path`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			path := file
			if path == "" {
				path = rt.cfg.Ingest.SourcePath
			}
			if path == "" {
				return errors.New("no input: pass --file or set ingest.source_path")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := rt.pipeline().IngestFile(ctx, path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ingest.FormatSummary(result))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "incident export to index")
	return cmd
}

func newAskCommand() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about past incidents",
		Long: `Ask a question about past incidents. With no arguments, starts an
interactive session that keeps conversation context between questions.`,
		Example: `  incidentrag ask "What caused the VPN outages in March 2024?"
  incidentrag ask --session 3f1c... "and how were they resolved?"
  incidentrag ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()
			svc, _, err := rt.service(ctx)
			if err != nil {
				return err
			}

			if len(args) > 0 {
				resp, err := svc.Ask(ctx, session, strings.Join(args, " "))
				if err != nil {
					return err
				}
				printResponse(cmd.OutOrStdout(), resp)
				return nil
			}
			return chat(ctx, svc, session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "conversation id to continue")
	return cmd
}

// chat reads one question per line until EOF or "exit".
func chat(ctx context.Context, svc *query.Service, session string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "Ask about past incidents. Type 'exit' to quit.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		resp, err := svc.Ask(ctx, session, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		session = resp.SessionID
		printResponse(out, resp)
	}
}

func printResponse(w io.Writer, resp query.Response) {
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)
	if len(resp.IncidentIDs) > 0 {
		fmt.Fprintf(w, "Sources: %s\n", strings.Join(resp.IncidentIDs, ", "))
	}
	fellBack := ""
	if resp.FellBack {
		fellBack = " (filters relaxed)"
	}
	fmt.Fprintf(w, "Query type: %s, k=%d%s\n", resp.Type, resp.K, fellBack)
	fmt.Fprintf(w, "Response time: %s, tokens: %d prompt + %d completion\n",
		resp.Metrics.ResponseTime.Round(time.Millisecond), resp.Metrics.PromptTokens, resp.Metrics.CompletionTokens)
	fmt.Fprintf(w, "Session: %s\n", resp.SessionID)
}

func newSearchCommand() *cobra.Command {
	var (
		k        int
		category string
		team     string
		priority int
		year     string
		resolved bool
	)
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Similarity search over the knowledge base, with optional filters",
		Example: `  incidentrag search "database replica lag" --category Database -k 5
  incidentrag search "login failures" --team "Service Desk" --year 2024`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var conds []retrieval.Condition
			if category != "" {
				conds = append(conds, retrieval.Eq(retrieval.FieldCategory, category))
			}
			if team != "" {
				conds = append(conds, retrieval.Eq(retrieval.FieldTeam, team))
			}
			if priority > 0 {
				conds = append(conds, retrieval.Eq(retrieval.FieldPriorityLevel, priority))
			}
			if year != "" {
				conds = append(conds, retrieval.Eq(retrieval.FieldYear, year))
			}
			if cmd.Flags().Changed("resolved") {
				conds = append(conds, retrieval.Eq(retrieval.FieldIsResolved, resolved))
			}
			filter, err := retrieval.NewFilter(conds...)
			if err != nil {
				return err
			}

			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			matches, err := rt.planner().Search(cmd.Context(), strings.Join(args, " "), k, filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, "No matching incidents.")
				return nil
			}
			for _, m := range matches {
				md := m.Chunk.Metadata
				fmt.Fprintf(out, "%-12s %.3f  %s / %s  P%d  %s\n", m.Chunk.IncidentID, m.Score, md.Category, md.Team, md.PriorityLevel, md.YearMonth)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 10, "number of results")
	cmd.Flags().StringVar(&category, "category", "", "only this category")
	cmd.Flags().StringVar(&team, "team", "", "only this assignment group")
	cmd.Flags().IntVar(&priority, "priority", 0, "only this priority level (1-5)")
	cmd.Flags().StringVar(&year, "year", "", "only incidents opened in this year")
	cmd.Flags().BoolVar(&resolved, "resolved", false, "only resolved (or, with =false, open) incidents")
	return cmd
}

func newAnalyzeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "analyze <incident number>",
		Short:   "Root cause analysis for one indexed incident",
		Example: "  incidentrag analyze INC0012345",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()
			svc, _, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			text, usage, err := svc.Analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			fmt.Fprintf(cmd.OutOrStdout(), "\nTokens: %d\n", usage.TotalTokens())
			return nil
		},
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack bot, scheduled re-ingest and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg

	count, err := rt.idx.Count(ctx)
	if err != nil {
		return err
	}
	metrics.SetIndexSize(count)

	var (
		bot *slackbot.Bot
		api *slack.Client
	)
	reindex := &reindexer{rt: rt, pipeline: rt.pipeline()}
	if cfg.Slack.Configured() {
		svc, mem, err := rt.service(ctx)
		if err != nil {
			return err
		}
		reindex.svc = svc
		api = slack.New(cfg.Slack.BotToken, slack.OptionAppLevelToken(cfg.Slack.AppToken))
		bot = slackbot.New(cfg.Slack, api, slackbot.Deps{
			Asker:      svc,
			Ingester:   reindex,
			Stats:      rt.idx,
			Memory:     mem,
			SourcePath: cfg.Ingest.SourcePath,
			Timeout:    cfg.PIITimeout() + cfg.RetrievalTimeout() + cfg.LLMTimeout(),
		}, rt.log)
	}

	g, ctx := errgroup.WithContext(ctx)
	running := 0

	if bot != nil {
		running++
		g.Go(func() error {
			rt.log.Info("starting slack bot", "incidents", count)
			return bot.Run(ctx, api)
		})
	}

	if cfg.Ingest.Schedule != "" && cfg.Ingest.SourcePath != "" {
		running++
		job := func(ctx context.Context) (string, error) {
			result, err := reindex.IngestFile(ctx, cfg.Ingest.SourcePath)
			if err != nil {
				return "", err
			}
			return "Scheduled re-ingest: " + ingest.FormatSummary(result), nil
		}
		var notify scheduler.Notify
		if bot != nil {
			notify = bot.Notify
		}
		g.Go(func() error {
			return scheduler.Run(ctx, cfg.Ingest.Schedule, cfg.Location, job, notify, rt.log)
		})
	} else if cfg.Ingest.Schedule != "" {
		rt.log.Warn("ingest.schedule set without ingest.source_path, scheduled re-ingest disabled")
	}

	if cfg.MetricsAddr != "" {
		running++
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			rt.log.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if running == 0 {
		return errors.New("nothing to serve: configure slack tokens, metrics_addr or ingest.schedule")
	}
	return g.Wait()
}

// reindexer runs an ingest and then reloads the team names the classifier
// matches, so teams from the new export show up in question hints.
type reindexer struct {
	rt       *runtime
	pipeline *ingest.Pipeline
	svc      *query.Service
}

func (r *reindexer) IngestFile(ctx context.Context, path string) (ingest.Result, error) {
	result, err := r.pipeline.IngestFile(ctx, path)
	if err != nil || r.svc == nil {
		return result, err
	}
	cls, err := r.rt.classifier(ctx)
	if err != nil {
		r.rt.log.Warn("classifier refresh failed, keeping previous teams", "error", err)
		return result, nil
	}
	r.svc.SetClassifier(cls)
	return result, nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
