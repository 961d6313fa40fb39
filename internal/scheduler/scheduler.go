package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"incidentrag/internal/logger"
)

// Job runs once per tick and returns a one-line summary.
type Job func(ctx context.Context) (string, error)

// Notify receives the summary of every finished run.
type Notify func(summary string)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse accepts a standard 5-field cron expression ("0 2 * * *") or a
// descriptor ("@daily", "@every 6h").
func Parse(spec string) (cron.Schedule, error) {
	sched, err := parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Run blocks, invoking job on every tick of spec until ctx is cancelled.
// Runs never overlap; a tick that fires during a run is skipped.
func Run(ctx context.Context, spec string, loc *time.Location, job Job, notify Notify, log *logger.Logger) error {
	sched, err := Parse(spec)
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "scheduler")
	log.Info("re-ingest scheduled", "schedule", spec)

	for {
		now := time.Now().In(loc)
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Info("next re-ingest", "at", next.Format("Mon Jan 2 15:04"), "in", wait.Round(time.Second).String())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		summary, jobErr := job(ctx)
		if jobErr != nil {
			log.Error("re-ingest failed", "error", jobErr)
			if summary == "" {
				summary = "Re-ingest failed: " + jobErr.Error()
			}
		} else {
			log.Info("re-ingest complete", "summary", summary)
		}
		if notify != nil && summary != "" {
			notify(summary)
		}
	}
}
