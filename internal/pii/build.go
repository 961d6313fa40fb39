package pii

import (
	"fmt"
	"net/http"

	"incidentrag/internal/audit"
	"incidentrag/internal/config"
	"incidentrag/internal/domain"
	"incidentrag/internal/logger"
)

// Build assembles the detector chain described by cfg: regex patterns,
// the person-name dictionary and, when configured, a Presidio analyzer,
// all behind a bounded pool. The returned NameDetector lets ingestion
// register assignee names as they are read.
func Build(cfg config.PIIConfig, client *http.Client, sink audit.Sink, log *logger.Logger) (*Anonymizer, *NameDetector, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	names := NewNameDetector(cfg.PersonNames...)
	detectors := []Detector{NewPatternDetector(), names}
	if cfg.PresidioURL != "" {
		entities := opts.Entities
		if len(entities) == 0 {
			entities = domain.DefaultEntities
		}
		detectors = append(detectors, NewPresidioDetector(cfg.PresidioURL, cfg.PresidioLanguage, entities, client))
	}
	if cfg.MaxConcurrent < 1 {
		return nil, nil, fmt.Errorf("pii max_concurrent must be positive")
	}
	pool := NewPool(Multi(detectors...), cfg.MaxConcurrent, secondsToDuration(cfg.TimeoutSeconds))
	return New(pool, opts, sink, log), names, nil
}
