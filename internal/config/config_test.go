package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func missingConfigPath(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	t.Setenv("TIMEZONE", "UTC")
}

func TestLoadDefaults(t *testing.T) {
	missingConfigPath(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "./incidentrag.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if !cfg.PII.IsEnabled() {
		t.Fatal("pii should be enabled by default")
	}
	if cfg.PII.FailOpen {
		t.Fatal("pii must fail closed by default")
	}
	if !cfg.PII.ShouldLogFindings() {
		t.Fatal("pii findings should be logged by default")
	}
	if len(cfg.PII.ExcludedEntities) != 1 || cfg.PII.ExcludedEntities[0] != "DATE_TIME" {
		t.Fatalf("unexpected excluded entities default: %v", cfg.PII.ExcludedEntities)
	}
	if cfg.PII.MinConfidence != 0.6 {
		t.Fatalf("unexpected min confidence default: %f", cfg.PII.MinConfidence)
	}
	if cfg.Embedding.Dimensions != DefaultEmbeddingDimensions {
		t.Fatalf("unexpected dimensions default: %d", cfg.Embedding.Dimensions)
	}
	if cfg.Memory.MaxTurns != 20 {
		t.Fatalf("unexpected memory max turns default: %d", cfg.Memory.MaxTurns)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
db_path: "/tmp/kb.db"
pii:
  enabled: false
  min_confidence: 0.8
  excluded_entities: []
  person_names: ["Jane Doe"]
embedding:
  dimensions: 256
memory:
  max_turns: 6
  context_turns: 4
slack:
  bot_token: "xoxb-yaml"
  app_token: "xapp-yaml"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("DB_PATH", "/tmp/override.db")
	t.Setenv("PII_ENTITIES", "PERSON, EMAIL_ADDRESS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("env should override db path, got %q", cfg.DBPath)
	}
	if cfg.PII.IsEnabled() {
		t.Fatal("expected pii disabled from yaml")
	}
	if cfg.PII.MinConfidence != 0.8 {
		t.Fatalf("unexpected min confidence: %f", cfg.PII.MinConfidence)
	}
	if len(cfg.PII.ExcludedEntities) != 0 {
		t.Fatalf("explicit empty excluded list should be kept, got %v", cfg.PII.ExcludedEntities)
	}
	if len(cfg.PII.Entities) != 2 || cfg.PII.Entities[1] != "EMAIL_ADDRESS" {
		t.Fatalf("unexpected entities: %v", cfg.PII.Entities)
	}
	if cfg.Embedding.Dimensions != 256 {
		t.Fatalf("unexpected dimensions: %d", cfg.Embedding.Dimensions)
	}
	if !cfg.Slack.Configured() {
		t.Fatal("expected slack configured")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "confidence out of range",
			env:  map[string]string{"PII_MIN_CONFIDENCE": "1.5"},
			want: "min_confidence",
		},
		{
			name: "unknown entity",
			env:  map[string]string{"PII_ENTITIES": "PERSON,PASSPORT"},
			want: "unknown pii entity 'PASSPORT'",
		},
		{
			name: "bad integer",
			env:  map[string]string{"INGEST_CONCURRENCY": "many"},
			want: "INGEST_CONCURRENCY",
		},
		{
			name: "half slack config",
			env:  map[string]string{"SLACK_BOT_TOKEN": "xoxb-only"},
			want: "slack.bot_token and slack.app_token",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			missingConfigPath(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
