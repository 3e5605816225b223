package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobsieve/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("JOBSIEVE_TEST_PG", "postgres://jobs:secret@db:5432/jobs")
	path := writeConfig(t, `
storage:
  driver: postgres
  url: ${JOBSIEVE_TEST_PG}
logging:
  level: debug
  format: json
scoring:
  threshold: 75
  location_terms: [berlin, remote]
pipeline:
  user_id: amish
  batch_size: 5
  step_timeout: 30s
  retry_attempts: 0
sources:
  linkedin:
    min_delay_ms: 100
    max_concurrent: 10
    search_url: https://example.com/jobs?q={keywords}
  Glassdoor:
    enabled: false
schedules:
  - name: morning
    cron: "0 8 * * 1-5"
    queries:
      - source: linkedin
        keywords: senior go engineer
        location: London
notification:
  type: slack
  webhook_url: https://hooks.slack.com/services/T000/B000/XXX
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.URL != "postgres://jobs:secret@db:5432/jobs" {
		t.Errorf("Storage.URL = %q, want env-expanded url", cfg.Storage.URL)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Scoring.Threshold != 75 || len(cfg.Scoring.LocationTerms) != 2 {
		t.Errorf("Scoring = %+v", cfg.Scoring)
	}
	if cfg.Pipeline.StepTimeout != 30*time.Second || cfg.Pipeline.RetryAttempts != 0 || cfg.Pipeline.BatchSize != 5 {
		t.Errorf("Pipeline = %+v", cfg.Pipeline)
	}

	li := cfg.Sources[model.SourceLinkedIn].Access
	if li.MinDelayMs != model.MinDelayFloorMs || li.MaxConcurrent != model.MaxConcurrentCeiling || !li.Enabled {
		t.Errorf("linkedin access = %+v, want clamped defaults", li)
	}
	if cfg.Sources[model.SourceGlassdoor].Access.Enabled {
		t.Error("glassdoor should be disabled")
	}
	if got := cfg.SearchTemplates(); len(got) != 1 || got[model.SourceLinkedIn] == "" {
		t.Errorf("SearchTemplates = %v", got)
	}

	if len(cfg.Schedules) != 1 || cfg.Schedules[0].UserID != "amish" {
		t.Errorf("Schedules = %+v, want user id inherited from pipeline", cfg.Schedules)
	}
	if q := cfg.Schedules[0].Queries[0]; q.Source != model.SourceLinkedIn || q.Location != "London" {
		t.Errorf("query = %+v", q)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "jobsieve.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Scoring.Threshold != 80 {
		t.Errorf("Threshold = %d, want 80", cfg.Scoring.Threshold)
	}
	if cfg.Pipeline.RetryAttempts != 2 || cfg.Pipeline.UserID != "default" {
		t.Errorf("Pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Server.Addr != ":8080" || cfg.Notification.Type != "log" {
		t.Errorf("Server = %+v, Notification = %+v", cfg.Server, cfg.Notification)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "storage: [broken"))
	if err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "pipeline:\n  step_timeout: soon\n", "pipeline.step_timeout"},
		{"unknown driver", "storage:\n  driver: mongo\n", "storage.driver"},
		{"postgres without url", "storage:\n  driver: postgres\n", "storage.url"},
		{"redis without url", "request_log:\n  backend: redis\n", "request_log.redis_url"},
		{"threshold out of range", "scoring:\n  threshold: 120\n", "scoring.threshold"},
		{"unknown source", "sources:\n  monster: {}\n", "unknown source"},
		{"bad search url", "sources:\n  indeed:\n    search_url: ftp://example.com\n", "search_url"},
		{"bad cron", "sources:\n  indeed:\n    search_url: https://x.example/{keywords}\nschedules:\n  - name: a\n    cron: every day\n    queries: [{source: indeed}]\n", "cron"},
		{"schedule without search url", "schedules:\n  - name: a\n    cron: \"@hourly\"\n    queries: [{source: indeed}]\n", "no search_url"},
		{"amqp without queue", "amqp:\n  enabled: true\n  url: amqp://localhost\n", "amqp.queue"},
		{"slack without webhook", "notification:\n  type: slack\n", "webhook_url is required"},
		{"slack with foreign webhook", "notification:\n  type: slack\n  webhook_url: https://example.com/hook\n", "must start with"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
