package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobsieve/internal/model"
)

// Config is the root configuration for jobsieve.
type Config struct {
	Storage      StorageConfig
	RequestLog   RequestLogConfig
	Logging      LoggingConfig
	Scoring      ScoringConfig
	Pipeline     PipelineConfig
	Sources      map[model.SourceKind]SourceConfig
	Server       ServerConfig
	AMQP         AMQPConfig
	Schedules    []ScheduleConfig
	Notification NotificationConfig
}

// StorageConfig selects the backend for matches, settings and job state.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite", "postgres" or "memory"
	Path   string `yaml:"path"`   // sqlite file
	URL    string `yaml:"url"`    // postgres connection string
}

// RequestLogConfig selects where the access gate keeps its request history.
type RequestLogConfig struct {
	Backend  string `yaml:"backend"` // "store" or "redis"
	RedisURL string `yaml:"redis_url"`
	Prefix   string `yaml:"prefix"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json, text
}

// ScoringConfig holds the relevance threshold and the keyword lists.
type ScoringConfig struct {
	Threshold      int
	SeniorityTerms []string
	LocationTerms  []string
}

// PipelineConfig tunes job execution and live search.
type PipelineConfig struct {
	UserID         string // default user for CLI and scheduled jobs
	BatchSize      int
	StepTimeout    time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	HTTPTimeout    time.Duration
	UserAgent      string
}

// SourceConfig is the configured default access policy of a source and the
// URL template used for live searches against it.
type SourceConfig struct {
	Access    model.AccessPreferences
	SearchURL string
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// AMQPConfig controls the optional queue consumer.
type AMQPConfig struct {
	Enabled       bool
	URL           string
	Queue         string
	Prefetch      int
	BatchSize     int
	FlushInterval time.Duration
	UserID        string
}

// ScheduleConfig submits a search job on a cron schedule.
type ScheduleConfig struct {
	Name    string              `yaml:"name"`
	Cron    string              `yaml:"cron"`
	UserID  string              `yaml:"user_id"`
	Queries []model.SearchQuery `yaml:"queries"`
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log", "slack" or "none"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
	MatchURL   string `yaml:"match_url"`   // optional link prefix for slack messages
}

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Storage      StorageConfig              `yaml:"storage"`
	RequestLog   RequestLogConfig           `yaml:"request_log"`
	Logging      LoggingConfig              `yaml:"logging"`
	Scoring      rawScoringConfig           `yaml:"scoring"`
	Pipeline     rawPipelineConfig          `yaml:"pipeline"`
	Sources      map[string]rawSourceConfig `yaml:"sources"`
	Server       rawServerConfig            `yaml:"server"`
	AMQP         rawAMQPConfig              `yaml:"amqp"`
	Schedules    []ScheduleConfig           `yaml:"schedules"`
	Notification NotificationConfig         `yaml:"notification"`
}

type rawScoringConfig struct {
	Threshold      *int     `yaml:"threshold"`
	SeniorityTerms []string `yaml:"seniority_terms"`
	LocationTerms  []string `yaml:"location_terms"`
}

type rawPipelineConfig struct {
	UserID         string `yaml:"user_id"`
	BatchSize      int    `yaml:"batch_size"`
	StepTimeout    string `yaml:"step_timeout"`
	RetryAttempts  *int   `yaml:"retry_attempts"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
	HTTPTimeout    string `yaml:"http_timeout"`
	UserAgent      string `yaml:"user_agent"`
}

type rawSourceConfig struct {
	Enabled               *bool  `yaml:"enabled"`
	MinDelayMs            *int   `yaml:"min_delay_ms"`
	MaxConcurrent         *int   `yaml:"max_concurrent"`
	MaxResultsPerQuery    *int   `yaml:"max_results_per_query"`
	RequireSafetyMeasures *bool  `yaml:"require_safety_measures"`
	SearchURL             string `yaml:"search_url"`
}

type rawServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type rawAMQPConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Queue         string `yaml:"queue"`
	Prefetch      int    `yaml:"prefetch"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval string `yaml:"flush_interval"`
	UserID        string `yaml:"user_id"`
}

const (
	defaultThreshold = 80
	defaultUserID    = "default"
	slackHookPrefix  = "https://hooks.slack.com/"
)

// Default returns the configuration used when no config file exists: a
// local SQLite database, console logging and log notifications.
func Default() *Config {
	cfg, err := parse(rawConfig{})
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return parse(raw)
}

func parse(raw rawConfig) (*Config, error) {
	var err error
	cfg := &Config{
		Storage:      raw.Storage,
		RequestLog:   raw.RequestLog,
		Logging:      raw.Logging,
		Schedules:    raw.Schedules,
		Notification: raw.Notification,
		Sources:      make(map[model.SourceKind]SourceConfig),
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.Path == "" {
		cfg.Storage.Path = "jobsieve.db"
	}
	if cfg.RequestLog.Backend == "" {
		cfg.RequestLog.Backend = "store"
	}
	if cfg.RequestLog.Prefix == "" {
		cfg.RequestLog.Prefix = "jobsieve"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}

	cfg.Scoring = ScoringConfig{
		Threshold:      defaultThreshold,
		SeniorityTerms: raw.Scoring.SeniorityTerms,
		LocationTerms:  raw.Scoring.LocationTerms,
	}
	if raw.Scoring.Threshold != nil {
		cfg.Scoring.Threshold = *raw.Scoring.Threshold
	}

	p := raw.Pipeline
	cfg.Pipeline = PipelineConfig{
		UserID:        p.UserID,
		BatchSize:     p.BatchSize,
		RetryAttempts: 2,
		UserAgent:     p.UserAgent,
	}
	if cfg.Pipeline.UserID == "" {
		cfg.Pipeline.UserID = defaultUserID
	}
	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 10
	}
	if p.RetryAttempts != nil {
		cfg.Pipeline.RetryAttempts = *p.RetryAttempts
	}
	if cfg.Pipeline.UserAgent == "" {
		cfg.Pipeline.UserAgent = "jobsieve/1.0"
	}
	if cfg.Pipeline.StepTimeout, err = duration("pipeline.step_timeout", p.StepTimeout, 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Pipeline.RetryBaseDelay, err = duration("pipeline.retry_base_delay", p.RetryBaseDelay, 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.Pipeline.HTTPTimeout, err = duration("pipeline.http_timeout", p.HTTPTimeout, 30*time.Second); err != nil {
		return nil, err
	}

	for name, rs := range raw.Sources {
		kind, ok := model.ParseSourceKind(name)
		if !ok {
			return nil, fmt.Errorf("sources: unknown source %q", name)
		}
		cfg.Sources[kind] = SourceConfig{Access: rs.access(), SearchURL: rs.SearchURL}
	}

	cfg.Server = ServerConfig{Addr: raw.Server.Addr}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout, err = duration("server.shutdown_timeout", raw.Server.ShutdownTimeout, 15*time.Second); err != nil {
		return nil, err
	}

	a := raw.AMQP
	cfg.AMQP = AMQPConfig{
		Enabled:   a.Enabled,
		URL:       a.URL,
		Queue:     a.Queue,
		Prefetch:  a.Prefetch,
		BatchSize: a.BatchSize,
		UserID:    a.UserID,
	}
	if cfg.AMQP.Prefetch == 0 {
		cfg.AMQP.Prefetch = 20
	}
	if cfg.AMQP.BatchSize == 0 {
		cfg.AMQP.BatchSize = 10
	}
	if cfg.AMQP.UserID == "" {
		cfg.AMQP.UserID = cfg.Pipeline.UserID
	}
	if cfg.AMQP.FlushInterval, err = duration("amqp.flush_interval", a.FlushInterval, 5*time.Second); err != nil {
		return nil, err
	}

	for i := range cfg.Schedules {
		if cfg.Schedules[i].UserID == "" {
			cfg.Schedules[i].UserID = cfg.Pipeline.UserID
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func duration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

// access overlays the configured fields on the built-in defaults and clamps
// the result into safe bounds.
func (r rawSourceConfig) access() model.AccessPreferences {
	p := model.DefaultAccessPreferences()
	if r.Enabled != nil {
		p.Enabled = *r.Enabled
	}
	if r.MinDelayMs != nil {
		p.MinDelayMs = *r.MinDelayMs
	}
	if r.MaxConcurrent != nil {
		p.MaxConcurrent = *r.MaxConcurrent
	}
	if r.MaxResultsPerQuery != nil {
		p.MaxResultsPerQuery = *r.MaxResultsPerQuery
	}
	if r.RequireSafetyMeasures != nil {
		p.RequireSafetyMeasures = *r.RequireSafetyMeasures
	}
	return p.Clamp()
}

// AccessDefaults returns the configured access policy per source.
func (c *Config) AccessDefaults() map[model.SourceKind]model.AccessPreferences {
	out := make(map[model.SourceKind]model.AccessPreferences, len(c.Sources))
	for k, s := range c.Sources {
		out[k] = s.Access
	}
	return out
}

// SearchTemplates returns the live search URL template per source.
func (c *Config) SearchTemplates() map[model.SourceKind]string {
	out := make(map[model.SourceKind]string)
	for k, s := range c.Sources {
		if s.SearchURL != "" {
			out[k] = s.SearchURL
		}
	}
	return out
}

func validate(cfg *Config) error {
	var errs []error

	switch cfg.Storage.Driver {
	case "sqlite":
		if cfg.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the sqlite driver"))
		}
	case "postgres":
		if cfg.Storage.URL == "" {
			errs = append(errs, errors.New("storage.url is required for the postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite, postgres or memory, got %q", cfg.Storage.Driver))
	}

	switch cfg.RequestLog.Backend {
	case "store":
	case "redis":
		if cfg.RequestLog.RedisURL == "" {
			errs = append(errs, errors.New("request_log.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("request_log.backend must be store or redis, got %q", cfg.RequestLog.Backend))
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "console", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console, json or text, got %q", cfg.Logging.Format))
	}

	if cfg.Scoring.Threshold < 0 || cfg.Scoring.Threshold > 100 {
		errs = append(errs, fmt.Errorf("scoring.threshold must be between 0 and 100, got %d", cfg.Scoring.Threshold))
	}

	if cfg.Pipeline.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.batch_size must be positive, got %d", cfg.Pipeline.BatchSize))
	}
	if cfg.Pipeline.StepTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.step_timeout must be positive, got %v", cfg.Pipeline.StepTimeout))
	}
	if cfg.Pipeline.RetryAttempts < 0 || cfg.Pipeline.RetryAttempts > 10 {
		errs = append(errs, fmt.Errorf("pipeline.retry_attempts must be between 0 and 10, got %d", cfg.Pipeline.RetryAttempts))
	}

	for kind, s := range cfg.Sources {
		if s.SearchURL == "" {
			continue
		}
		if kind == model.SourceGeneric {
			errs = append(errs, errors.New("sources.generic cannot have a search_url"))
		}
		u, err := url.Parse(s.SearchURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("sources.%s.search_url must be an http(s) url", kind))
		}
	}

	if cfg.AMQP.Enabled {
		if cfg.AMQP.URL == "" || cfg.AMQP.Queue == "" {
			errs = append(errs, errors.New("amqp.url and amqp.queue are required when amqp.enabled is true"))
		}
		if cfg.AMQP.BatchSize < 1 {
			errs = append(errs, fmt.Errorf("amqp.batch_size must be positive, got %d", cfg.AMQP.BatchSize))
		}
	}

	names := make(map[string]bool)
	for i, s := range cfg.Schedules {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("schedules[%d].name is required", i))
		} else if names[s.Name] {
			errs = append(errs, fmt.Errorf("schedules[%d].name %q is not unique", i, s.Name))
		}
		names[s.Name] = true
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			errs = append(errs, fmt.Errorf("schedules[%d].cron %q: %w", i, s.Cron, err))
		}
		if len(s.Queries) == 0 {
			errs = append(errs, fmt.Errorf("schedules[%d] needs at least one query", i))
		}
		for _, q := range s.Queries {
			if _, ok := cfg.SearchTemplates()[q.Source]; !ok {
				errs = append(errs, fmt.Errorf("schedules[%d] queries source %q, which has no search_url", i, q.Source))
			}
		}
	}

	switch cfg.Notification.Type {
	case "log", "none":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			errs = append(errs, fmt.Errorf("notification.webhook_url is required when type is \"slack\""))
		} else if !strings.HasPrefix(cfg.Notification.WebhookURL, slackHookPrefix) {
			errs = append(errs, fmt.Errorf("notification.webhook_url must start with %s", slackHookPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("notification.type must be log, slack or none, got %q", cfg.Notification.Type))
	}

	return errors.Join(errs...)
}
