package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/amishk599/jobsieve/internal/gate"
	"github.com/amishk599/jobsieve/internal/match"
	"github.com/amishk599/jobsieve/internal/model"
	"github.com/amishk599/jobsieve/internal/parser"
	"github.com/amishk599/jobsieve/internal/scoring"
	"github.com/amishk599/jobsieve/internal/search"
	"github.com/amishk599/jobsieve/internal/settings"
)

// DefaultBatchSize is used for ingest jobs that do not set one.
const DefaultBatchSize = 10

// Driver owns the ingestion pipeline for one process:
// parse → score → threshold → dedup → insert → notify → stats.
type Driver struct {
	parsers   *parser.Registry
	scorer    *scoring.Scorer
	gate      *gate.Gate
	matches   *match.Repository
	settings  *settings.Service
	searcher  search.Searcher // gated; nil disables search jobs
	notifier  model.Notifier
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// Deps groups the collaborators of a Driver.
type Deps struct {
	Parsers  *parser.Registry
	Scorer   *scoring.Scorer
	Gate     *gate.Gate
	Matches  *match.Repository
	Settings *settings.Service
	Searcher search.Searcher
	Notifier model.Notifier
	Logger   *slog.Logger

	BatchSize int
}

// NewDriver creates a driver wired with all its dependencies.
func NewDriver(d Deps) *Driver {
	if d.BatchSize <= 0 {
		d.BatchSize = DefaultBatchSize
	}
	return &Driver{
		parsers:   d.Parsers,
		scorer:    d.Scorer,
		gate:      d.Gate,
		matches:   d.Matches,
		settings:  d.Settings,
		searcher:  d.Searcher,
		notifier:  d.Notifier,
		logger:    d.Logger,
		batchSize: d.BatchSize,
		now:       time.Now,
	}
}

// ProcessMessages runs every message through the pipeline for userID.
// Messages from sources that are disabled or have safety measures off are
// skipped. The summary is always returned; per-candidate store failures are
// counted in Failed and joined into the error.
func (d *Driver) ProcessMessages(ctx context.Context, userID string, msgs []model.RawMessage) (model.BatchSummary, error) {
	b := newIngestBatch(userID, msgs)
	sum, err := d.runBatch(ctx, b)
	d.finishBatch(ctx, b)
	return sum, err
}

// Search runs one live query through the gated searcher and ingests the
// results page. At most MaxResultsPerQuery candidates are considered.
func (d *Driver) Search(ctx context.Context, userID string, q model.SearchQuery) (model.BatchSummary, error) {
	b := newSearchBatch(userID, q)
	sum, err := d.runBatch(ctx, b)
	d.finishBatch(ctx, b)
	return sum, err
}

func (d *Driver) notify(userID string, added []model.MatchRecord) {
	if len(added) == 0 || d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(added); err != nil {
		d.logger.Warn("notifying new matches", "user", userID, "count", len(added), "error", err)
	}
}

// record folds a finished batch into the stats. A failure does not affect
// the counters already produced.
func (d *Driver) record(ctx context.Context, userID string, sum model.BatchSummary) {
	if err := d.settings.RecordBatch(context.WithoutCancel(ctx), sum, d.now()); err != nil {
		d.logger.Warn("recording batch stats", "user", userID, "error", err)
	}

	d.logger.Info("processed batch",
		"user", userID,
		"processed", sum.Processed,
		"found", sum.Found,
		"added", sum.Added,
		"below_threshold", sum.BelowThreshold,
		"duplicates", sum.Duplicates,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
	)
}
