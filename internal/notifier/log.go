package notifier

import (
	"log/slog"

	"github.com/amishk599/jobsieve/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes new matches to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each match via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each match. Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(records []model.MatchRecord) error {
	for _, r := range records {
		args := []any{
			"id", r.ID,
			"user", r.UserID,
			"company", r.Company,
			"title", r.Title,
			"location", r.Location,
			"source", r.Source,
			"score", r.Score,
		}
		if r.SalaryRange != "" {
			args = append(args, "salary", r.SalaryRange)
		}
		if !r.PostedAt.IsZero() {
			args = append(args, "posted_at", r.PostedAt)
		}
		n.logger.Info("new match", args...)
	}
	return nil
}
